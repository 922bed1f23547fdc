package middleware

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"

	"bgremover/internal/infra/logging"
)

// Recycler signals once the process has served its quota of requests, so it
// can exit and be restarted by its supervisor with a fresh heap.
type Recycler struct {
	limit  uint64
	served atomic.Uint64
	once   sync.Once
	done   chan struct{}
}

// NewRecycler picks a limit of max plus up to jitter requests. Spreading the
// limit keeps replicas from restarting together. max <= 0 disables recycling.
func NewRecycler(max, jitter int) *Recycler {
	r := &Recycler{done: make(chan struct{})}
	if max > 0 {
		r.limit = uint64(max)
		if jitter > 0 {
			r.limit += uint64(rand.Intn(jitter + 1))
		}
	}
	return r
}

// Limit returns the request quota, 0 when disabled.
func (r *Recycler) Limit() uint64 { return r.limit }

// Done is closed once the quota is reached. It never closes when disabled.
func (r *Recycler) Done() <-chan struct{} { return r.done }

// Handler counts completed requests.
func (r *Recycler) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if r.limit > 0 && r.served.Add(1) >= r.limit {
			r.once.Do(func() {
				logging.Info("Request quota reached, recycling process", "served", r.served.Load())
				close(r.done)
			})
		}
		return err
	}
}

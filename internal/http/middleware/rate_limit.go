package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"bgremover/internal/config"
	"bgremover/internal/domain"
	"bgremover/internal/infra/logging"
)

// Paths never counted against the global window, so probes keep answering
// regardless of traffic.
var unlimitedPaths = map[string]struct{}{
	"/":       {},
	"/health": {},
	"/livez":  {},
	"/readyz": {},
}

// GlobalRateLimit limits every client address across all endpoints.
func GlobalRateLimit(cfg config.Config, store fiber.Storage) fiber.Handler {
	return newIPLimiter("global", cfg.RateLimiter.GlobalLimit, cfg.RateLimiter.GlobalInterval, store, func(c *fiber.Ctx) bool {
		_, skip := unlimitedPaths[c.Path()]
		return skip
	})
}

// RemoveRateLimit is the tighter window applied to the processing endpoint
// on top of the global one.
func RemoveRateLimit(cfg config.Config, store fiber.Storage) fiber.Handler {
	return newIPLimiter("remove", cfg.RateLimiter.RemoveLimit, cfg.RateLimiter.RemoveInterval, store, nil)
}

// newIPLimiter keys counters by client address. The prefix keeps windows
// apart when they share one store.
func newIPLimiter(prefix string, max int, window time.Duration, store fiber.Storage, next func(c *fiber.Ctx) bool) fiber.Handler {
	return limiter.New(limiter.Config{
		Next:              next,
		Max:               max,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		KeyGenerator: func(c *fiber.Ctx) string {
			return prefix + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "window", prefix, "ip", c.IP(), "path", c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": domain.PublicMessage(domain.ErrRateLimited),
			})
		},
	})
}

// Package engine owns the inference session: the single, process-wide handle
// to a loaded background removal model.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"bgremover/internal/config"
	"bgremover/internal/domain"
	"bgremover/internal/infra/logging"
)

// Session is a loaded, ready-to-use model. Implementations are safe for
// concurrent use and never mutated after construction.
type Session interface {
	// Model names the pretrained model the session is pinned to.
	Model() string
	// Remove takes encoded image bytes and returns a PNG with the background
	// made transparent.
	Remove(ctx context.Context, image []byte) ([]byte, error)
}

// Holder moves from uninitialized to ready exactly once.
type Holder struct {
	mu      sync.RWMutex
	session Session
	started bool
}

// NewHolder returns an uninitialized holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Initialize builds and warms up the configured backend. There is no retry:
// a failed initialization is meant to stop the process.
func (h *Holder) Initialize(ctx context.Context, cfg config.EngineConfig) (Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil, domain.ErrAlreadyInitialized
	}
	h.started = true

	logging.Info("Initializing inference session", "backend", cfg.Backend, "model", cfg.Model)

	s, err := build(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInitialization, err)
	}

	if w, ok := s.(warmer); ok {
		wctx := ctx
		if cfg.WarmupTimeout > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(ctx, cfg.WarmupTimeout)
			defer cancel()
		}
		if err := w.warmup(wctx); err != nil {
			return nil, fmt.Errorf("%w: warmup %s: %v", domain.ErrInitialization, cfg.Model, err)
		}
	}

	h.session = s
	logMemoryUsage()
	logging.Info("Session initialized successfully", "model", s.Model())
	return s, nil
}

// Set installs an already constructed session. It obeys the same
// once-only rule as Initialize.
func (h *Holder) Set(s Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return domain.ErrAlreadyInitialized
	}
	if s == nil {
		return fmt.Errorf("%w: nil session", domain.ErrInitialization)
	}
	h.started = true
	h.session = s
	return nil
}

// Get returns the session or ErrNotInitialized.
func (h *Holder) Get() (Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.session == nil {
		return nil, domain.ErrNotInitialized
	}
	return h.session, nil
}

// Ready reports whether a session is available.
func (h *Holder) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session != nil
}

type warmer interface {
	warmup(ctx context.Context) error
}

func build(cfg config.EngineConfig) (Session, error) {
	switch cfg.Backend {
	case config.BackendRemote:
		return NewRemote(cfg)
	case config.BackendBuiltin:
		return NewBorderKey(cfg.Model, cfg.Tolerance), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func logMemoryUsage() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logging.Info("Memory usage after session init",
		"heap_alloc_mb", fmt.Sprintf("%.2f", float64(m.HeapAlloc)/1024/1024),
		"sys_mb", fmt.Sprintf("%.2f", float64(m.Sys)/1024/1024),
	)
}

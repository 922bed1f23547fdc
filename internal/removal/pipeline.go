// Package removal turns uploaded image bytes into a background-free PNG.
package removal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"bgremover/internal/domain"
	"bgremover/internal/engine"
	"bgremover/internal/infra/logging"
)

// SessionSource hands out the process-wide inference session.
type SessionSource interface {
	Get() (engine.Session, error)
}

// Pipeline runs one inference per call.
type Pipeline struct {
	sessions SessionSource
	sem      *semaphore.Weighted
	timeout  time.Duration
}

// New returns a Pipeline allowing at most maxConcurrent inference calls at
// once. Further callers wait for a slot; timeout covers the wait and the
// inference together.
func New(sessions SessionSource, maxConcurrent int, timeout time.Duration) *Pipeline {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pipeline{
		sessions: sessions,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		timeout:  timeout,
	}
}

// Process returns PNG bytes, or an error wrapping ErrProcessingFailure (or
// ErrNotInitialized). The underlying cause is logged here and must not be
// shown to clients.
func (p *Pipeline) Process(ctx context.Context, data []byte) ([]byte, error) {
	session, err := p.sessions.Get()
	if err != nil {
		logging.Error("Inference session unavailable", "error", err)
		return nil, err
	}

	// Queueing and inference share one deadline.
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		logging.Error("Error processing image", "stage", "queue", "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrProcessingFailure, err)
	}
	defer p.sem.Release(1)

	start := time.Now()
	out, err := session.Remove(ctx, data)
	if err == nil && len(out) == 0 {
		err = errors.New("empty result")
	}
	if err != nil {
		logging.Error("Error processing image",
			"model", session.Model(),
			"input_bytes", len(data),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrProcessingFailure, err)
	}

	logging.Debug("Image processed",
		"model", session.Model(),
		"input_bytes", len(data),
		"output_bytes", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"bgremover/internal/config"
	"bgremover/internal/infra/logging"
)

// Deps are the collaborators the global chain needs.
type Deps struct {
	Store    fiber.Storage
	Ready    func() bool
	Recycler *Recycler
}

// Register attaches global middleware to the app. Security headers go first
// so that every later short-circuit (rate limits included) carries them.
func Register(app *fiber.App, cfg config.Config, deps Deps) {
	app.Use(SecurityHeaders(cfg.Security))

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(requestLogger())

	if deps.Recycler != nil {
		app.Use(deps.Recycler.Handler())
	}

	ready := deps.Ready
	if ready == nil {
		ready = func() bool { return false }
	}
	app.Use(healthcheck.New(healthcheck.Config{
		ReadinessProbe: func(*fiber.Ctx) bool { return ready() },
	}))

	app.Use(GlobalRateLimit(cfg, deps.Store))
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		requestID, _ := c.Locals("requestid").(string)
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		logging.Info("Request handled",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"ip", c.IP(),
			"request_id", requestID,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
}

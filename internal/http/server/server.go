// Package server assembles the Fiber application.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	memoryStorage "github.com/gofiber/storage/memory/v2"

	"bgremover/internal/config"
	"bgremover/internal/engine"
	"bgremover/internal/http/handlers"
	"bgremover/internal/http/middleware"
	"bgremover/internal/infra/logging"
	"bgremover/internal/removal"
	"bgremover/internal/upload"
)

// Deps carries everything built during startup. Sessions must already be
// initialized when the app starts listening.
type Deps struct {
	Config   config.Config
	Sessions *engine.Holder
	Store    fiber.Storage
	Recycler *middleware.Recycler
}

// New creates and configures the Fiber app.
func New(d Deps) *fiber.App {
	cfg := d.Config
	if d.Sessions == nil {
		d.Sessions = engine.NewHolder()
	}
	if d.Store == nil {
		d.Store = memoryStorage.New()
	}

	app := fiber.New(fiber.Config{
		AppName:               "bgremover",
		DisableStartupMessage: !cfg.Server.Debug,
		BodyLimit:             cfg.Server.BodyLimitBytes,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ProxyHeader:           cfg.Server.ProxyHeader,
		// The proxy header is only read from connections opened by a
		// trusted proxy; everyone else is keyed by socket address.
		EnableTrustedProxyCheck: cfg.Server.ProxyHeader != "",
		TrustedProxies:          cfg.Server.TrustedProxies,
		EnableIPValidation:      cfg.Server.ProxyHeader != "",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			} else {
				logging.Error("Unhandled error", "path", c.Path(), "error", err)
			}

			// Transport-level rejections never pass through the middleware chain.
			middleware.ApplySecurityHeaders(c, cfg.Security)
			logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

			return c.Status(code).JSON(fiber.Map{"error": msg})
		},
	})

	middleware.Register(app, cfg, middleware.Deps{
		Store:    d.Store,
		Ready:    d.Sessions.Ready,
		Recycler: d.Recycler,
	})
	RegisterRoutes(app, cfg, d.Sessions, d.Store)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app.
func RegisterRoutes(app *fiber.App, cfg config.Config, sessions *engine.Holder, store fiber.Storage) {
	app.Get("/", handlers.Health)
	app.Get("/health", handlers.Health)

	pipeline := removal.New(sessions, cfg.Engine.MaxConcurrent, cfg.Engine.Timeout)
	validator := upload.NewValidator(cfg.Upload.AllowedExtensions, cfg.Upload.SniffContent)
	remove := handlers.NewRemoveHandler(validator, pipeline)

	app.Post("/remove",
		middleware.NoStore(),
		middleware.RemoveRateLimit(cfg, store),
		remove.Handle,
	)

	if cfg.Server.Monitor {
		app.Get("/monitor", monitor.New())
	}
}

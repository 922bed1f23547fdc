package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"bgremover/internal/config"
	"bgremover/internal/engine"
	"bgremover/internal/http/middleware"
	"bgremover/internal/http/server"
	"bgremover/internal/infra/logging"
	"bgremover/internal/infra/ratelimit"
)

func main() {
	cfg := config.Load()

	if err := ensureLogDir(cfg.Logger.File); err != nil {
		logging.Error("Failed to create log directory", "file", cfg.Logger.File, "error", err)
	}
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
		cfg.Logger.Console,
	)
	logging.Info("Application startup", "log_file", cfg.Logger.File, "debug", cfg.Server.Debug)

	// The session must exist before the listener does.
	holder := engine.NewHolder()
	if _, err := holder.Initialize(context.Background(), cfg.Engine); err != nil {
		logging.Error("Failed to initialize inference session", "error", err)
		os.Exit(1)
	}

	recycler := middleware.NewRecycler(cfg.Server.MaxRequests, cfg.Server.MaxRequestsJitter)
	app := server.New(server.Deps{
		Config:   cfg,
		Sessions: holder,
		Store:    ratelimit.NewStore(cfg.RateLimiter.Redis),
		Recycler: recycler,
	})

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, recycler.Done(), idleConnsClosed)
	<-idleConnsClosed
}

// startServer starts the Fiber app and blocks until a termination signal or
// the recycle signal arrives, then shuts down gracefully.
func startServer(app *fiber.App, cfg config.Config, recycle <-chan struct{}, idleConnsClosed chan struct{}) {
	go func() {
		logging.Info("Listening", "addr", cfg.Server.Host+cfg.Server.Port)
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)

	select {
	case <-sigint:
		logging.Warn("Shutdown signal received, closing server...")
	case <-recycle:
		logging.Info("Recycling: closing server after request quota")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}

// ensureLogDir creates the directory holding path, if any.
func ensureLogDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

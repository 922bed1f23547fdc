package handlers

import (
	"github.com/gofiber/fiber/v2"

	"bgremover/internal/infra/logging"
)

// Health answers liveness checks from load balancers and uptime monitors.
func Health(c *fiber.Ctx) error {
	logging.Debug("Health check endpoint called")
	return c.JSON(fiber.Map{"status": "ok"})
}

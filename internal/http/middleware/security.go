package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"bgremover/internal/config"
)

// SecurityHeaders sets the configured security headers on every response
// that passes through the middleware chain. helmet cannot switch off its
// cross-origin isolation headers, so they are pinned to the values browsers
// assume when the headers are absent; processed images stay embeddable from
// other origins.
func SecurityHeaders(cfg config.SecurityConfig) fiber.Handler {
	return helmet.New(helmet.Config{
		ContentSecurityPolicy:     cfg.ContentSecurityPolicy,
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             cfg.XFrameOptions,
		ReferrerPolicy:            cfg.ReferrerPolicy,
		PermissionPolicy:          cfg.PermissionsPolicy,
		CrossOriginEmbedderPolicy: "unsafe-none",
		CrossOriginOpenerPolicy:   "unsafe-none",
		CrossOriginResourcePolicy: "cross-origin",
	})
}

// ApplySecurityHeaders sets the same five headers directly. The app
// ErrorHandler uses it for errors raised before the chain runs, such as an
// oversized body rejected by the transport.
func ApplySecurityHeaders(c *fiber.Ctx, cfg config.SecurityConfig) {
	c.Set(fiber.HeaderContentSecurityPolicy, cfg.ContentSecurityPolicy)
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	c.Set(fiber.HeaderXFrameOptions, cfg.XFrameOptions)
	c.Set(fiber.HeaderReferrerPolicy, cfg.ReferrerPolicy)
	c.Set("Permissions-Policy", cfg.PermissionsPolicy)
}

// NoStore marks responses as non-cacheable.
func NoStore() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.Next()
	}
}

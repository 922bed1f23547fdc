// Package domain contains the core business concepts for the background removal service.
// Keep this package free of transport (HTTP) and infrastructure (engine, Redis) concerns.
package domain

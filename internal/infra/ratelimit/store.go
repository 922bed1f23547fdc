// Package ratelimit builds the counter store shared by the request limiters.
package ratelimit

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"
	"github.com/redis/go-redis/v9"

	"bgremover/internal/config"
	"bgremover/internal/infra/logging"
)

const pingTimeout = time.Second

// NewStore returns the limiter store. Without a Redis address, or when Redis
// cannot be reached, counters live in process memory: they reset on restart
// and are not shared between instances.
func NewStore(cfg config.RedisConfig) fiber.Storage {
	if cfg.Addr == "" {
		logging.Info("Using in-memory rate limit store")
		return memoryStorage.New()
	}

	if err := ping(cfg); err != nil {
		logging.Warn("Redis limiter store unreachable, falling back to memory", "addr", cfg.Addr, "error", err)
		return memoryStorage.New()
	}

	store := newRedisStore(cfg)
	if store == nil {
		return memoryStorage.New()
	}
	logging.Info("Using Redis for rate limiting", "addr", cfg.Addr, "db", cfg.DB)
	return store
}

func ping(cfg config.RedisConfig) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return rdb.Ping(ctx).Err()
}

// newRedisStore returns nil if the storage constructor panics.
func newRedisStore(cfg config.RedisConfig) (store fiber.Storage) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Redis limiter store init panicked, falling back to memory", "panic", r)
			store = nil
		}
	}()
	return redisStorage.New(redisStorage.Config{
		Addrs:    []string{cfg.Addr},
		Database: cfg.DB,
		Password: cfg.Password,
	})
}

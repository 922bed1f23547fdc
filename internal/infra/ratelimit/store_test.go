package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bgremover/internal/config"
)

func TestNewStore_MemoryWhenAddrEmpty(t *testing.T) {
	s := NewStore(config.RedisConfig{})
	require.NotNil(t, s)
	_, ok := s.(*memoryStorage.Storage)
	assert.True(t, ok, "expected memory storage, got %T", s)
}

func TestNewStore_FallsBackWhenRedisUnreachable(t *testing.T) {
	s := NewStore(config.RedisConfig{Addr: "127.0.0.1:1"})
	require.NotNil(t, s)
	_, ok := s.(*memoryStorage.Storage)
	assert.True(t, ok, "expected memory fallback, got %T", s)
}

func TestNewStore_UsesRedisWhenReachable(t *testing.T) {
	mr := miniredis.RunT(t)

	s := NewStore(config.RedisConfig{Addr: mr.Addr()})
	require.NotNil(t, s)
	_, ok := s.(*redisStorage.Storage)
	require.True(t, ok, "expected redis storage, got %T", s)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Set("remove:1.2.3.4", []byte("1"), time.Minute))
	got, err := s.Get("remove:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
	assert.True(t, mr.Exists("remove:1.2.3.4"))
}

package config

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "APP_PORT", "DB_HOST", "RABBITMQ_URL", "AMQP_URL", "JWT_SECRET", "TRUST_PROXY", "SHUTDOWN_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, "web.access", cfg.AccessQueue)
	assert.Equal(t, 10*time.Second, cfg.ShutdownWait)
	assert.False(t, cfg.TrustProxy)
	assert.False(t, cfg.DBEnabled())
	assert.False(t, cfg.AdminEnabled())
	assert.Empty(t, cfg.AMQPURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://u:p@mq:5672/")
	t.Setenv("ACCESS_CONSUMER_ENABLED", "yes")
	t.Setenv("ACCESS_LOG_BUFFER", "not-a-number")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ADMIN_EMAIL", "ops@flowsurfer.dev")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$abc")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("BCRYPT_COST", "12")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.DBEnabled())
	assert.Equal(t, "amqp://u:p@mq:5672/", cfg.AMQPURL)
	assert.True(t, cfg.ConsumerOn)
	assert.Equal(t, 1024, cfg.AccessBuffer)
	assert.True(t, cfg.AdminEnabled())
	assert.True(t, cfg.TrustProxy)
	assert.Equal(t, 12, cfg.BcryptCost)
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_TOKENS", "-3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()

	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 10*time.Second, cfg.TTL)
}

func TestLoadRateLimitConfig_BurstAndEvery(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "3s")

	cfg := LoadRateLimitConfig()

	assert.Equal(t, 5, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 3*time.Second, cfg.RefillInterval)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", " get, head ,")
	t.Setenv("CACHE_TTL", "bogus")

	cfg := LoadCacheConfig()

	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Methods)
	assert.Equal(t, 30*time.Second, cfg.TTL)
	assert.True(t, cfg.Enabled)
}

func TestNewRedisClient(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", s.Host())
	t.Setenv("REDIS_PORT", s.Port())

	client := NewRedisClient()
	require.NotNil(t, client)
	defer client.Close()

	assert.Equal(t, s.Addr(), client.Options().Addr)
}

func TestNewRedisClient_Disabled(t *testing.T) {
	t.Setenv("REDIS_ENABLED", "false")

	assert.Nil(t, NewRedisClient())
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	addr := s.Addr()
	s.Close()

	t.Setenv("REDIS_ENABLED", "")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_PORT", "")
	t.Setenv("REDIS_ADDR", addr)

	assert.Nil(t, NewRedisClient())
}

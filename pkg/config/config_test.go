package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should return defaults without env or overrides", func(t *testing.T) {
		cfg, err := Load(nil)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("Should read EQUALIZE_ environment variables", func(t *testing.T) {
		t.Setenv("EQUALIZE_WORKERS", "8")
		t.Setenv("EQUALIZE_LOG_LEVEL", "debug")
		t.Setenv("EQUALIZE_LOG_JSON", "true")
		t.Setenv("EQUALIZE_REDIS_ADDR", "redis:6380")
		t.Setenv("EQUALIZE_REDIS_BLOCK_TIMEOUT", "250ms")

		cfg, err := Load(nil)
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Workers)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.True(t, cfg.LogJSON)
		assert.Equal(t, "redis:6380", cfg.Redis.Addr)
		assert.Equal(t, 250*time.Millisecond, cfg.Redis.BlockTimeout)
		assert.Equal(t, "equalize:jobs", cfg.Redis.Stream)
	})

	t.Run("Should let overrides win over the environment", func(t *testing.T) {
		t.Setenv("EQUALIZE_WORKERS", "8")
		cfg, err := Load(map[string]any{"workers": 2, "redis.group": "night-shift"})
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Workers)
		assert.Equal(t, "night-shift", cfg.Redis.Group)
	})

	t.Run("Should reject invalid values", func(t *testing.T) {
		_, err := Load(map[string]any{"workers": 0})
		assert.ErrorContains(t, err, "invalid configuration")

		_, err = Load(map[string]any{"log_level": "loud"})
		assert.ErrorContains(t, err, "invalid configuration")

		_, err = Load(map[string]any{"redis.addr": "no-port"})
		assert.ErrorContains(t, err, "invalid configuration")
	})
}

func TestEnvKey(t *testing.T) {
	t.Run("Should map env names to koanf paths", func(t *testing.T) {
		assert.Equal(t, "workers", envKey("EQUALIZE_WORKERS"))
		assert.Equal(t, "log_level", envKey("EQUALIZE_LOG_LEVEL"))
		assert.Equal(t, "redis.claim_idle", envKey("EQUALIZE_REDIS_CLAIM_IDLE"))
	})
}

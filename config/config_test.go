package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"SERVER_PORT", "DB_PATH", "REDIS_ENABLED", "REDIS_ADDR", "REDIS_DB", "MARGIN_STREAM", "LOG_LEVEL", "SCHEDULER_INTERVAL"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "lease.db", cfg.Database.Path)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "lease:margin-transfers", cfg.Redis.Stream)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SCHEDULER_INTERVAL", "15s")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.Interval)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	t.Setenv("REDIS_ENABLED", "maybe")
	t.Setenv("SCHEDULER_INTERVAL", "-5s")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
}

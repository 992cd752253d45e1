package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AllocationConfig(t *testing.T) {
	t.Setenv("ALLOCATION_INITIAL_STATUS", "active")
	t.Setenv("ALLOCATION_SWEEP_INTERVAL", "30s")
	t.Setenv("ALLOCATION_INDEX_CACHE_SIZE", "128")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "active", cfg.Allocation.InitialReservationStatus)
	assert.Equal(t, 30*time.Second, cfg.Allocation.SweepInterval)
	assert.Equal(t, 128, cfg.Allocation.IndexCacheSize)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ALLOCATION_INITIAL_STATUS", "")
	t.Setenv("ALLOCATION_SWEEP_INTERVAL", "")
	t.Setenv("RABBITMQ_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pending", cfg.Allocation.InitialReservationStatus)
	assert.Equal(t, time.Minute, cfg.Allocation.SweepInterval)
	assert.False(t, cfg.RabbitMQ.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.RedisAddr())
}

func TestLoad_RejectsUnknownInitialStatus(t *testing.T) {
	t.Setenv("ALLOCATION_INITIAL_STATUS", "approved")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ServerConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://ops.example.org, https://ward.example.org,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, []string{"https://ops.example.org", "https://ward.example.org"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Server.Enabled)
}

func TestLoad_DatabasePoolAndLogLevel(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "40")
	t.Setenv("DB_CONN_MAX_LIFETIME", "10m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)
	assert.Equal(t, 10*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "debug", cfg.LogLevel)
}

package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "kv.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("PUBFLOW_STORAGE_TTL", "3600")
	t.Setenv("PUBFLOW_STORAGE_PREFIX", "edge:")

	cfg, err := NewRedisConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "kv.internal:6380", cfg.Address())
	assert.Equal(t, time.Hour, cfg.TTL)
	assert.Equal(t, "edge:", cfg.Prefix)

	t.Setenv("REDIS_PORT", "not-a-port")
	_, err = NewRedisConfigFromEnv()
	assert.Error(t, err)
}

func TestNewPostgresConfigFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_DB", "d")

	cfg, err := NewPostgresConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/d?sslmode=disable", cfg.ConnectionString())
	assert.Equal(t, "pubflow_storage", cfg.Table)
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("90s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = parseDuration("5")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	_, err = parseDuration("soon")
	assert.Error(t, err)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.Locker.PasswordTTL)
	assert.Equal(t, "@every 10m", cfg.Locker.CleanupSpec)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, time.Minute, cfg.Redis.RouteTTL)
	assert.Equal(t, 5.0, cfg.Shipping.FreeWeightKg)
	assert.Equal(t, "50", cfg.Shipping.ExtraKgPrice)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=parcelhub sslmode=disable", cfg.Database.DSN())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6432")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LOCKER_PASSWORD_TTL", "90m")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("REDIS_ROUTE_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 90*time.Minute, cfg.Locker.PasswordTTL)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Redis.RouteTTL)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")
	_, err := Load()
	assert.Error(t, err)
}

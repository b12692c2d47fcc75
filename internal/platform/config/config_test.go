package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Server.RegistrationLockTimeout)
	assert.False(t, cfg.Postgres.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "regwatch.audit", cfg.Kafka.Topic)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Server.TrustedProxies)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("REGWATCH_ADDR", ":9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/regwatch")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SNAPSHOT_CACHE_TTL", "10s")
	t.Setenv("SEED_FIXTURES", "true")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.10")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.Postgres.Enabled())
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Second, cfg.Snapshot.TTL)
	assert.True(t, cfg.Seed.Enabled)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.Server.TrustedProxies)
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Run("malformed duration", func(t *testing.T) {
		t.Setenv("REQUEST_TIMEOUT", "soon")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("non-positive batch size", func(t *testing.T) {
		t.Setenv("OUTBOX_BATCH_SIZE", "0")
		_, err := FromEnv()
		require.ErrorContains(t, err, "OUTBOX_BATCH_SIZE")
	})
}

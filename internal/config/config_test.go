package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.Storage)
	assert.Equal(t, 30.0, cfg.AverageSpeedKmh)
	assert.True(t, cfg.RideClientMayCancel)
	assert.False(t, cfg.S3Enabled())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE", "Memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("AVERAGE_SPEED_KMH", "45.5")
	t.Setenv("RIDE_CLIENT_MAY_CANCEL", "false")
	t.Setenv("DB_USER", "valet")
	t.Setenv("DB_NAME", "evvalet")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 45.5, cfg.AverageSpeedKmh)
	assert.False(t, cfg.RideClientMayCancel)
	assert.Contains(t, cfg.PostgresDSN(), "user=valet")
	assert.Contains(t, cfg.PostgresDSN(), "dbname=evvalet")
}

func TestFromEnvCollectsErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("AVERAGE_SPEED_KMH", "fast")
	t.Setenv("RIDE_CLIENT_MAY_CANCEL", "maybe")
	t.Setenv("STORAGE", "mongo")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AVERAGE_SPEED_KMH")
	assert.Contains(t, err.Error(), "RIDE_CLIENT_MAY_CANCEL")
	assert.Contains(t, err.Error(), "STORAGE")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorsim/sensorsim/internal/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"APP_PORT", "APP_ENV", "SIM_BACKEND_URL", "SIM_BACKEND_TIMEOUT", "PUBLIC_DIR",
		"PUBLIC_URL", "EXPORT_DIR", "OTEL_ENABLED", "DB_HOST", "S3_ENDPOINT",
	} {
		t.Setenv(key, "")
	}

	cfg := config.FromEnv()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "http://localhost:5000", cfg.BackendURL)
	assert.Equal(t, 30*time.Second, cfg.BackendTimeout)
	assert.Equal(t, "./public", cfg.PublicDir)
	assert.Empty(t, cfg.PublicURL)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Nil(t, cfg.Database)
	assert.Nil(t, cfg.ObjectStore)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SIM_BACKEND_URL", "http://sim:5000")
	t.Setenv("SIM_BACKEND_TIMEOUT", "5s")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "runs")
	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("S3_BUCKET", "exports")
	t.Setenv("S3_USE_SSL", "true")

	cfg := config.FromEnv()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "http://sim:5000", cfg.BackendURL)
	assert.Equal(t, 5*time.Second, cfg.BackendTimeout)
	assert.True(t, cfg.Telemetry.Enabled)

	require.NotNil(t, cfg.Database)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, "runs", cfg.Database.Database)

	require.NotNil(t, cfg.ObjectStore)
	assert.Equal(t, "minio:9000", cfg.ObjectStore.Endpoint)
	assert.Equal(t, "exports", cfg.ObjectStore.Bucket)
	assert.True(t, cfg.ObjectStore.UseSSL)
	assert.Equal(t, 24*time.Hour, cfg.ObjectStore.URLExpiry)
}

func TestFromEnv_InvalidTimeoutFallsBack(t *testing.T) {
	t.Setenv("SIM_BACKEND_TIMEOUT", "soon")

	cfg := config.FromEnv()

	assert.Equal(t, 30*time.Second, cfg.BackendTimeout)
}

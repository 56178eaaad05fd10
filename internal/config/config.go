// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/sensorsim/sensorsim/internal/database"
)

// Config is the configuration shared by the console, worker and simctl binaries.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// Environment is the deployment environment name.
	Environment string

	// BackendURL is the base URL of the simulation backend.
	BackendURL string

	// BackendTimeout bounds a single backend call.
	BackendTimeout time.Duration

	// PublicDir is the directory served under /static.
	PublicDir string

	// PublicURL is the base path generated graphs are linked from.
	PublicURL string

	// ExportDir is where exported results are written by the file sink.
	ExportDir string

	Telemetry TelemetryConfig

	// Database is nil unless DB_HOST is set; run history then stays in memory.
	Database *database.Config

	// ObjectStore is nil unless S3_ENDPOINT is set.
	ObjectStore *ObjectStoreConfig

	PubSub PubSubConfig
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64
}

// ObjectStoreConfig holds S3-compatible storage settings.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

// PubSubConfig holds the worker subscription settings.
type PubSubConfig struct {
	ProjectID    string
	Subscription string
}

// Load reads an optional .env file and then the environment.
func Load() Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	cfg := Config{
		Port:           getEnvOrDefault("APP_PORT", "8080"),
		Environment:    getEnvOrDefault("APP_ENV", "development"),
		BackendURL:     getEnvOrDefault("SIM_BACKEND_URL", "http://localhost:5000"),
		BackendTimeout: getEnvDuration("SIM_BACKEND_TIMEOUT", 30*time.Second),
		PublicDir:      getEnvOrDefault("PUBLIC_DIR", "./public"),
		PublicURL:      os.Getenv("PUBLIC_URL"),
		ExportDir:      getEnvOrDefault("EXPORT_DIR", "./exports"),
		Telemetry: TelemetryConfig{
			Enabled:      os.Getenv("OTEL_ENABLED") == "true",
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		},
		PubSub: PubSubConfig{
			ProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
			Subscription: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "simulation-jobs"),
		},
	}

	if os.Getenv("DB_HOST") != "" {
		dbCfg := database.ConfigFromEnv()
		cfg.Database = &dbCfg
	}

	if endpoint := os.Getenv("S3_ENDPOINT"); endpoint != "" {
		cfg.ObjectStore = &ObjectStoreConfig{
			Endpoint:  endpoint,
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    getEnvOrDefault("S3_BUCKET", "simulations"),
			UseSSL:    getEnvBool("S3_USE_SSL", false),
			URLExpiry: getEnvDuration("S3_URL_EXPIRY", 24*time.Hour),
		}
	}

	return cfg
}

// IsProduction reports whether the environment is production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getEnvFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return b
}

// Package app assembles the components shared by the console, worker and
// simctl binaries from a loaded config.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sensorsim/sensorsim/internal/config"
	"github.com/sensorsim/sensorsim/internal/database"
	"github.com/sensorsim/sensorsim/internal/export"
	"github.com/sensorsim/sensorsim/internal/provider/resilience"
	"github.com/sensorsim/sensorsim/internal/runs"
	"github.com/sensorsim/sensorsim/internal/simulation"
)

// NewBackend creates the simulation backend client. Requests are never
// retried; the circuit breaker reports to registry and logs its transitions.
func NewBackend(cfg config.Config, registry *resilience.Registry, recorder simulation.Recorder, log zerolog.Logger) *simulation.Client {
	httpCfg := resilience.SingleShotClientConfig(simulation.ProviderName)
	httpCfg.Timeout = cfg.BackendTimeout
	httpCfg.Registry = registry
	httpCfg.CircuitBreaker.OnStateChange = resilience.LogStateChanges(log)

	return simulation.NewClient(simulation.ClientConfig{
		BaseURL:    cfg.BackendURL,
		HTTPClient: resilience.NewClient(httpCfg),
		Recorder:   recorder,
		Logger:     log,
	})
}

// NewSink returns an object storage sink when one is configured and a file
// sink writing to the export directory otherwise.
func NewSink(cfg config.Config) (export.Sink, error) {
	if store := cfg.ObjectStore; store != nil {
		sink, err := export.NewObjectSink(export.ObjectSinkConfig{
			Endpoint:  store.Endpoint,
			AccessKey: store.AccessKey,
			SecretKey: store.SecretKey,
			Bucket:    store.Bucket,
			UseSSL:    store.UseSSL,
			URLExpiry: store.URLExpiry,
		})
		if err != nil {
			return nil, err
		}
		return sink, nil
	}

	sink, err := export.NewFileSink(cfg.ExportDir)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// Runs is an opened run history.
type Runs struct {
	Repository runs.Repository

	// Pool is nil for the in-memory history.
	Pool *pgxpool.Pool
}

// Ping checks the database, if any.
func (r *Runs) Ping(ctx context.Context) error {
	if r.Pool == nil {
		return nil
	}
	return r.Pool.Ping(ctx)
}

// Close releases the database pool, if any.
func (r *Runs) Close() {
	if r.Pool != nil {
		r.Pool.Close()
	}
}

// OpenRuns connects the Postgres run history and applies its schema, or
// falls back to an in-memory history when no database is configured.
func OpenRuns(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Runs, error) {
	if cfg.Database == nil {
		log.Info().Msg("no database configured, run history kept in memory")
		return &Runs{Repository: runs.NewInMemoryRepository()}, nil
	}

	pool, err := database.Connect(ctx, *cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := database.Migrate(ctx, pool, runs.Schema...); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrating run history: %w", err)
	}

	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("database connected")

	return &Runs{Repository: runs.NewPostgresRepository(pool), Pool: pool}, nil
}

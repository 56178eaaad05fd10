// Package main provides the entrypoint for the SensorSim web console.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sensorsim/sensorsim/internal/api"
	"github.com/sensorsim/sensorsim/internal/api/handler"
	"github.com/sensorsim/sensorsim/internal/api/middleware"
	"github.com/sensorsim/sensorsim/internal/app"
	"github.com/sensorsim/sensorsim/internal/config"
	"github.com/sensorsim/sensorsim/internal/form"
	"github.com/sensorsim/sensorsim/internal/provider/resilience"
	"github.com/sensorsim/sensorsim/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const sessionSweepInterval = time.Minute

func main() {
	const serviceName = "sensorsim-console"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting SensorSim console")

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}
	providerMetrics, err := middleware.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	history, err := app.OpenRuns(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open run history")
	}
	defer history.Close()

	sink, err := app.NewSink(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create export sink")
	}

	registry := resilience.NewRegistry()
	backend := app.NewBackend(cfg, registry, providerMetrics, log)
	log.Info().Str("backend_url", backend.BaseURL()).Msg("simulation backend configured")

	// The browser opens generated graphs itself; the server never does.
	sessions := form.NewSessions(form.SessionsConfig{
		Form: form.Config{
			Backend:   backend,
			PublicURL: cfg.PublicURL,
			Runs:      history.Repository,
		},
		Logger: log,
	})
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sessions.Run(ctx, sessionSweepInterval)
	}()

	var checks []handler.ReadinessCheck
	if history.Pool != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "database", Check: history.Ping})
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Sessions:    sessions,
		Runs:        history.Repository,
		Sink:        sink,
		Registry:    registry,
		Checks:      checks,
		PublicDir:   cfg.PublicDir,
		RequireTLS:  cfg.IsProduction(),
	})

	// WriteTimeout leaves room for a full backend call.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.BackendTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Sessions close once the sweeper sees ctx done.
	<-sweepDone

	log.Info().Msg("server stopped")
}

// Package api provides the HTTP surface of the SensorSim console.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sensorsim/sensorsim/internal/api/handler"
	"github.com/sensorsim/sensorsim/internal/api/middleware"
	"github.com/sensorsim/sensorsim/internal/api/response"
	"github.com/sensorsim/sensorsim/internal/export"
	"github.com/sensorsim/sensorsim/internal/form"
	"github.com/sensorsim/sensorsim/internal/provider/resilience"
	"github.com/sensorsim/sensorsim/internal/runs"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Sessions holds the form sessions (required).
	Sessions *form.Sessions
	// Runs is the run history (required).
	Runs runs.Repository
	// Sink archives exported results (optional).
	Sink export.Sink
	// Registry reports backend health on /v1/ops/status (optional).
	Registry *resilience.Registry
	// Checks gate /v1/ops/ready.
	Checks []handler.ReadinessCheck

	// PublicDir is served under /static/.
	PublicDir string
	// RequireTLS rejects plain HTTP behind a proxy and marks cookies Secure.
	RequireTLS bool
	// SessionCreateLimit limits new form sessions per client IP.
	// Default: middleware.SessionCreateRateLimit
	SessionCreateLimit middleware.RateLimitConfig
}

// NewRouter creates a new chi router with the console pages and API routes.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "sensorsim-console"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind a proxy

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Sessions:  cfg.Sessions,
		Checks:    cfg.Checks,
	})
	formHandler := handler.NewFormHandler(handler.FormHandlerConfig{
		Sessions:     cfg.Sessions,
		Sink:         cfg.Sink,
		SecureCookie: cfg.RequireTLS,
		Logger:       cfg.Logger,
	})
	runsHandler := handler.NewRunsHandler(cfg.Runs, cfg.Logger)
	pagesHandler := handler.NewPagesHandler(cfg.PublicDir, cfg.Logger)

	createLimit := cfg.SessionCreateLimit
	if createLimit.RequestLimit <= 0 {
		createLimit = middleware.SessionCreateRateLimit
	}
	formSession := handler.FormSession(cfg.Sessions, cfg.RequireTLS, middleware.RateLimitByIP(createLimit))
	standardRateLimit := middleware.RateLimitBySession(middleware.StandardRateLimit) // 300 req/min per session
	backendRateLimit := middleware.RateLimitBySession(middleware.BackendRateLimit)   // 30 req/min per session
	ipRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route matches "+r.URL.Path)
	})

	// Pages
	r.Group(func(r chi.Router) {
		r.Use(middleware.PageSecurityHeaders)
		r.With(formSession).Get("/", pagesHandler.FormPage)
		r.Get("/graphs", pagesHandler.GraphsPage)
		r.Get("/static/*", pagesHandler.Static)
	})

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireJSON)

		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/form", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Use(formSession)

			r.Get("/", formHandler.GetForm)
			r.Delete("/", formHandler.CloseForm)
			r.Get("/options", formHandler.GetOptions)

			r.Patch("/fields", formHandler.SetFields)
			r.Put("/ranges/{range}", formHandler.SetRange)
			r.Put("/ranges/{range}/{bound}", formHandler.SetBound)
			r.Put("/time-unit", formHandler.SetTimeUnit)
			r.Put("/polling-rate", formHandler.SetPollingRate)

			r.With(backendRateLimit).Post("/submit", formHandler.Submit)
			r.With(backendRateLimit).Post("/graph", formHandler.RequestGraph)

			r.Route("/result", func(r chi.Router) {
				r.Get("/", formHandler.GetResult)
				r.Get("/download", formHandler.DownloadResult)
				r.Get("/schedule", formHandler.GetSchedule)
				r.Post("/export", formHandler.ExportResult)
			})
		})

		// Run history is shared across sessions.
		r.Route("/runs", func(r chi.Router) {
			r.Use(ipRateLimit)
			r.Get("/", runsHandler.ListRuns)
			r.Get("/{runId}", runsHandler.GetRun)
		})
	})

	return r
}

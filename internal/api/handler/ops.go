// Package handler provides HTTP handlers for the SensorSim console.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/sensorsim/sensorsim/internal/api/models"
	"github.com/sensorsim/sensorsim/internal/api/response"
	"github.com/sensorsim/sensorsim/internal/provider/resilience"
)

const checkTimeout = 2 * time.Second

// ReadinessCheck is a named dependency probe, such as a database ping.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// SessionCounter reports the number of open form sessions.
type SessionCounter interface {
	Len() int
}

// OpsHandlerConfig holds configuration for an OpsHandler.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string
	Registry  *resilience.Registry
	Sessions  SessionCounter
	Checks    []ReadinessCheck
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsHandlerConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready - 503 while a dependency check fails.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.runChecks(r.Context())

	health := models.Health{Status: models.HealthStatusOK, Time: models.Timestamp(h.now())}
	status := http.StatusOK
	failed := map[string]interface{}{}
	for _, s := range subsystems {
		if s.Status == models.HealthStatusFail {
			failed[s.Name] = *s.Detail
		}
	}
	if len(failed) > 0 {
		health.Status = models.HealthStatusFail
		health.Details = failed
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and backend status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Version:    h.cfg.Version,
		Subsystems: h.runChecks(r.Context()),
		Providers:  h.providers(),
	}

	if h.cfg.Sessions != nil {
		detail := formatCount(h.cfg.Sessions.Len(), "open session")
		status.Subsystems = append(status.Subsystems, models.SubsystemStatus{
			Name:   "form-sessions",
			Status: models.HealthStatusOK,
			Detail: &detail,
		})
	}

	for _, s := range status.Subsystems {
		status.Status = worse(status.Status, s.Status)
	}
	for _, p := range status.Providers {
		// An unavailable backend degrades the console but does not fail it.
		if p.Status != models.HealthStatusOK {
			status.Status = worse(status.Status, models.HealthStatusDegraded)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.cfg.Checks))
	for _, c := range h.cfg.Checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(checkCtx)
		cancel()

		s := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			msg := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &msg
		}
		out = append(out, s)
	}
	return out
}

func (h *OpsHandler) providers() []models.ProviderStatus {
	if h.cfg.Registry == nil {
		return []models.ProviderStatus{}
	}

	all := h.cfg.Registry.GetAllHealth()
	out := make([]models.ProviderStatus, 0, len(all))
	for _, ph := range all {
		p := models.ProviderStatus{
			Provider:     ph.Name,
			Status:       providerStatus(ph.CircuitState),
			CircuitState: ph.CircuitState.String(),
			Requests:     ph.Counts.Requests,
			Failures:     ph.Counts.ConsecutiveFailures,
		}
		if ph.LastSuccessAt != nil {
			p.LastSuccessAt = models.NewTimestamp(*ph.LastSuccessAt)
		}
		if ph.LastFailureAt != nil {
			p.LastFailureAt = models.NewTimestamp(*ph.LastFailureAt)
		}
		if ph.LastError != "" {
			msg := ph.LastError
			p.Message = &msg
		}
		out = append(out, p)
	}
	return out
}

func providerStatus(state gobreaker.State) models.HealthStatus {
	switch state {
	case gobreaker.StateClosed:
		return models.HealthStatusOK
	case gobreaker.StateHalfOpen:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusFail
	}
}

func worse(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func formatCount(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sensorsim/sensorsim/internal/api/middleware"
	"github.com/sensorsim/sensorsim/internal/api/models"
	"github.com/sensorsim/sensorsim/internal/api/response"
	"github.com/sensorsim/sensorsim/internal/runs"
)

// RunsHandler serves the run history.
type RunsHandler struct {
	repo   runs.Repository
	logger zerolog.Logger
}

// NewRunsHandler creates a new RunsHandler.
func NewRunsHandler(repo runs.Repository, logger zerolog.Logger) *RunsHandler {
	return &RunsHandler{repo: repo, logger: logger}
}

func runModel(run *runs.Run) models.Run {
	return models.Run{
		ID:         run.ID,
		SessionID:  run.SessionID,
		Kind:       string(run.Kind),
		Status:     string(run.Status),
		Params:     run.Params,
		HTTPStatus: run.HTTPStatus,
		Error:      run.Error,
		Location:   run.Location,
		DurationMs: run.Duration.Milliseconds(),
		CreatedAt:  models.Timestamp(run.CreatedAt),
	}
}

// ListRuns handles GET /v1/runs - recent backend requests, newest first.
// Query parameters: limit, and session=current to only list the caller's
// own form session.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	opts := runs.ListOptions{Limit: models.ParseLimit(r.URL.Query().Get("limit"))}
	meta := models.PagedResponseMeta{Limit: opts.EffectiveLimit()}
	if r.URL.Query().Get("session") == "current" {
		opts.SessionID = middleware.SessionID(r)
		if opts.SessionID == "" {
			response.JSON(w, r, http.StatusOK, models.RunList{Items: []models.Run{}, Meta: meta})
			return
		}
	}

	list, err := h.repo.List(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("failed to list runs")
		response.InternalError(w, r, "failed to list runs")
		return
	}

	items := make([]models.Run, 0, len(list))
	for _, run := range list {
		items = append(items, runModel(run))
	}
	meta.Count = len(items)
	response.JSON(w, r, http.StatusOK, models.RunList{Items: items, Meta: meta})
}

// GetRun handles GET /v1/runs/{runId}.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.repo.Get(r.Context(), chi.URLParam(r, "runId"))
	if errors.Is(err, runs.ErrRunNotFound) {
		response.NotFound(w, r, "run not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("failed to get run")
		response.InternalError(w, r, "failed to get run")
		return
	}
	response.JSON(w, r, http.StatusOK, runModel(run))
}

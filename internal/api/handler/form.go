package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sensorsim/sensorsim/internal/api/middleware"
	"github.com/sensorsim/sensorsim/internal/api/models"
	"github.com/sensorsim/sensorsim/internal/api/response"
	"github.com/sensorsim/sensorsim/internal/export"
	"github.com/sensorsim/sensorsim/internal/form"
	"github.com/sensorsim/sensorsim/internal/params"
	"github.com/sensorsim/sensorsim/internal/schedule"
)

const maxRequestBody = 1 << 20

// FormHandler serves the form session endpoints.
type FormHandler struct {
	sessions     *form.Sessions
	sink         export.Sink
	secureCookie bool
	logger       zerolog.Logger
}

// FormHandlerConfig holds configuration for a FormHandler.
type FormHandlerConfig struct {
	Sessions *form.Sessions
	// Sink archives exported results (optional).
	Sink         export.Sink
	SecureCookie bool
	Logger       zerolog.Logger
}

// NewFormHandler creates a new FormHandler.
func NewFormHandler(cfg FormHandlerConfig) *FormHandler {
	return &FormHandler{
		sessions:     cfg.Sessions,
		sink:         cfg.Sink,
		secureCookie: cfg.SecureCookie,
		logger:       cfg.Logger,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	return true
}

func formState(f *form.Form) models.FormState {
	state := models.FormState{ID: f.ID(), Params: f.Params()}
	if snap := f.Result(); snap != nil {
		state.HasResult = true
		state.ResultAppliedAt = models.NewTimestamp(snap.AppliedAt)
	}
	return state
}

// GetForm handles GET /v1/form - current form state.
func (h *FormHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, formState(FormFromContext(r.Context())))
}

// CloseForm handles DELETE /v1/form - unmount the session.
func (h *FormHandler) CloseForm(w http.ResponseWriter, r *http.Request) {
	h.sessions.Close(FormFromContext(r.Context()).ID())
	expireSessionCookie(w, h.secureCookie)
	response.NoContent(w, r)
}

// GetOptions handles GET /v1/form/options - dropdown and slider choices.
func (h *FormHandler) GetOptions(w http.ResponseWriter, r *http.Request) {
	ranges := make(map[params.Range]models.RangeBounds, 2)
	for _, rng := range []params.Range{params.RangeTemp, params.RangeHumidity} {
		lo, hi := rng.Bounds()
		ranges[rng] = models.RangeBounds{Min: lo, Max: hi}
	}
	response.JSON(w, r, http.StatusOK, models.FormOptions{
		TimeUnits:    params.TimeUnitOptions(),
		PollingRates: params.PollingRateOptions(),
		Ranges:       ranges,
	})
}

// SetFields handles PATCH /v1/form/fields - text/number input edits.
// Edits apply in order; the first rejected edit stops the request and the
// edits before it stay applied.
func (h *FormHandler) SetFields(w http.ResponseWriter, r *http.Request) {
	var input models.SetFieldsRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if len(input.Fields) == 0 {
		response.BadRequest(w, r, "fields must not be empty", nil)
		return
	}

	f := FormFromContext(r.Context())
	for _, edit := range input.Fields {
		if _, err := f.SetField(edit.Name, edit.RawValue()); err != nil {
			writeEditError(w, r, edit.Name, err)
			return
		}
	}
	response.JSON(w, r, http.StatusOK, formState(f))
}

// SetRange handles PUT /v1/form/ranges/{range} - a two-handle slider event.
// The path accepts a range name with the handle in the body, or one of the
// legacy field discriminators (temp_start, humidity_end, ...) that carry it.
func (h *FormHandler) SetRange(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "range")

	var input models.RangeRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	rng, handle, err := resolveRangeHandle(name, input.Handle)
	if err != nil {
		writeEditError(w, r, name, err)
		return
	}

	f := FormFromContext(r.Context())
	if _, err := f.ApplyRange(rng, handle, input.Values); err != nil {
		writeEditError(w, r, name, err)
		return
	}
	response.JSON(w, r, http.StatusOK, formState(f))
}

func resolveRangeHandle(name, handle string) (params.Range, params.Handle, error) {
	if rng, err := params.ParseRange(name); err == nil {
		h, err := params.ParseHandle(handle)
		return rng, h, err
	}
	return params.ParseRangeField(name)
}

// SetBound handles PUT /v1/form/ranges/{range}/{bound} - move one handle.
func (h *FormHandler) SetBound(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "range")
	bound := chi.URLParam(r, "bound")
	field := name + "." + bound

	rng, err := params.ParseRange(name)
	if err != nil {
		writeEditError(w, r, field, err)
		return
	}
	handle, err := params.ParseHandle(bound)
	if err != nil {
		writeEditError(w, r, field, err)
		return
	}

	var input models.BoundRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.Value == nil {
		response.BadRequest(w, r, "value is required", []models.FieldError{
			{Field: "value", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	f := FormFromContext(r.Context())
	if handle == params.HandleStart {
		_, err = f.SetLow(rng, *input.Value)
	} else {
		_, err = f.SetHigh(rng, *input.Value)
	}
	if err != nil {
		writeEditError(w, r, field, err)
		return
	}
	response.JSON(w, r, http.StatusOK, formState(f))
}

// SetTimeUnit handles PUT /v1/form/time-unit - a time unit dropdown change.
func (h *FormHandler) SetTimeUnit(w http.ResponseWriter, r *http.Request) {
	var input models.TimeUnitRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if len(input.Selected) > 0 && !input.Selected[0].Value.Valid() {
		writeEditError(w, r, params.FieldTimeUnit,
			fmt.Errorf("%w: time unit %q", params.ErrInvalidValue, input.Selected[0].Value))
		return
	}

	f := FormFromContext(r.Context())
	if _, err := f.SelectTimeUnit(input.Selected); err != nil {
		writeEditError(w, r, params.FieldTimeUnit, err)
		return
	}
	response.JSON(w, r, http.StatusOK, formState(f))
}

// SetPollingRate handles PUT /v1/form/polling-rate - a polling rate dropdown change.
func (h *FormHandler) SetPollingRate(w http.ResponseWriter, r *http.Request) {
	var input models.PollingRateRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if len(input.Selected) > 0 && !input.Selected[0].Value.Valid() {
		writeEditError(w, r, params.FieldPollingRateSeconds,
			fmt.Errorf("%w: polling rate %d", params.ErrInvalidValue, input.Selected[0].Value))
		return
	}

	f := FormFromContext(r.Context())
	if _, err := f.SelectPollingRate(input.Selected); err != nil {
		writeEditError(w, r, params.FieldPollingRateSeconds, err)
		return
	}
	response.JSON(w, r, http.StatusOK, formState(f))
}

// Submit handles POST /v1/form/submit - run a simulation of the current
// parameters. The parameters are validated first; the response carries the
// result applied to the session, which may belong to a newer submission.
func (h *FormHandler) Submit(w http.ResponseWriter, r *http.Request) {
	f := FormFromContext(r.Context())

	if err := f.Params().Validate(); err != nil {
		response.BadRequest(w, r, err.Error(), models.FieldErrorsFrom(err))
		return
	}

	if err := f.Submit(r.Context()); err != nil {
		writeBackendError(w, r, err)
		return
	}

	snap := f.Result()
	if snap == nil {
		response.NotFound(w, r, "no simulation result")
		return
	}
	response.JSON(w, r, http.StatusOK, resultResponse(snap))
}

func resultResponse(snap *form.Snapshot) models.ResultResponse {
	return models.ResultResponse{
		Result:    snap.Result,
		Params:    snap.Params,
		Seq:       snap.Seq,
		AppliedAt: models.Timestamp(snap.AppliedAt),
	}
}

// GetResult handles GET /v1/form/result - the applied simulation result.
func (h *FormHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	snap := FormFromContext(r.Context()).Result()
	if snap == nil {
		response.NotFound(w, r, "no simulation result yet, submit the form first")
		return
	}
	response.JSON(w, r, http.StatusOK, resultResponse(snap))
}

// DownloadResult handles GET /v1/form/result/download - the result as a
// simulated_data.json attachment.
func (h *FormHandler) DownloadResult(w http.ResponseWriter, r *http.Request) {
	artifact, err := FormFromContext(r.Context()).Export()
	if err != nil {
		h.writeExportError(w, r, err)
		return
	}
	if err := artifact.WriteHTTP(w); err != nil {
		h.logger.Warn().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("failed to write download")
	}
}

// ExportResult handles POST /v1/form/result/export - archive the result
// through the configured sink.
func (h *FormHandler) ExportResult(w http.ResponseWriter, r *http.Request) {
	if h.sink == nil {
		response.ServiceUnavailable(w, r, "no export sink configured")
		return
	}

	artifact, err := FormFromContext(r.Context()).Export()
	if err != nil {
		h.writeExportError(w, r, err)
		return
	}

	location, err := h.sink.Put(r.Context(), artifact)
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("failed to export result")
		response.InternalError(w, r, "failed to store export")
		return
	}

	w.Header().Set("Location", location)
	response.JSON(w, r, http.StatusCreated, models.ExportResponse{Name: artifact.Name, Location: location})
}

func (h *FormHandler) writeExportError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, form.ErrNoResult) {
		response.NotFound(w, r, "no simulation result yet, submit the form first")
		return
	}
	response.InternalError(w, r, err.Error())
}

// GetSchedule handles GET /v1/form/result/schedule - the watering schedule
// derived from the result, as an HTML table or, with format=json, as JSON.
func (h *FormHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	snap := FormFromContext(r.Context()).Result()
	if snap == nil {
		response.NotFound(w, r, "no simulation result yet, submit the form first")
		return
	}

	sched, err := schedule.FromResult(snap.Result)
	if err != nil {
		traceID := middleware.GetRequestID(r.Context())
		response.Error(w, r, models.NewProblem(models.ProblemTypeValidation, "Result has no sensor samples",
			http.StatusUnprocessableEntity, traceID).WithDetail(err.Error()))
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "json") {
		out := models.WateringSchedule{Days: make([]models.WateringDay, 0, len(sched.Days))}
		for _, d := range sched.Days {
			out.Days = append(out.Days, models.WateringDay{
				Date:         d.Date.Format("2006-01-02"),
				Weekday:      d.Weekday.String(),
				Water:        d.Water,
				Label:        d.Label(),
				WateringTime: d.WateringTime,
			})
		}
		response.JSON(w, r, http.StatusOK, out)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := sched.WriteHTML(w); err != nil {
		h.logger.Warn().Err(err).Msg("failed to render schedule")
	}
}

// RequestGraph handles POST /v1/form/graph - generate a graph of the current
// parameters and return its URL for the client to open.
func (h *FormHandler) RequestGraph(w http.ResponseWriter, r *http.Request) {
	f := FormFromContext(r.Context())

	if err := f.Params().Validate(); err != nil {
		response.BadRequest(w, r, err.Error(), models.FieldErrorsFrom(err))
		return
	}

	url, err := f.RequestGraph(r.Context())
	if err != nil && url == "" {
		writeBackendError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.GraphResponse{URL: url})
}

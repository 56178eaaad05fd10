package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/sensorsim/sensorsim/internal/api/middleware"
	"github.com/sensorsim/sensorsim/internal/api/models"
	"github.com/sensorsim/sensorsim/internal/api/response"
	"github.com/sensorsim/sensorsim/internal/form"
	"github.com/sensorsim/sensorsim/internal/params"
	"github.com/sensorsim/sensorsim/internal/provider/resilience"
	"github.com/sensorsim/sensorsim/internal/simulation"
)

// writeBackendError maps a failed backend request to a problem response.
// The form session has already logged the failure.
func writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *simulation.APIError
	switch {
	case errors.Is(err, form.ErrClosed):
		response.NotFound(w, r, "form session closed")
	case errors.Is(err, simulation.ErrEncodeParams):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, resilience.ErrCircuitOpen):
		response.ServiceUnavailable(w, r, "simulation backend unavailable, try again later")
	case errors.Is(err, context.DeadlineExceeded):
		traceID := middleware.GetRequestID(r.Context())
		response.Error(w, r, models.NewProblem(models.ProblemTypeBadGateway, "Simulation backend timeout",
			http.StatusGatewayTimeout, traceID).WithDetail("simulation backend did not answer in time"))
	case errors.As(err, &apiErr):
		response.BadGateway(w, r, apiErr.Error())
	default:
		response.BadGateway(w, r, err.Error())
	}
}

// writeEditError maps a rejected form edit to a 400 problem naming field.
func writeEditError(w http.ResponseWriter, r *http.Request, field string, err error) {
	code := "INVALID_VALUE"
	switch {
	case errors.Is(err, form.ErrClosed):
		response.NotFound(w, r, "form session closed")
		return
	case errors.Is(err, params.ErrUnknownField):
		code = "UNKNOWN_FIELD"
	case errors.Is(err, params.ErrUnknownRange):
		code = "UNKNOWN_RANGE"
	case errors.Is(err, params.ErrInvalidHandle):
		code = "INVALID_HANDLE"
	}
	response.BadRequest(w, r, err.Error(), []models.FieldError{
		{Field: field, Message: err.Error(), Code: code},
	})
}

package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorsim/sensorsim/internal/api/models"
	"github.com/sensorsim/sensorsim/internal/params"
)

func TestProblem_NewProblem(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeValidation,
		"Validation error",
		http.StatusBadRequest,
		"req_test123",
	)

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "Validation error", p.Title)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Empty(t, p.Detail)
	assert.Empty(t, p.Instance)
	assert.Nil(t, p.Errors)
}

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeValidation,
		"Validation error",
		http.StatusBadRequest,
		"req_test123",
	).WithDetail("temp_start must not exceed temp_end").
		WithInstance("/v1/form/submit").
		WithErrors([]models.FieldError{
			{Field: "temp_start", Message: "must not exceed temp_end", Code: "RANGE_ORDER"},
		})

	assert.Equal(t, "temp_start must not exceed temp_end", p.Detail)
	assert.Equal(t, "/v1/form/submit", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "RANGE_ORDER", p.Errors[0].Code)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "polling_rate_seconds", Message: "must be one of [10 30 60 300 600]"},
	})
	p.Instance = "/v1/form/polling-rate"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, "invalid input", result.Detail)
	assert.Equal(t, "/v1/form/polling-rate", result.Instance)
	assert.Equal(t, "req_test123", result.TraceID)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "polling_rate_seconds", result.Errors[0].Field)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewNotFound("", "no result").Write(w)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("X-Request-Id"))
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name   string
		p      *models.Problem
		typ    string
		title  string
		status int
	}{
		{"bad request", models.NewBadRequest("req_1", "d", nil), models.ProblemTypeValidation, "Validation error", http.StatusBadRequest},
		{"not found", models.NewNotFound("req_1", "d"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"unsupported media", models.NewUnsupportedMediaType("req_1", "d"), models.ProblemTypeUnsupportedMedia, "Unsupported media type", http.StatusUnsupportedMediaType},
		{"too many requests", models.NewTooManyRequests("req_1", "d"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req_1", "d"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"bad gateway", models.NewBadGateway("req_1", "d"), models.ProblemTypeBadGateway, "Simulation backend error", http.StatusBadGateway},
		{"unavailable", models.NewServiceUnavailable("req_1", "d"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.p.Type)
			assert.Equal(t, tt.title, tt.p.Title)
			assert.Equal(t, tt.status, tt.p.Status)
			assert.Equal(t, "d", tt.p.Detail)
			assert.Equal(t, "req_1", tt.p.TraceID)
		})
	}
}

func TestFieldErrorsFrom(t *testing.T) {
	p := params.Defaults()
	p.TempStart = 45
	p.TempEnd = 20
	p.TimeUnit = "fortnights"

	fieldErrs := models.FieldErrorsFrom(p.Validate())
	require.Len(t, fieldErrs, 2)
	assert.Equal(t, "temp_start", fieldErrs[0].Field)
	assert.Equal(t, "RANGE_ORDER", fieldErrs[0].Code)
	assert.Equal(t, "time_unit", fieldErrs[1].Field)

	assert.Nil(t, models.FieldErrorsFrom(nil))
}

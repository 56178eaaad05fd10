package response_test

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorsim/sensorsim/internal/api/middleware"
	"github.com/sensorsim/sensorsim/internal/api/models"
	"github.com/sensorsim/sensorsim/internal/api/response"
)

// serve runs fn behind the RequestID middleware with a fixed request ID.
func serve(t *testing.T, path string, fn http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	req.Header.Set("X-Request-Id", "req_fixed")
	rec := httptest.NewRecorder()
	middleware.RequestID(fn).ServeHTTP(rec, req)
	return rec
}

func TestJSON(t *testing.T) {
	rec := serve(t, "/v1/form", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"id": "form_1"})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req_fixed", rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"id":"form_1"}`, rec.Body.String())
}

func TestJSON_NilData(t *testing.T) {
	rec := serve(t, "/", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusAccepted, nil)
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestJSON_UnencodableData(t *testing.T) {
	rec := serve(t, "/v1/form", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]float64{"noise_mean": math.NaN()})
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusInternalServerError, problem.Status)
	assert.Equal(t, "/v1/form", problem.Instance)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter, r *http.Request)
		status int
		typ    string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			response.BadRequest(w, r, "invalid", []models.FieldError{{Field: "temp_start", Message: "bad"}})
		}, http.StatusBadRequest, models.ProblemTypeValidation},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			response.NotFound(w, r, "no result")
		}, http.StatusNotFound, models.ProblemTypeNotFound},
		{"internal", func(w http.ResponseWriter, r *http.Request) {
			response.InternalError(w, r, "boom")
		}, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"bad gateway", func(w http.ResponseWriter, r *http.Request) {
			response.BadGateway(w, r, "backend returned 500")
		}, http.StatusBadGateway, models.ProblemTypeBadGateway},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) {
			response.ServiceUnavailable(w, r, "circuit open")
		}, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, "/v1/form/submit", tt.write)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var p models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, "/v1/form/submit", p.Instance)
			assert.Equal(t, "req_fixed", p.TraceID)
		})
	}
}

func TestNoContent(t *testing.T) {
	rec := serve(t, "/v1/form", func(w http.ResponseWriter, r *http.Request) {
		response.NoContent(w, r)
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req_fixed", rec.Header().Get("X-Request-Id"))
}

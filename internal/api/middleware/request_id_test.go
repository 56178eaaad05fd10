package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sensorsim/sensorsim/internal/api/middleware"
)

func TestRequestID_GeneratesNewID(t *testing.T) {
	var ctxID string
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = middleware.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/form", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	responseID := w.Header().Get("X-Request-Id")
	assert.True(t, strings.HasPrefix(responseID, "req_"))
	assert.Len(t, responseID, 26)
	assert.Equal(t, responseID, ctxID)
}

func TestRequestID_ClientSuppliedIDs(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		preserve bool
	}{
		{"printable", "existing_request_id", true},
		{"too long", strings.Repeat("x", 65), false},
		{"contains space", "has space", false},
		{"control character", "id\x01", false},
	}

	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/form", http.NoBody)
			req.Header.Set("X-Request-Id", tt.header)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-Id")
			if tt.preserve {
				assert.Equal(t, tt.header, got)
			} else {
				assert.True(t, strings.HasPrefix(got, "req_"), "got %q", got)
			}
		})
	}
}

func TestGetRequestID_ReturnsEmptyStringForMissingContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	assert.Empty(t, middleware.GetRequestID(req.Context()))
}

func TestRequestID_UniqueIDs(t *testing.T) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		id := w.Header().Get("X-Request-Id")
		assert.False(t, ids[id], "duplicate request ID generated: %s", id)
		ids[id] = true
	}
}

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/sensorsim/sensorsim/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// Default rate limit configurations.
var (
	// BackendRateLimit applies to endpoints that call the simulation backend (30 req/min).
	BackendRateLimit = RateLimitConfig{
		RequestLimit: 30,
		WindowLength: time.Minute,
	}

	// SessionCreateRateLimit applies per client IP to requests that mount a
	// new form session (20 req/min).
	SessionCreateRateLimit = RateLimitConfig{
		RequestLimit: 20,
		WindowLength: time.Minute,
	}

	// StandardRateLimit applies to form edits and reads (300 req/min).
	StandardRateLimit = RateLimitConfig{
		RequestLimit: 300,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP creates a rate limiter middleware using client IP address.
// Uses X-Forwarded-For header if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceededHandler(cfg)),
	)
}

// RateLimitBySession creates a rate limiter keyed by the form session cookie.
// Requests without a session fall back to the client IP.
func RateLimitBySession(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyBySessionOrIP),
		httprate.WithLimitHandler(limitExceededHandler(cfg)),
	)
}

func keyBySessionOrIP(r *http.Request) (string, error) {
	if id := SessionID(r); id != "" {
		return "session:" + id, nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceededHandler writes an RFC7807 Problem response when the limit is exceeded.
// httprate does not expose the reset time, so Retry-After is the window length.
func limitExceededHandler(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := int(cfg.WindowLength.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	return func(w http.ResponseWriter, r *http.Request) {
		traceID := GetRequestID(r.Context())

		problem := models.NewTooManyRequests(traceID, "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		problem.Write(w)
	}
}

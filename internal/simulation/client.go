// Package simulation is the client for the sensor-data simulation backend.
package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sensorsim/sensorsim/internal/params"
	"github.com/sensorsim/sensorsim/internal/provider/resilience"
)

const (
	// ProviderName identifies the backend in the resilience registry and metrics.
	ProviderName = "simulation-backend"

	// SimulatePath is the backend endpoint that produces simulated data.
	SimulatePath = "/api/simulate"

	// GenerateGraphPath is the backend endpoint that renders a graph.
	GenerateGraphPath = "/api/generate-graph"

	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:5000"

	tracerName      = "github.com/sensorsim/sensorsim/internal/simulation"
	maxResponseSize = 32 << 20
)

var (
	// ErrNotObject is returned when a 200 response body is not a JSON object.
	ErrNotObject = errors.New("simulation result is not a JSON object")

	// ErrEmptyGraphPath is returned when the graph endpoint answers without a graphPath.
	ErrEmptyGraphPath = errors.New("graph response has no graphPath")

	// ErrEncodeParams is returned when the parameters cannot be sent at all.
	// The backend is not called.
	ErrEncodeParams = errors.New("parameters cannot be encoded")
)

// Result is the opaque JSON object returned by the simulate endpoint.
type Result json.RawMessage

// MarshalJSON returns the raw result.
func (r Result) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON stores a copy of data.
func (r *Result) UnmarshalJSON(data []byte) error {
	if r == nil {
		return errors.New("simulation.Result: UnmarshalJSON on nil pointer")
	}
	*r = append((*r)[0:0], data...)
	return nil
}

// GraphRef references a graph rendered by the backend.
type GraphRef struct {
	GraphPath string `json:"graphPath"`
}

// APIError is returned when the backend answers with a non-200 status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("simulation backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("simulation backend returned %d: %s", e.StatusCode, e.Message)
}

// Recorder receives the duration and outcome of every backend call.
type Recorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
}

// ClientConfig holds configuration for the simulation backend client.
type ClientConfig struct {
	// BaseURL is the backend base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client that never retries.
	HTTPClient *resilience.Client

	// Recorder receives per-call metrics (optional).
	Recorder Recorder

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client posts parameter snapshots to the simulation backend.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	recorder   Recorder
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// NewClient creates a new simulation backend client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.SingleShotClientConfig(ProviderName))
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		recorder:   cfg.Recorder,
		tracer:     otel.Tracer(tracerName),
		logger:     cfg.Logger,
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Simulate posts p to the simulate endpoint and returns the result object.
func (c *Client) Simulate(ctx context.Context, p *params.Params) (Result, error) {
	body, err := c.post(ctx, "simulate", SimulatePath, p)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, ErrNotObject
	}
	return Result(trimmed), nil
}

// GenerateGraph posts p to the graph endpoint and returns the graph reference.
func (c *Client) GenerateGraph(ctx context.Context, p *params.Params) (GraphRef, error) {
	body, err := c.post(ctx, "generate_graph", GenerateGraphPath, p)
	if err != nil {
		return GraphRef{}, err
	}

	var ref GraphRef
	if err := json.Unmarshal(body, &ref); err != nil {
		return GraphRef{}, fmt.Errorf("decoding response: %w", err)
	}
	if ref.GraphPath == "" {
		return GraphRef{}, ErrEmptyGraphPath
	}
	return ref, nil
}

// post sends p as JSON to path and returns the body of a 200 response.
func (c *Client) post(ctx context.Context, operation, path string, p *params.Params) (_ []byte, err error) {
	ctx, span := c.tracer.Start(ctx, "simulation."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider.name", ProviderName),
			attribute.String("url.path", path),
		),
	)
	start := time.Now()
	defer func() {
		if c.recorder != nil {
			c.recorder.RecordRequest(ProviderName, operation, time.Since(start), err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeParams, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errBody) == nil {
			apiErr.Message = errBody.Error
		}
		c.logger.Debug().
			Str("operation", operation).
			Int("status", resp.StatusCode).
			Msg("simulation backend returned an error")
		return nil, apiErr
	}

	return body, nil
}

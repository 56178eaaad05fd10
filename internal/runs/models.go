// Package runs keeps a history of simulation and graph requests.
package runs

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sensorsim/sensorsim/internal/params"
)

// Repository errors.
var (
	ErrRunNotFound = errors.New("run not found")
)

// Kind is the backend operation a run performed.
type Kind string

const (
	KindSimulate Kind = "simulate"
	KindGraph    Kind = "graph"
)

// Status is the outcome of a run.
type Status string

const (
	// StatusSucceeded means the backend answered and the outcome was applied.
	StatusSucceeded Status = "succeeded"

	// StatusFailed means the backend call failed.
	StatusFailed Status = "failed"

	// StatusDiscarded means the call finished after its session closed or
	// after a newer submission had already been applied.
	StatusDiscarded Status = "discarded"
)

// Run is one request against the simulation backend.
type Run struct {
	ID         string
	SessionID  string
	Kind       Kind
	Params     params.Params
	Status     Status
	HTTPStatus int
	Error      string
	// Location is the graph URL for graph runs.
	Location  string
	Duration  time.Duration
	CreatedAt time.Time
}

// NewRun creates a run with a fresh ID for the given parameter snapshot.
func NewRun(sessionID string, kind Kind, p *params.Params) *Run {
	r := &Run{
		ID:        "run_" + uuid.NewString(),
		SessionID: sessionID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	if p != nil {
		r.Params = *p
	}
	return r
}

// Package worker runs simulation jobs requested over Pub/Sub.
package worker

import (
	"time"

	"github.com/sensorsim/sensorsim/internal/params"
)

// Job types carried in JobMessage.JobType.
const (
	JobTypeSimulate      = "simulate"
	JobTypeSimulateBatch = "simulate_batch"
	JobTypeHealthCheck   = "health_check"
)

// JobConfig holds configuration for the simulation job runner.
type JobConfig struct {
	// Concurrency is the number of batch items simulated at once.
	// Default: 3
	Concurrency int

	// Timeout bounds a single job, graph included.
	// Default: 2 minutes
	Timeout time.Duration

	// ExportSchedule stores the watering schedule next to the result.
	// Default: true
	ExportSchedule bool
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Concurrency:    3,
		Timeout:        2 * time.Minute,
		ExportSchedule: true,
	}
}

func (c JobConfig) withDefaults() JobConfig {
	def := DefaultJobConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// SimulateRequest is one simulation to run.
type SimulateRequest struct {
	// JobID names the exported artifacts (optional, defaults to the message ID).
	JobID string `json:"job_id,omitempty"`

	// Params replaces the default parameters (optional).
	Params *params.Params `json:"params,omitempty"`

	// Graph also requests a rendered graph.
	Graph bool `json:"graph,omitempty"`
}

// JobMessage is the Pub/Sub message payload.
type JobMessage struct {
	JobType string `json:"job_type"`
	SimulateRequest
	Batch []SimulateRequest `json:"batch,omitempty"`
}

package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sensorsim/sensorsim/internal/export"
	"github.com/sensorsim/sensorsim/internal/form"
	"github.com/sensorsim/sensorsim/internal/schedule"
)

// ErrInvalidJob is returned for jobs that can never succeed, such as jobs
// with out-of-range parameters. Redelivering them is pointless.
var ErrInvalidJob = errors.New("invalid job")

// SimulateJob runs simulations outside of any interactive session.
type SimulateJob struct {
	config JobConfig
	form   form.Config
	sink   export.Sink
	logger zerolog.Logger

	metrics *JobMetrics
}

// JobMetrics tracks job statistics.
type JobMetrics struct {
	mu sync.RWMutex

	TotalJobs     int64
	SucceededJobs int64
	FailedJobs    int64
	Exports       int64
	Graphs        int64

	LastJobAt       time.Time
	LastJobDuration time.Duration
	TotalDuration   time.Duration
}

// SimulateJobConfig holds configuration for creating a SimulateJob.
type SimulateJobConfig struct {
	Config JobConfig

	// Form is the template for the session each job runs in; Backend is required.
	Form form.Config

	// Sink stores results and schedules (optional).
	Sink export.Sink

	Logger zerolog.Logger
}

// NewSimulateJob creates a new simulation job runner.
func NewSimulateJob(cfg SimulateJobConfig) *SimulateJob {
	formCfg := cfg.Form
	formCfg.Logger = cfg.Logger

	return &SimulateJob{
		config:  cfg.Config.withDefaults(),
		form:    formCfg,
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		metrics: &JobMetrics{},
	}
}

// JobResult is the outcome of one simulation job.
type JobResult struct {
	JobID     string
	SessionID string

	// Location is where the result was stored, empty without a sink.
	Location         string
	ScheduleLocation string
	GraphURL         string

	// Days and WateringDays summarize the watering schedule.
	Days         int
	WateringDays int

	Duration time.Duration
}

// Run simulates req in a fresh form session, stores the result and its
// watering schedule, and optionally requests a graph.
func (j *SimulateJob) Run(ctx context.Context, req SimulateRequest) (res *JobResult, err error) {
	start := time.Now()
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	f := form.New(j.form)
	defer f.Close()

	res = &JobResult{JobID: jobID, SessionID: f.ID()}
	defer func() {
		res.Duration = time.Since(start)
		j.record(res, err)
	}()

	if req.Params != nil {
		if _, err := f.Replace(req.Params); err != nil {
			return res, fmt.Errorf("applying parameters: %w", err)
		}
	}
	if err := f.Params().Validate(); err != nil {
		return res, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	if err := f.Submit(ctx); err != nil {
		return res, fmt.Errorf("simulating: %w", err)
	}
	snap := f.Result()

	if err := j.store(ctx, f, jobID, res); err != nil {
		return res, err
	}

	sched, err := schedule.FromResult(snap.Result)
	if err != nil {
		j.logger.Warn().Err(err).Str("job_id", jobID).Msg("no watering schedule for result")
	} else {
		res.Days = len(sched.Days)
		for _, d := range sched.Days {
			if d.Water {
				res.WateringDays++
			}
		}
		if err := j.storeSchedule(ctx, sched, jobID, res); err != nil {
			return res, err
		}
	}

	if req.Graph {
		url, err := f.RequestGraph(ctx)
		if url == "" && err != nil {
			return res, fmt.Errorf("generating graph: %w", err)
		}
		res.GraphURL = url
	}

	return res, nil
}

func (j *SimulateJob) store(ctx context.Context, f *form.Form, jobID string, res *JobResult) error {
	if j.sink == nil {
		return nil
	}
	artifact, err := f.Export()
	if err != nil {
		return fmt.Errorf("exporting result: %w", err)
	}
	artifact.Name = jobID + "_" + artifact.Name

	location, err := j.sink.Put(ctx, artifact)
	if err != nil {
		return fmt.Errorf("storing result: %w", err)
	}
	res.Location = location
	return nil
}

func (j *SimulateJob) storeSchedule(ctx context.Context, sched *schedule.Schedule, jobID string, res *JobResult) error {
	if j.sink == nil || !j.config.ExportSchedule {
		return nil
	}

	var buf bytes.Buffer
	if err := sched.WriteHTML(&buf); err != nil {
		return fmt.Errorf("rendering schedule: %w", err)
	}
	location, err := j.sink.Put(ctx, export.Artifact{
		Name:        jobID + "_" + schedule.FileName,
		ContentType: "text/html; charset=utf-8",
		Body:        buf.Bytes(),
	})
	if err != nil {
		return fmt.Errorf("storing schedule: %w", err)
	}
	res.ScheduleLocation = location
	return nil
}

// BatchResult contains the result of a batch of jobs.
type BatchResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Total     int
	Succeeded int
	Failed    int
	Invalid   int
	Results   []*JobResult
	Errors    []JobError
}

// JobError is a failed job of a batch.
type JobError struct {
	JobID string
	Error string
}

// RunBatch runs reqs with the configured concurrency. Items without a job
// ID are named after batchID and their position.
func (j *SimulateJob) RunBatch(ctx context.Context, batchID string, reqs []SimulateRequest) *BatchResult {
	result := &BatchResult{StartTime: time.Now(), Total: len(reqs)}

	j.logger.Info().
		Str("batch_id", batchID).
		Int("jobs", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting simulation batch")

	jobs := make(chan SimulateRequest, len(reqs))
	outcomes := make(chan jobOutcome, len(reqs))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.batchWorker(ctx, jobs, outcomes)
		}()
	}

	for i, req := range reqs {
		if req.JobID == "" {
			req.JobID = batchID + "-" + strconv.Itoa(i)
		}
		jobs <- req
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		if o.err != nil {
			result.Failed++
			if errors.Is(o.err, ErrInvalidJob) {
				result.Invalid++
			}
			result.Errors = append(result.Errors, JobError{JobID: o.jobID, Error: o.err.Error()})
			continue
		}
		result.Succeeded++
		result.Results = append(result.Results, o.result)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	j.logger.Info().
		Str("batch_id", batchID).
		Dur("duration", result.Duration).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("simulation batch completed")

	return result
}

type jobOutcome struct {
	jobID  string
	result *JobResult
	err    error
}

func (j *SimulateJob) batchWorker(ctx context.Context, jobs <-chan SimulateRequest, outcomes chan<- jobOutcome) {
	for req := range jobs {
		if err := ctx.Err(); err != nil {
			outcomes <- jobOutcome{jobID: req.JobID, err: err}
			continue
		}
		res, err := j.Run(ctx, req)
		outcomes <- jobOutcome{jobID: req.JobID, result: res, err: err}
	}
}

func (j *SimulateJob) record(res *JobResult, err error) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalJobs++
	if err != nil {
		j.metrics.FailedJobs++
	} else {
		j.metrics.SucceededJobs++
	}
	if res.Location != "" {
		j.metrics.Exports++
	}
	if res.GraphURL != "" {
		j.metrics.Graphs++
	}
	j.metrics.LastJobAt = time.Now()
	j.metrics.LastJobDuration = res.Duration
	j.metrics.TotalDuration += res.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *SimulateJob) GetMetrics() JobMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return JobMetrics{
		TotalJobs:       j.metrics.TotalJobs,
		SucceededJobs:   j.metrics.SucceededJobs,
		FailedJobs:      j.metrics.FailedJobs,
		Exports:         j.metrics.Exports,
		Graphs:          j.metrics.Graphs,
		LastJobAt:       j.metrics.LastJobAt,
		LastJobDuration: j.metrics.LastJobDuration,
		TotalDuration:   j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *SimulateJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_jobs":        m.TotalJobs,
		"succeeded_jobs":    m.SucceededJobs,
		"failed_jobs":       m.FailedJobs,
		"exports":           m.Exports,
		"graphs":            m.Graphs,
		"last_job_at":       m.LastJobAt,
		"last_job_duration": m.LastJobDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}

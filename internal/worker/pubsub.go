package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/sensorsim/sensorsim/internal/params"
)

// ErrUnknownJobType is returned by Dispatch for job types it does not handle.
var ErrUnknownJobType = errors.New("unknown job type")

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Job              *SimulateJob
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Every message holds at least one backend call.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       NewDispatcher(cfg.Job, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages and blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if h.dispatcher.Handle(ctx, msg.ID, msg.PublishTime, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// Dispatcher routes decoded job messages to the simulation job runner.
type Dispatcher struct {
	job    *SimulateJob
	logger zerolog.Logger
}

// NewDispatcher creates a Dispatcher for job.
func NewDispatcher(job *SimulateJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{job: job, logger: logger}
}

// Handle processes one message and reports whether it should be acked.
// Malformed, unknown and invalid jobs are acked so they are not redelivered;
// backend and storage failures are nacked for a retry.
func (d *Dispatcher) Handle(ctx context.Context, id string, published time.Time, data []byte) (ack bool) {
	startTime := time.Now()

	logger := d.logger.With().
		Str("message_id", id).
		Str("publish_time", published.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		return true
	}

	err := d.Dispatch(ctx, id, msg)
	switch {
	case errors.Is(err, ErrUnknownJobType):
		logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return true
	case errors.Is(err, ErrInvalidJob):
		logger.Error().Err(err).Str("job_type", msg.JobType).Msg("job rejected")
		return true
	case err != nil:
		// The form session has already logged the backend failure.
		logger.Warn().Err(err).Str("job_type", msg.JobType).Msg("job failed, will retry")
		return false
	}

	logger.Info().
		Str("job_type", msg.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}

// Dispatch runs msg. id names jobs that carry no job ID of their own.
func (d *Dispatcher) Dispatch(ctx context.Context, id string, msg JobMessage) error {
	switch msg.JobType {
	case JobTypeSimulate:
		req := msg.SimulateRequest
		if req.JobID == "" {
			req.JobID = id
		}
		res, err := d.job.Run(ctx, req)
		if err != nil {
			return err
		}
		d.logger.Info().
			Str("job_id", res.JobID).
			Str("location", res.Location).
			Str("graph_url", res.GraphURL).
			Int("watering_days", res.WateringDays).
			Msg("simulation job stored")
		return nil

	case JobTypeSimulateBatch:
		if len(msg.Batch) == 0 {
			return fmt.Errorf("%w: empty batch", ErrInvalidJob)
		}
		result := d.job.RunBatch(ctx, id, msg.Batch)
		// Retrying the batch is only worth it when something other than
		// invalid items failed.
		if retryable := result.Failed - result.Invalid; retryable > 0 {
			return fmt.Errorf("%d of %d batch jobs failed", retryable, result.Total)
		}
		return nil

	case JobTypeHealthCheck:
		return d.healthCheck(ctx)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, msg.JobType)
	}
}

// healthCheck runs a default simulation without storing anything.
func (d *Dispatcher) healthCheck(ctx context.Context) error {
	d.logger.Debug().Msg("running health check")

	probe := NewSimulateJob(SimulateJobConfig{
		Config: JobConfig{Concurrency: 1, Timeout: 10 * time.Second},
		Form:   d.job.form,
		Logger: d.logger,
	})
	if _, err := probe.Run(ctx, SimulateRequest{JobID: "health-check", Params: params.Defaults()}); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	d.logger.Debug().Msg("health check passed")
	return nil
}

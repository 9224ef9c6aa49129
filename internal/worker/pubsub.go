package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	refreshJob       *RefreshJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	RefreshJob       *RefreshJob
	Logger           zerolog.Logger
}

// Message errors.
var (
	ErrMalformedMessage = errors.New("malformed job message")
	ErrUnknownJob       = errors.New("unknown job type")
)

// Job types accepted on the subscription.
const (
	JobCacheRefresh = "cache_refresh"
	JobHealthCheck  = "health_check"
)

// RefreshMessage represents a cache refresh job message.
type RefreshMessage struct {
	JobType string `json:"job_type"`
	// Cities overrides the configured cities for a cache_refresh job.
	Cities []string `json:"cities,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		refreshJob:       cfg.RefreshJob,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	jobType, err := h.refreshJob.Dispatch(ctx, msg.Data)
	switch {
	case errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrUnknownJob):
		logger.Warn().Err(err).Msg("dropping message")
		msg.Ack() // Ack to prevent redelivery of a message that can never succeed
		return
	case err != nil:
		logger.Error().Err(err).Str("job_type", jobType).Msg("job failed")
		msg.Nack()
		return
	}

	logger.Info().
		Str("job_type", jobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")

	msg.Ack()
}

// Dispatch decodes a RefreshMessage payload and runs the job it names.
func (j *RefreshJob) Dispatch(ctx context.Context, data []byte) (string, error) {
	var m RefreshMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch m.JobType {
	case JobCacheRefresh:
		return m.JobType, CheckResult(j.RunCities(ctx, m.Cities))
	case JobHealthCheck:
		return m.JobType, j.HealthCheck(ctx)
	default:
		return m.JobType, fmt.Errorf("%w: %q", ErrUnknownJob, m.JobType)
	}
}

// CheckResult fails a run in which more stations failed than succeeded.
func CheckResult(result *RefreshResult) error {
	if result.Failed > result.Successful {
		return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.TotalStations)
	}
	return nil
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/events"
	"github.com/breatheroute/wayfinder/internal/journal"
)

// ErrPoison marks a message that can never be processed. It is acked so it
// is not redelivered.
var ErrPoison = errors.New("unprocessable message")

// Processor records decoded events in the journal.
type Processor struct {
	repo    journal.Repository
	timeout time.Duration
	logger  zerolog.Logger
}

// NewProcessor creates a Processor writing to repo.
func NewProcessor(repo journal.Repository, cfg Config, logger zerolog.Logger) *Processor {
	cfg = cfg.withDefaults()
	return &Processor{repo: repo, timeout: cfg.RecordTimeout, logger: logger}
}

// Process decodes and records one message body. Errors wrapping ErrPoison
// are permanent; any other error should be retried.
func (p *Processor) Process(ctx context.Context, data []byte) error {
	e, err := events.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPoison, err)
	}

	recordCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.repo.Record(recordCtx, e); err != nil {
		return fmt.Errorf("recording %s: %w", e.Type, err)
	}

	logger := p.logger.With().
		Str("event_id", e.ID).
		Str("event_type", string(e.Type)).
		Str("session_id", e.SessionID).
		Logger()
	logger.Debug().Msg("event recorded")

	if e.Type == events.TypeArrived || e.Type == events.TypeStopped {
		p.logTrip(recordCtx, e.SessionID, logger)
	}
	return nil
}

func (p *Processor) logTrip(ctx context.Context, sessionID string, logger zerolog.Logger) {
	trip, err := journal.Summary(ctx, p.repo, sessionID)
	if err != nil {
		logger.Warn().Err(err).Msg("trip summary failed")
		return
	}
	logger.Info().
		Str("status", string(trip.Status)).
		Int("steps_completed", trip.StepsCompleted).
		Int("step_count", trip.StepCount).
		Int("refreshes", trip.Refreshes).
		Dur("duration", trip.Duration).
		Msg("trip ended")
}

// Consumer receives navigation events from a Pub/Sub subscription.
type Consumer struct {
	client       *pubsub.Client
	subscriber   *pubsub.Subscriber
	subscription string
	processor    *Processor
	logger       zerolog.Logger
}

// NewConsumer creates a consumer for cfg.Subscription.
func NewConsumer(ctx context.Context, cfg Config, processor *Processor, logger zerolog.Logger) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.Subscription)
	subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	subscriber.ReceiveSettings.MaxExtension = cfg.MaxExtension

	return &Consumer{
		client:       client,
		subscriber:   subscriber,
		subscription: cfg.Subscription,
		processor:    processor,
		logger:       logger,
	}, nil
}

// Start processes messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().
		Str("subscription", c.subscription).
		Msg("starting journal consumer")

	return c.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		c.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (c *Consumer) Close() error {
	return c.client.Close()
}

func (c *Consumer) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := c.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	if ack(c.processor.Process(ctx, msg.Data), logger) {
		msg.Ack()
		return
	}
	msg.Nack()
}

// ack reports whether a message that ended with err should be acked.
func ack(err error, logger zerolog.Logger) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrPoison):
		logger.Error().Err(err).Msg("dropping message")
		return true
	default:
		logger.Warn().Err(err).Msg("message will be redelivered")
		return false
	}
}

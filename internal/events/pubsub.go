package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
}

// PubSubPublisher publishes events to a Pub/Sub topic for the journal worker.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// NewPubSubPublisher creates a publisher for cfg.Topic.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	publisher := client.Publisher(cfg.Topic)
	// Events of one session stay in order.
	publisher.EnableMessageOrdering = true

	return &PubSubPublisher{
		client:    client,
		publisher: publisher,
		topic:     cfg.Topic,
		logger:    cfg.Logger,
	}, nil
}

// Publish sends e and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := Encode(e)
	if err != nil {
		return err
	}

	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		p.publisher.ResumePublish(msg.OrderingKey)
		return fmt.Errorf("publishing %s: %w", e.Type, err)
	}

	p.logger.Debug().
		Str("message_id", id).
		Str("topic", p.topic).
		Str("event_type", string(e.Type)).
		Str("session_id", e.SessionID).
		Msg("event published")
	return nil
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

// Encode builds the Pub/Sub message for e, ordered by session.
func Encode(e Event) (*pubsub.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding event: %w", err)
	}
	return &pubsub.Message{
		Data:        data,
		OrderingKey: e.SessionID,
		Attributes: map[string]string{
			"event_type": string(e.Type),
			"session_id": e.SessionID,
		},
	}, nil
}

var _ Publisher = (*PubSubPublisher)(nil)

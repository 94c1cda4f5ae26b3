// Package events carries navigation lifecycle events to the live status hub
// and the Pub/Sub event bus.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names a navigation lifecycle event.
type Type string

const (
	TypeStarted       Type = "navigation.started"
	TypeStepCompleted Type = "navigation.step_completed"
	TypeArrived       Type = "navigation.arrived"
	TypeStopped       Type = "navigation.stopped"
	TypeRefreshed     Type = "navigation.refreshed"
)

// ErrInvalidEvent is returned when decoding an event without a type or session.
var ErrInvalidEvent = errors.New("invalid event")

// Event is one lifecycle transition of a navigation session.
type Event struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	SessionID   string    `json:"session_id"`
	StepIndex   int       `json:"step_index"`
	StepCount   int       `json:"step_count"`
	Instruction string    `json:"instruction,omitempty"`
	Lat         float64   `json:"lat,omitempty"`
	Lon         float64   `json:"lon,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// HasPosition reports whether the event carries the fix that caused it.
// Lifecycle events such as started and stopped do not.
func (e Event) HasPosition() bool {
	return e.Lat != 0 || e.Lon != 0
}

// New creates an event with a fresh ID.
func New(t Type, sessionID string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		SessionID:  sessionID,
		OccurredAt: at.UTC(),
	}
}

// Decode parses a JSON event and checks the required fields.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if e.Type == "" || e.SessionID == "" {
		return Event{}, fmt.Errorf("%w: type %q session %q", ErrInvalidEvent, e.Type, e.SessionID)
	}
	return e, nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

// Publish sends e to each publisher in order.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) error { return nil }

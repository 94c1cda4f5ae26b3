// Package journal keeps the history of navigation events per session and
// summarizes trips from it.
package journal

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/breatheroute/wayfinder/internal/events"
)

// ErrTripNotFound is returned when a session has no recorded events.
var ErrTripNotFound = errors.New("trip not found")

// Repository stores navigation events.
type Repository interface {
	// Record stores e. Recording the same event ID twice is a no-op, so
	// redelivered messages are safe.
	Record(ctx context.Context, e events.Event) error

	// ListBySession returns the session's events oldest first.
	ListBySession(ctx context.Context, sessionID string) ([]events.Event, error)
}

// Status is the final state of a trip.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusArrived    Status = "arrived"
	StatusStopped    Status = "stopped"
)

// Trip summarizes one session's journal.
type Trip struct {
	SessionID      string        `json:"sessionId"`
	Status         Status        `json:"status"`
	StartedAt      time.Time     `json:"startedAt"`
	EndedAt        *time.Time    `json:"endedAt,omitempty"`
	Duration       time.Duration `json:"-"`
	DurationSecs   float64       `json:"durationSeconds,omitempty"`
	StepCount      int           `json:"stepCount"`
	StepsCompleted int           `json:"stepsCompleted"`
	Refreshes      int           `json:"refreshes"`
	Events         int           `json:"events"`
}

// Summarize builds a Trip from a session's events. Events are ordered by
// occurrence first; a start or refresh resets progress.
func Summarize(sessionID string, evs []events.Event) (*Trip, error) {
	if len(evs) == 0 {
		return nil, ErrTripNotFound
	}

	sorted := make([]events.Event, len(evs))
	copy(sorted, evs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})

	trip := &Trip{
		SessionID: sessionID,
		Status:    StatusInProgress,
		StartedAt: sorted[0].OccurredAt,
		Events:    len(sorted),
	}

	for _, e := range sorted {
		if e.StepCount > trip.StepCount {
			trip.StepCount = e.StepCount
		}

		switch e.Type {
		case events.TypeStarted:
			trip.StartedAt = e.OccurredAt
			trip.Status = StatusInProgress
			trip.EndedAt = nil
			trip.StepsCompleted = 0
		case events.TypeRefreshed:
			trip.Refreshes++
			trip.StepCount = e.StepCount
			trip.StepsCompleted = 0
		case events.TypeStepCompleted:
			// StepIndex is the step now being followed.
			trip.StepsCompleted = max(trip.StepsCompleted, e.StepIndex)
		case events.TypeArrived:
			trip.Status = StatusArrived
			trip.EndedAt = timePtr(e.OccurredAt)
			trip.StepsCompleted = trip.StepCount
		case events.TypeStopped:
			if trip.Status != StatusArrived {
				trip.Status = StatusStopped
			}
			trip.EndedAt = timePtr(e.OccurredAt)
		}
	}

	if trip.EndedAt != nil {
		trip.Duration = trip.EndedAt.Sub(trip.StartedAt)
		trip.DurationSecs = trip.Duration.Seconds()
	}
	return trip, nil
}

// Summary loads and summarizes a session from repo.
func Summary(ctx context.Context, repo Repository, sessionID string) (*Trip, error) {
	evs, err := repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Summarize(sessionID, evs)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

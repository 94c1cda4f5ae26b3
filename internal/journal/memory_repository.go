package journal

import (
	"context"
	"sort"
	"sync"

	"github.com/breatheroute/wayfinder/internal/events"
)

// InMemoryRepository is an in-memory implementation of Repository.
// It backs the worker when no database is configured, and tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	seen     map[string]bool
	sessions map[string][]events.Event
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		seen:     make(map[string]bool),
		sessions: make(map[string][]events.Event),
	}
}

// Record stores e once per event ID.
func (r *InMemoryRepository) Record(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen[e.ID] {
		return nil
	}
	r.seen[e.ID] = true
	r.sessions[e.SessionID] = append(r.sessions[e.SessionID], e)
	return nil
}

// ListBySession returns a copy of the session's events, oldest first.
func (r *InMemoryRepository) ListBySession(_ context.Context, sessionID string) ([]events.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	evs := make([]events.Event, len(r.sessions[sessionID]))
	copy(evs, r.sessions[sessionID])
	sort.SliceStable(evs, func(i, j int) bool {
		return evs[i].OccurredAt.Before(evs[j].OccurredAt)
	})
	return evs, nil
}

var _ Repository = (*InMemoryRepository)(nil)

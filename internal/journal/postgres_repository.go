package journal

import (
	"context"
	"fmt"

	"github.com/breatheroute/wayfinder/internal/database"
	"github.com/breatheroute/wayfinder/internal/events"
)

// Schema creates the journal table. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS navigation_events (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	step_index  INTEGER NOT NULL DEFAULT 0,
	step_count  INTEGER NOT NULL DEFAULT 0,
	instruction TEXT NOT NULL DEFAULT '',
	lat         DOUBLE PRECISION,
	lon         DOUBLE PRECISION,
	occurred_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS navigation_events_session_idx
	ON navigation_events (session_id, occurred_at);
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	db database.Querier
}

// NewPostgresRepository creates a journal backed by db.
func NewPostgresRepository(db database.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate applies Schema.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

// Record inserts e, ignoring an event ID that is already stored.
func (r *PostgresRepository) Record(ctx context.Context, e events.Event) error {
	// Events without a fix store NULL coordinates.
	var lat, lon any
	if e.HasPosition() {
		lat, lon = e.Lat, e.Lon
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO navigation_events
			(id, session_id, event_type, step_index, step_count, instruction, lat, lon, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.SessionID, string(e.Type), e.StepIndex, e.StepCount, e.Instruction, lat, lon, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("record event %s: %w", e.ID, err)
	}
	return nil
}

// ListBySession returns the session's events oldest first.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]events.Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, event_type, step_index, step_count, instruction, lat, lon, occurred_at
		FROM navigation_events
		WHERE session_id = $1
		ORDER BY occurred_at, recorded_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var evs []events.Event
	for rows.Next() {
		var (
			e         events.Event
			eventType string
			lat, lon  *float64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &eventType, &e.StepIndex, &e.StepCount, &e.Instruction, &lat, &lon, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = events.Type(eventType)
		if lat != nil {
			e.Lat = *lat
		}
		if lon != nil {
			e.Lon = *lon
		}
		evs = append(evs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return evs, nil
}

var _ Repository = (*PostgresRepository)(nil)

package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/jobpipe/internal/worker/domain"
)

// Schema creates the archive table. Redelivered events hit the unique key
// and are dropped.
const Schema = `
CREATE TABLE IF NOT EXISTS job_events (
	id            BIGSERIAL PRIMARY KEY,
	job_id        TEXT        NOT NULL,
	event_type    TEXT        NOT NULL,
	status        TEXT        NOT NULL,
	attempts      INTEGER     NOT NULL DEFAULT 1,
	progress      INTEGER     NOT NULL DEFAULT 0,
	error_id      TEXT        NOT NULL DEFAULT '',
	error_message TEXT        NOT NULL DEFAULT '',
	occurred_at   TIMESTAMPTZ NOT NULL,
	archived_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (job_id, event_type, occurred_at)
);
CREATE INDEX IF NOT EXISTS job_events_job_id_idx ON job_events (job_id, occurred_at);
`

const insertEventQuery = `
	INSERT INTO job_events (job_id, event_type, status, attempts, progress, error_id, error_message, occurred_at)
	VALUES (:job_id, :event_type, :status, :attempts, :progress, :error_id, :error_message, :occurred_at)
	ON CONFLICT (job_id, event_type, occurred_at) DO NOTHING
`

const listEventsQuery = `
	SELECT job_id, event_type, status, attempts, progress, error_id, error_message, occurred_at
	FROM job_events
	WHERE job_id = $1
	ORDER BY occurred_at, id
`

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the archive table if it is missing.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create job_events table: %w", err)
	}
	return nil
}

// InsertEvent archives one event. It reports whether a row was written; an
// already archived event is not an error.
func (s *Storage) InsertEvent(ctx context.Context, event domain.JobEvent) (bool, error) {
	result, err := s.db.NamedExecContext(ctx, insertEventQuery, event)
	if err != nil {
		return false, fmt.Errorf("failed to insert job event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		s.logger.Debug("Job event already archived",
			slog.String("job_id", event.JobID),
			slog.String("event_type", event.EventType),
		)
	}
	return rows > 0, nil
}

// ListEvents returns the archived events of a job in occurrence order.
func (s *Storage) ListEvents(ctx context.Context, jobID string) ([]domain.JobEvent, error) {
	var events []domain.JobEvent
	if err := s.db.SelectContext(ctx, &events, listEventsQuery, jobID); err != nil {
		return nil, fmt.Errorf("failed to list job events: %w", err)
	}
	return events, nil
}

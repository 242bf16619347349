package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobpipe/internal/worker/domain"
)

// storeTimeout bounds a single archive write.
const storeTimeout = 5 * time.Second

// processEvent archives one event. Storage failures are treated as transient.
func (w *Worker) processEvent(ctx context.Context, event domain.JobEvent) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	inserted, err := w.storage.InsertEvent(ctx, event)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("archive %s event of job %s: %w", event.EventType, event.JobID, err))
	}

	w.logger.Info("Job event archived",
		slog.String("job_id", event.JobID),
		slog.String("event_type", event.EventType),
		slog.String("status", event.Status),
		slog.Bool("duplicate", !inserted),
	)
	return nil
}

// Package jobs exposes the job event archive written by the worker service.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobpipe/internal/apperr"
	"github.com/cuongbtq/jobpipe/internal/container"
	"github.com/cuongbtq/jobpipe/internal/database"
	"github.com/cuongbtq/jobpipe/internal/job"
	"github.com/cuongbtq/jobpipe/internal/usecase"
	"github.com/cuongbtq/jobpipe/internal/validation"
	"github.com/cuongbtq/jobpipe/internal/worker/domain"
	"github.com/cuongbtq/jobpipe/internal/worker/storage"
)

// Events is the registry name of the archive lookup.
const Events = "jobEvents"

// ErrArchiveUnavailable is returned when PostgreSQL is not connected.
var ErrArchiveUnavailable = errors.New("job event archive requires a postgres connection")

// Module registers the archive use cases.
type Module struct{}

func (Module) Register(r *usecase.Registry) error {
	if err := r.Register(Events, NewEvents); err != nil {
		return err
	}
	return r.RegisterRules(Events, usecase.Rules{
		Data: validation.Schema{
			"jobId": {Type: validation.TypeString, Rules: "min=1,max=128"},
		},
	})
}

type eventsUseCase struct {
	conns  database.Connections
	logger *slog.Logger
}

// NewEvents lists the archived lifecycle events of one job.
func NewEvents(c *container.Container) usecase.UseCase {
	return &eventsUseCase{conns: c.Connections(), logger: c.Logger}
}

func (u *eventsUseCase) Run(ctx context.Context, j *job.Job) (usecase.Response, error) {
	pg := u.conns.Postgres()
	if pg == nil {
		return usecase.Response{}, ErrArchiveUnavailable
	}

	jobID, _ := j.Data()["jobId"].(string)
	events, err := storage.NewStorage(pg.GetDB(), u.logger).ListEvents(ctx, jobID)
	if err != nil {
		return usecase.Response{}, err
	}
	if len(events) == 0 {
		return usecase.Response{}, apperr.NotFound("No events archived for this job.")
	}

	return usecase.Response{
		Data: map[string]any{
			"jobId":  jobID,
			"events": toMaps(events),
		},
		Metadata: map[string]any{
			"count": len(events),
		},
	}, nil
}

func toMaps(events []domain.JobEvent) []map[string]any {
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		m := map[string]any{
			"type":       e.EventType,
			"status":     e.Status,
			"attempts":   e.Attempts,
			"progress":   e.Progress,
			"occurredAt": e.OccurredAt.UTC().Format(time.RFC3339Nano),
		}
		if e.ErrorID != "" {
			m["errorId"] = e.ErrorID
		}
		if e.Error != "" {
			m["error"] = e.Error
		}
		out = append(out, m)
	}
	return out
}

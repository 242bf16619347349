// Package report forwards unexpected failures to an external fault tracker.
package report

import (
	"context"
	"log/slog"
)

// Scope is the request context attached to a report.
type Scope struct {
	CorrelationID string
	JobID         string
	User          map[string]any
	Meta          map[string]any
	Data          map[string]any
}

// Reporter captures a non-operational error. Implementations must not block
// the request for long and must not fail it.
type Reporter interface {
	Report(ctx context.Context, err error, scope Scope)
}

// Nop discards every report.
type Nop struct{}

func (Nop) Report(context.Context, error, Scope) {}

// Logging writes reports to a logger. It stands in for a fault tracker when
// none is configured.
type Logging struct {
	Logger *slog.Logger
}

func (l Logging) Report(ctx context.Context, err error, scope Scope) {
	l.Logger.LogAttrs(ctx, slog.LevelDebug, "Fault report skipped, no tracker configured",
		slog.String("correlation_id", scope.CorrelationID),
		slog.String("job_id", scope.JobID),
		slog.String("error", err.Error()),
	)
}

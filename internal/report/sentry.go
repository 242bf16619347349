package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryOptions configures the Sentry reporter.
type SentryOptions struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
	FlushTimeout     time.Duration
	// Transport overrides the HTTP transport, used by tests.
	Transport sentry.Transport
}

// Sentry reports errors to Sentry. Every report runs on a clone of the base
// hub so concurrent requests never share a scope.
type Sentry struct {
	hub          *sentry.Hub
	flushTimeout time.Duration
}

// NewSentry creates a Sentry reporter. The DSN is required.
func NewSentry(opts SentryOptions) (*Sentry, error) {
	if opts.DSN == "" {
		return nil, errors.New("sentry dsn is required")
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		TracesSampleRate: opts.TracesSampleRate,
		Transport:        opts.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}

	flush := opts.FlushTimeout
	if flush <= 0 {
		flush = 2 * time.Second
	}

	return &Sentry{
		hub:          sentry.NewHub(client, sentry.NewScope()),
		flushTimeout: flush,
	}, nil
}

func (s *Sentry) Report(_ context.Context, err error, scope Scope) {
	hub := s.hub.Clone()
	hub.WithScope(func(sc *sentry.Scope) {
		if scope.CorrelationID != "" {
			sc.SetTag("correlation_id", scope.CorrelationID)
		}
		if scope.JobID != "" {
			sc.SetTag("job_id", scope.JobID)
		}
		if id, ok := scope.User["id"].(string); ok {
			sc.SetUser(sentry.User{ID: id})
		}
		if len(scope.User) > 0 {
			sc.SetContext("user", sentry.Context(scope.User))
		}
		if len(scope.Meta) > 0 {
			sc.SetContext("meta", sentry.Context(scope.Meta))
		}
		if len(scope.Data) > 0 {
			sc.SetContext("data", sentry.Context(scope.Data))
		}
		hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent.
func (s *Sentry) Flush() bool {
	return s.hub.Flush(s.flushTimeout)
}

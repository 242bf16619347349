package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobpipe/internal/job"
)

// Sink delivers an encoded message. *rabbitmq.Client implements it.
type Sink interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Publisher forwards job events to a Sink. Delivery failures are logged and
// never affect the request.
type Publisher struct {
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher creates a publisher. A non-positive timeout defaults to two
// seconds.
func NewPublisher(sink Sink, timeout time.Duration, logger *slog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Publisher{sink: sink, timeout: timeout, logger: logger}
}

// Subscriber returns the job.Subscriber to attach to every new job.
func (p *Publisher) Subscriber() job.Subscriber {
	return p.Publish
}

// Publish sends one event.
func (p *Publisher) Publish(e job.Event) {
	body, err := json.Marshal(NewMessage(e))
	if err != nil {
		p.logger.Error("Failed to encode job event",
			slog.String("job_id", e.JobID),
			slog.Any("error", err),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.sink.PublishWithRetry(ctx, body, ContentType); err != nil {
		p.logger.Warn("Failed to publish job event",
			slog.String("job_id", e.JobID),
			slog.String("type", string(e.Type)),
			slog.Any("error", err),
		)
		return
	}

	p.logger.Debug("Job event published",
		slog.String("job_id", e.JobID),
		slog.String("type", string(e.Type)),
	)
}

package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/jobpipe/internal/events"
	"github.com/cuongbtq/jobpipe/internal/job"
)

// JobEvent is one archived lifecycle transition.
type JobEvent struct {
	JobID      string    `db:"job_id"`
	EventType  string    `db:"event_type"`
	Status     string    `db:"status"`
	Attempts   int       `db:"attempts"`
	Progress   int       `db:"progress"`
	ErrorID    string    `db:"error_id"`
	Error      string    `db:"error_message"`
	OccurredAt time.Time `db:"occurred_at"`
}

// ParseJobEvent decodes a broker message body.
func ParseJobEvent(body []byte) (JobEvent, error) {
	var msg events.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return JobEvent{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.JobID == "" {
		return JobEvent{}, fmt.Errorf("%w: missing jobId", ErrInvalidMessage)
	}

	switch job.EventType(msg.Type) {
	case job.EventProgress, job.EventCompleted, job.EventFailed:
	default:
		return JobEvent{}, fmt.Errorf("%w: %q", ErrUnknownEventType, msg.Type)
	}

	occurred := msg.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	return JobEvent{
		JobID:      msg.JobID,
		EventType:  msg.Type,
		Status:     msg.Status,
		Attempts:   msg.Attempts,
		Progress:   msg.Progress,
		ErrorID:    msg.ErrorID,
		Error:      msg.Error,
		OccurredAt: occurred.UTC(),
	}, nil
}

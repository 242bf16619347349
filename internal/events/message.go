// Package events publishes job lifecycle transitions to the message broker.
package events

import (
	"time"

	"github.com/cuongbtq/jobpipe/internal/job"
)

// ContentType of published messages.
const ContentType = "application/json"

// Message is the wire form of a job lifecycle event.
type Message struct {
	Type       string    `json:"type"`
	JobID      string    `json:"jobId"`
	Attempts   int       `json:"attempts"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	ErrorID    string    `json:"errorId,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewMessage converts a job event.
func NewMessage(e job.Event) Message {
	m := Message{
		Type:       string(e.Type),
		JobID:      e.JobID,
		Attempts:   e.Attempts,
		Status:     string(e.Status),
		Progress:   e.Progress,
		ErrorID:    e.ErrorID,
		OccurredAt: e.OccurredAt,
	}
	if e.Err != nil {
		m.Error = e.Err.Error()
	}
	return m
}

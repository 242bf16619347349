package job

import (
	"fmt"
	"log/slog"
	"time"
)

// EventType names a lifecycle notification.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is delivered to every subscriber of a Job.
type Event struct {
	Type       EventType
	JobID      string
	Attempts   int
	Status     Status
	Progress   int
	ErrorID    string
	Err        error
	Meta       map[string]any
	OccurredAt time.Time
}

// Subscriber receives lifecycle events. Subscribers run synchronously on the
// goroutine performing the transition, after the job state is updated.
type Subscriber func(Event)

// Subscribe adds fn to the subscribers. Every subscriber receives every event
// in registration order.
func (j *Job) Subscribe(fn Subscriber) {
	if fn == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.subscribers = append(j.subscribers, fn)
}

// MarkInProgress moves the job to in_progress, optionally updating the progress
// first, logs and notifies subscribers.
func (j *Job) MarkInProgress(progress ...int) error {
	j.mu.Lock()
	if j.status.Terminal() {
		status := j.status
		j.mu.Unlock()
		return fmt.Errorf("%w: cannot mark %s job in progress", ErrTerminal, status)
	}
	if len(progress) > 0 {
		j.progress = clampProgress(progress[0])
	}
	if j.status == StatusCreated {
		j.meta[MetaStartedAt] = now().UnixMilli()
	}
	j.status = StatusInProgress
	j.meta[MetaStatus] = string(StatusInProgress)
	evt := j.eventLocked(EventProgress, "", nil)
	subs := j.subscribersLocked()
	j.mu.Unlock()

	j.logger.Info("Job in progress",
		slog.String("job_id", j.id),
		slog.Int("progress", evt.Progress),
		slog.Int("attempts", evt.Attempts),
	)
	notify(subs, evt)
	return nil
}

// MarkCompleted moves the job to completed, logs and notifies subscribers.
func (j *Job) MarkCompleted() error {
	j.mu.Lock()
	if j.status.Terminal() {
		status := j.status
		j.mu.Unlock()
		return fmt.Errorf("%w: cannot complete %s job", ErrTerminal, status)
	}
	j.status = StatusCompleted
	j.meta[MetaStatus] = string(StatusCompleted)
	j.meta[MetaCompletedAt] = now().UnixMilli()
	evt := j.eventLocked(EventCompleted, "", nil)
	subs := j.subscribersLocked()
	j.mu.Unlock()

	j.logger.Info("Job completed",
		slog.String("job_id", j.id),
		slog.Int("attempts", evt.Attempts),
	)
	notify(subs, evt)
	return nil
}

// MarkFailed records the failure under errorID, logs at error level and
// notifies subscribers.
func (j *Job) MarkFailed(errorID string, cause error) error {
	j.mu.Lock()
	if j.status.Terminal() {
		status := j.status
		j.mu.Unlock()
		return fmt.Errorf("%w: cannot fail %s job", ErrTerminal, status)
	}
	j.status = StatusFailed
	j.meta[MetaStatus] = string(StatusFailed)
	j.meta[MetaErrorID] = errorID
	j.meta[MetaFailedAt] = now().UnixMilli()
	if cause != nil {
		j.meta[MetaError] = cause.Error()
	}
	evt := j.eventLocked(EventFailed, errorID, cause)
	subs := j.subscribersLocked()
	j.mu.Unlock()

	attrs := []any{
		slog.String("job_id", j.id),
		slog.String("error_id", errorID),
		slog.Int("attempts", evt.Attempts),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	j.logger.Error("Job failed", attrs...)
	notify(subs, evt)
	return nil
}

func (j *Job) eventLocked(t EventType, errorID string, cause error) Event {
	return Event{
		Type:       t,
		JobID:      j.id,
		Attempts:   j.attempts,
		Status:     j.status,
		Progress:   j.progress,
		ErrorID:    errorID,
		Err:        cause,
		Meta:       cloneMap(j.meta),
		OccurredAt: now().UTC(),
	}
}

func (j *Job) subscribersLocked() []Subscriber {
	return append([]Subscriber(nil), j.subscribers...)
}

func notify(subs []Subscriber, evt Event) {
	for _, fn := range subs {
		e := evt
		e.Meta = cloneMap(evt.Meta)
		fn(e)
	}
}

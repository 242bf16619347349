package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *captureTransport) Configure(sentry.ClientOptions) {}
func (t *captureTransport) SendEvent(e *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}
func (t *captureTransport) Flush(time.Duration) bool              { return true }
func (t *captureTransport) FlushWithContext(context.Context) bool { return true }
func (t *captureTransport) Close()                                {}

func TestNewSentry_RequiresDSN(t *testing.T) {
	s, err := NewSentry(SentryOptions{})
	require.Error(t, err)
	assert.Nil(t, s)
}

func TestSentry_Report(t *testing.T) {
	transport := &captureTransport{}
	s, err := NewSentry(SentryOptions{
		DSN:         "https://public@sentry.example.com/1",
		Environment: "test",
		Transport:   transport,
	})
	require.NoError(t, err)

	s.Report(context.Background(), errors.New("database exploded"), Scope{
		CorrelationID: "job-1",
		JobID:         "job-1",
		User:          map[string]any{"id": "u-1"},
		Meta:          map[string]any{"url": "/api/v1/example"},
		Data:          map[string]any{"foo": "bar"},
	})
	s.Report(context.Background(), errors.New("second"), Scope{CorrelationID: "job-2"})
	assert.True(t, s.Flush())

	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Len(t, transport.events, 2)

	first := transport.events[0]
	assert.Equal(t, "job-1", first.Tags["correlation_id"])
	assert.Equal(t, "job-1", first.Tags["job_id"])
	assert.Equal(t, "u-1", first.User.ID)
	assert.Equal(t, "/api/v1/example", first.Contexts["meta"]["url"])
	assert.Equal(t, "bar", first.Contexts["data"]["foo"])
	require.NotEmpty(t, first.Exception)
	assert.Equal(t, "database exploded", first.Exception[len(first.Exception)-1].Value)

	second := transport.events[1]
	assert.Equal(t, "job-2", second.Tags["correlation_id"])
	assert.NotContains(t, second.Tags, "job_id")
	assert.Empty(t, second.User.ID)
	assert.NotContains(t, second.Contexts, "data")
}

// Package job implements the per-request context object handed to use cases.
//
// A Job owns the request payload, provenance metadata, the authenticated user,
// the attempt counter and the lifecycle state. Every accessor returns an
// independent copy and every setter stores one, so no caller ever aliases the
// internal state.
package job

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state recorded under the "status" meta key.
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Meta keys written by the pipeline.
const (
	MetaTimestamp   = "timestamp"
	MetaMethod      = "method"
	MetaURL         = "url"
	MetaIP          = "ip"
	MetaUserAgent   = "userAgent"
	MetaReferer     = "referer"
	MetaOrigin      = "origin"
	MetaStatus      = "status"
	MetaErrorID     = "errorId"
	MetaError       = "error"
	MetaStartedAt   = "startedAt"
	MetaCompletedAt = "completedAt"
	MetaFailedAt    = "failedAt"
)

var (
	// ErrUserMissing is returned by User before an authenticated principal is set.
	ErrUserMissing = errors.New("user data is missing in job context")

	// ErrTerminal is returned by lifecycle transitions on a completed or failed job.
	ErrTerminal = errors.New("job is already in a terminal state")

	// ErrAttemptsDecrease is returned when an attempt count lower than the current one is set.
	ErrAttemptsDecrease = errors.New("job attempts cannot decrease")
)

// Options seeds a new Job.
type Options struct {
	ID                string
	Attempts          int
	Data              map[string]any
	Meta              map[string]any
	User              *User
	RecaptchaResponse string
	Logger            *slog.Logger
}

// Job is the context of a single request. It is owned by the request that
// created it and must not be retained after the response is sent.
type Job struct {
	mu sync.Mutex

	id                string
	attempts          int
	data              map[string]any
	meta              map[string]any
	user              *User
	progress          int
	recaptchaResponse string
	status            Status

	subscribers []Subscriber
	logger      *slog.Logger
}

// New creates a Job in the created state. A missing id is generated and the
// attempt count is at least one.
func New(opts Options) *Job {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	j := &Job{
		id:                id,
		attempts:          attempts,
		data:              cloneMap(opts.Data),
		meta:              cloneMap(opts.Meta),
		recaptchaResponse: opts.RecaptchaResponse,
		status:            StatusCreated,
		logger:            logger,
	}
	if opts.User != nil {
		u := opts.User.clone()
		j.user = &u
	}
	j.meta[MetaStatus] = string(StatusCreated)
	return j
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Attempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts
}

// SetAttempts records a retry count. Attempts never decrease.
func (j *Job) SetAttempts(attempts int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if attempts < j.attempts {
		return fmt.Errorf("%w: %d < %d", ErrAttemptsDecrease, attempts, j.attempts)
	}
	j.attempts = attempts
	return nil
}

// Data returns a copy of the payload.
func (j *Job) Data() map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	return cloneMap(j.data)
}

// SetData merges data into the payload; keys in data overwrite existing ones.
func (j *Job) SetData(data map[string]any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.data = merge(j.data, data)
}

// Meta returns a copy of the metadata.
func (j *Job) Meta() map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	return cloneMap(j.meta)
}

// SetMeta replaces the metadata. The lifecycle status is kept.
func (j *Job) SetMeta(meta map[string]any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.meta = cloneMap(meta)
	j.meta[MetaStatus] = string(j.status)
}

// UpdateMeta merges meta into the metadata.
func (j *Job) UpdateMeta(meta map[string]any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.meta = merge(j.meta, meta)
	j.meta[MetaStatus] = string(j.status)
}

// User returns the authenticated principal, or ErrUserMissing.
func (j *Job) User() (User, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.user == nil {
		return User{}, ErrUserMissing
	}
	return j.user.clone(), nil
}

// HasUser reports whether a principal was set.
func (j *Job) HasUser() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.user != nil
}

func (j *Job) SetUser(user User) {
	j.mu.Lock()
	defer j.mu.Unlock()
	u := user.clone()
	j.user = &u
}

// PublicUser returns the public projection of the user, or nil when unset.
func (j *Job) PublicUser() map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.user == nil {
		return nil
	}
	return j.user.Public()
}

func (j *Job) Progress() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// UpdateProgress sets the progress, clamped to [0, 100].
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = clampProgress(progress)
}

func (j *Job) RecaptchaResponse() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.recaptchaResponse
}

func (j *Job) SetRecaptchaResponse(token string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recaptchaResponse = token
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// now is replaced in tests.
var now = time.Now

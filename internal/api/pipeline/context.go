// Package pipeline implements the request stages every API route runs
// through: capture, job creation, validation, use case dispatch and error
// rendering. Stages fail by attaching an error to the gin context and
// aborting; only ErrorHandler writes failure responses.
package pipeline

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/jobpipe/internal/job"
)

// Context keys.
const (
	keyEnvelope  = "pipeline.envelope"
	keyRequestID = "pipeline.request_id"
	keyJob       = "pipeline.job"
	keyUser      = "pipeline.user"
)

// Response headers.
const (
	HeaderJobID       = "x-job-id"
	HeaderJobAttempts = "x-job-attempts"
	HeaderJobProgress = "x-job-progress"
)

// RecaptchaField is the payload key the reCAPTCHA token is extracted from.
const RecaptchaField = "g-recaptcha-response"

// Envelope is the normalized request produced by RequestCapture.
type Envelope struct {
	ID                string
	Attempts          int
	Payload           map[string]any
	RecaptchaResponse string
	Meta              map[string]any
	User              *job.User
}

// EnvelopeFrom returns the envelope captured for the request.
func EnvelopeFrom(c *gin.Context) (*Envelope, bool) {
	v, ok := c.Get(keyEnvelope)
	if !ok {
		return nil, false
	}
	env, ok := v.(*Envelope)
	return env, ok
}

// JobFrom returns the job created for the request.
func JobFrom(c *gin.Context) (*job.Job, bool) {
	v, ok := c.Get(keyJob)
	if !ok {
		return nil, false
	}
	j, ok := v.(*job.Job)
	return j, ok
}

// SetUser records the authenticated principal. Authentication middleware
// calls it before JobCreation runs.
func SetUser(c *gin.Context, u job.User) {
	c.Set(keyUser, u)
}

func userFrom(c *gin.Context) *job.User {
	v, ok := c.Get(keyUser)
	if !ok {
		return nil
	}
	u, ok := v.(job.User)
	if !ok {
		return nil
	}
	return &u
}

// abort records err for ErrorHandler and stops the chain.
func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// now is replaced in tests.
var now = time.Now

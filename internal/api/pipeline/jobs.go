package pipeline

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/jobpipe/internal/apperr"
	"github.com/cuongbtq/jobpipe/internal/job"
)

// JobCreation builds the request's Job from the captured envelope, attaches
// subscribers and advertises the job on the response headers.
func JobCreation(logger *slog.Logger, subscribers ...job.Subscriber) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := JobFrom(c); ok {
			c.Next()
			return
		}

		env, ok := EnvelopeFrom(c)
		if !ok {
			abort(c, fmt.Errorf("%w: request capture must run before job creation", apperr.ErrIllegalStageOrder))
			return
		}

		j := job.New(job.Options{
			ID:                env.ID,
			Attempts:          env.Attempts,
			Data:              env.Payload,
			Meta:              env.Meta,
			User:              env.User,
			RecaptchaResponse: env.RecaptchaResponse,
			Logger:            logger,
		})
		for _, s := range subscribers {
			j.Subscribe(s)
		}
		c.Set(keyJob, j)

		c.Header(HeaderJobID, j.ID())
		c.Header(HeaderJobAttempts, strconv.Itoa(j.Attempts()))
		c.Header(HeaderJobProgress, strconv.Itoa(j.Progress()))

		c.Next()
	}
}

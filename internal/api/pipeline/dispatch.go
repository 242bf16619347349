package pipeline

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/jobpipe/internal/apperr"
	"github.com/cuongbtq/jobpipe/internal/container"
	"github.com/cuongbtq/jobpipe/internal/job"
	"github.com/cuongbtq/jobpipe/internal/usecase"
)

// UseCaseSource resolves use case factories by name.
type UseCaseSource interface {
	UseCase(name string) (usecase.Factory, bool)
}

// SuccessResponse is the body of every successful API response.
type SuccessResponse struct {
	JobID    string         `json:"jobId"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
	User     map[string]any `json:"user,omitempty"`
}

// Dispatch runs the use case registered under name and renders its result
// with status 200. The use case is built per request from the shared
// container.
func Dispatch(deps *container.Container, useCases UseCaseSource, name string) gin.HandlerFunc {
	factory, found := useCases.UseCase(name)

	return func(c *gin.Context) {
		j, ok := JobFrom(c)
		if !ok {
			abort(c, fmt.Errorf("%w: job creation must run before use case dispatch", apperr.ErrIllegalStageOrder))
			return
		}
		if !found {
			abort(c, fmt.Errorf("use case %q: %w", name, apperr.ErrNotRegistered))
			return
		}

		resp, err := factory(deps).Run(c.Request.Context(), j)
		if err != nil {
			if !apperr.Classify(err).Operational() {
				err = apperr.WithStack(err)
			}
			abort(c, err)
			return
		}

		// ErrTerminal on a completed job means the use case settled it itself.
		// A job the use case failed cannot be reported as a success.
		if err := j.MarkCompleted(); err != nil && j.Status() == job.StatusFailed {
			abort(c, apperr.WithStack(fmt.Errorf("use case %q returned a result for a failed job: %w", name, err)))
			return
		}

		data := resp.Data
		if data == nil {
			data = map[string]any{}
		}

		c.Header(HeaderJobProgress, strconv.Itoa(j.Progress()))
		c.JSON(http.StatusOK, SuccessResponse{
			JobID:    j.ID(),
			Data:     data,
			Metadata: resp.Metadata,
			User:     j.PublicUser(),
		})
	}
}

package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/jobpipe/internal/apperr"
	"github.com/cuongbtq/jobpipe/internal/report"
	"github.com/cuongbtq/jobpipe/internal/validation"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status  string                  `json:"status"`
	Code    int                     `json:"code"`
	Name    string                  `json:"name"`
	Message string                  `json:"message"`
	ErrorID string                  `json:"errorId"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
	Stack   string                  `json:"stack,omitempty"`
}

// ErrorOptions configures ErrorHandler.
type ErrorOptions struct {
	Logger   *slog.Logger
	Reporter report.Reporter
	// Production hides internal messages and stacks from responses.
	Production bool
}

// ErrorHandler must be the outermost middleware. After the chain returns it
// renders the last recorded error, marks the job failed, logs the failure
// and reports unexpected errors.
func ErrorHandler(opts ErrorOptions) gin.HandlerFunc {
	if opts.Reporter == nil {
		opts.Reporter = report.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		handleError(c, c.Errors.Last().Err, opts)
	}
}

// Recovery converts panics into errors for ErrorHandler.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec any) {
		abort(c, apperr.FromPanic(rec, debug.Stack()))
	})
}

// NotFound is the fallback for unmatched routes.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		abort(c, apperr.NotFound("Route not found"))
	}
}

func handleError(c *gin.Context, err error, opts ErrorOptions) {
	ctx := c.Request.Context()
	cls := apperr.Classify(err)
	j, hasJob := JobFrom(c)
	errorID := correlationID(c)

	body := ErrorResponse{
		Status:  "error",
		Code:    cls.Status,
		Name:    cls.Name,
		Message: cls.Message,
		ErrorID: errorID,
		Errors:  cls.Errors,
	}

	if !cls.Operational() {
		if !opts.Production {
			if msg := err.Error(); msg != "" {
				body.Message = msg
			}
			body.Stack = apperr.Stack(err)
		}

		scope := report.Scope{CorrelationID: errorID}
		if hasJob {
			scope.JobID = j.ID()
			scope.User = j.PublicUser()
			scope.Meta = j.Meta()
			scope.Data = j.Data()
		}
		opts.Reporter.Report(ctx, err, scope)
	}

	if hasJob {
		// ErrTerminal: the use case already failed the job itself.
		_ = j.MarkFailed(errorID, err)
	}

	logFailure(ctx, c, opts.Logger, cls, err, errorID)

	if c.Writer.Written() {
		return
	}
	c.AbortWithStatusJSON(cls.Status, body)
}

func logFailure(ctx context.Context, c *gin.Context, logger *slog.Logger, cls apperr.Classification, err error, errorID string) {
	level := slog.LevelWarn
	if cls.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("correlation_id", errorID),
		slog.Int("status", cls.Status),
		slog.String("name", cls.Name),
		slog.String("error", err.Error()),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	}
	if j, ok := JobFrom(c); ok {
		attrs = append(attrs,
			slog.String("job_id", j.ID()),
			slog.Any("meta", j.Meta()),
		)
		if user := j.PublicUser(); user != nil {
			attrs = append(attrs, slog.Any("user", user))
		}
	}
	if stack := apperr.Stack(err); stack != "" {
		attrs = append(attrs, slog.String("stack", stack))
	}

	logger.LogAttrs(ctx, level, "Request failed", attrs...)
}

// correlationID is the job id, else the captured request id, else a fresh id.
// The request id is recorded before the body is parsed, so capture failures
// still reuse the client's x-job-id.
func correlationID(c *gin.Context) string {
	if j, ok := JobFrom(c); ok {
		return j.ID()
	}
	if env, ok := EnvelopeFrom(c); ok {
		return env.ID
	}
	if id := c.GetString(keyRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}

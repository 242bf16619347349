package example

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobpipe/internal/container"
	"github.com/cuongbtq/jobpipe/internal/job"
	"github.com/cuongbtq/jobpipe/internal/usecase"
	"github.com/cuongbtq/jobpipe/internal/validation"
)

// GetRules requires foo and bar as alphabetic strings.
func GetRules() usecase.Rules {
	return usecase.Rules{
		Data: validation.Schema{
			"foo": {Type: validation.TypeString, Rules: "alpha"},
			"bar": {Type: validation.TypeString, Rules: "alpha"},
		},
	}
}

type getUseCase struct {
	logger *slog.Logger
}

// NewGet echoes foo and bar back.
func NewGet(c *container.Container) usecase.UseCase {
	return &getUseCase{logger: c.Logger}
}

func (u *getUseCase) Run(ctx context.Context, j *job.Job) (usecase.Response, error) {
	data := j.Data()
	u.logger.InfoContext(ctx, "Example get", slog.String("job_id", j.ID()), slog.Any("data", data))

	return usecase.Response{
		Data: map[string]any{
			"message": fmt.Sprintf("Data received for foo: %v, bar: %v", data["foo"], data["bar"]),
		},
		Metadata: map[string]any{
			"attempts": j.Attempts(),
		},
	}, nil
}

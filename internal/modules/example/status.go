package example

import (
	"context"

	"github.com/cuongbtq/jobpipe/internal/container"
	"github.com/cuongbtq/jobpipe/internal/job"
	"github.com/cuongbtq/jobpipe/internal/usecase"
)

type statusUseCase struct {
	deps *container.Container
}

// NewStatus reports the live backends and their health.
func NewStatus(c *container.Container) usecase.UseCase {
	return &statusUseCase{deps: c}
}

func (u *statusUseCase) Run(ctx context.Context, _ *job.Job) (usecase.Response, error) {
	health := u.deps.HealthCheck(ctx)

	backends := make(map[string]any, len(health))
	for name, status := range health {
		backends[name] = status
	}

	return usecase.Response{
		Data: map[string]any{
			"backends": u.deps.Connections().Names(),
			"health":   backends,
		},
	}, nil
}

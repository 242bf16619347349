// Package usecase defines the contract business handlers implement and the
// registry the router resolves them from.
package usecase

import (
	"context"

	"github.com/cuongbtq/jobpipe/internal/container"
	"github.com/cuongbtq/jobpipe/internal/job"
	"github.com/cuongbtq/jobpipe/internal/validation"
)

// Response is the result of a use case. Data is always serialized; Metadata
// is omitted when empty.
type Response struct {
	Data     map[string]any
	Metadata map[string]any
}

// UseCase runs the business logic of one route.
type UseCase interface {
	Run(ctx context.Context, j *job.Job) (Response, error)
}

// Func adapts a function to UseCase.
type Func func(ctx context.Context, j *job.Job) (Response, error)

func (f Func) Run(ctx context.Context, j *job.Job) (Response, error) {
	return f(ctx, j)
}

// Factory builds a use case for one request from the shared container.
type Factory func(c *container.Container) UseCase

// Rules is the schema bundle applied before a use case runs. Nil sections
// are not checked.
type Rules struct {
	User              validation.Schema
	Attempts          validation.Schema
	Data              validation.Schema
	RecaptchaResponse validation.Schema
}

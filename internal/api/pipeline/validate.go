package pipeline

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/jobpipe/internal/apperr"
	"github.com/cuongbtq/jobpipe/internal/job"
	"github.com/cuongbtq/jobpipe/internal/usecase"
	"github.com/cuongbtq/jobpipe/internal/validation"
)

// RuleSource resolves rule bundles by name.
type RuleSource interface {
	Rules(name string) (*usecase.Rules, bool)
}

type section struct {
	schema func(r *usecase.Rules) validation.Schema
	value  func(j *job.Job) map[string]any
	fail   func(errs []validation.FieldError) error
}

// sections run in order; the first failing one stops the request. Sections
// without a schema are skipped.
var sections = []section{
	{
		schema: func(r *usecase.Rules) validation.Schema { return r.User },
		value: func(j *job.Job) map[string]any {
			u, err := j.User()
			if err != nil {
				return map[string]any{}
			}
			return u.Map()
		},
		fail: func([]validation.FieldError) error {
			return apperr.Unauthorized("User Validation failed.")
		},
	},
	{
		schema: func(r *usecase.Rules) validation.Schema { return r.Attempts },
		value: func(j *job.Job) map[string]any {
			return map[string]any{"attempts": j.Attempts()}
		},
		fail: func(errs []validation.FieldError) error {
			return apperr.BadRequest("Attempts Validation failed.", errs)
		},
	},
	{
		schema: func(r *usecase.Rules) validation.Schema { return r.Data },
		value:  func(j *job.Job) map[string]any { return j.Data() },
		fail: func(errs []validation.FieldError) error {
			return apperr.BadRequest("Data Validation failed.", errs)
		},
	},
	{
		schema: func(r *usecase.Rules) validation.Schema { return r.RecaptchaResponse },
		value: func(j *job.Job) map[string]any {
			return map[string]any{"recaptchaResponse": j.RecaptchaResponse()}
		},
		fail: func(errs []validation.FieldError) error {
			return apperr.BadRequest("Recaptcha Validation failed.", errs)
		},
	},
}

// Validation checks the job against the rule bundle registered under name:
// user, attempts, data and reCAPTCHA token, in that order.
func Validation(v *validation.Service, rules RuleSource, name string) gin.HandlerFunc {
	bundle, found := rules.Rules(name)

	return func(c *gin.Context) {
		j, ok := JobFrom(c)
		if !ok {
			abort(c, fmt.Errorf("%w: job creation must run before validation", apperr.ErrIllegalStageOrder))
			return
		}
		if !found {
			abort(c, fmt.Errorf("validation rules for use case %q: %w", name, apperr.ErrNotRegistered))
			return
		}

		if err := validate(c.Request.Context(), v, bundle, j); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

func validate(ctx context.Context, v *validation.Service, rules *usecase.Rules, j *job.Job) error {
	meta := j.Meta()
	for _, s := range sections {
		schema := s.schema(rules)
		if schema == nil {
			continue
		}
		errs, err := v.Validate(ctx, s.value(j), schema, meta)
		if err != nil {
			return apperr.WithStack(err)
		}
		if len(errs) > 0 {
			return s.fail(errs)
		}
	}
	return nil
}

// Package example is the reference business module: one read, one write and
// one status use case.
package example

import (
	"context"
	"strings"

	"github.com/cuongbtq/jobpipe/internal/usecase"
	"github.com/cuongbtq/jobpipe/internal/validation"
)

// Registry names.
const (
	Get    = "exampleGet"
	Create = "exampleCreate"
	Status = "exampleStatus"
)

// CheckKind is the custom check validating the optional kind of a record.
const CheckKind = "exampleKind"

// Kinds accepted by CheckKind.
var Kinds = []string{"basic", "premium"}

// Module registers the example use cases.
type Module struct {
	Validator *validation.Service
}

func (m Module) Register(r *usecase.Registry) error {
	if m.Validator != nil {
		m.Validator.Alias(CheckKind, checkKind)
	}

	if err := r.Register(Get, NewGet); err != nil {
		return err
	}
	if err := r.RegisterRules(Get, GetRules()); err != nil {
		return err
	}

	if err := r.Register(Create, NewCreate); err != nil {
		return err
	}
	if err := r.RegisterRules(Create, CreateRules()); err != nil {
		return err
	}

	if err := r.Register(Status, NewStatus); err != nil {
		return err
	}
	return r.RegisterRules(Status, usecase.Rules{})
}

// checkKind delegates to a nested schema so the error reads like any other
// rule failure.
func checkKind(ctx context.Context, value any, cc validation.CheckContext) []validation.FieldError {
	schema := validation.Schema{
		"kind": {Type: validation.TypeString, Rules: "oneof=" + joinKinds()},
	}
	errs, err := cc.Validator.Validate(ctx, map[string]any{"kind": value}, schema, cc.Meta)
	if err != nil {
		return []validation.FieldError{{Type: "check", Field: cc.Field, Message: err.Error()}}
	}
	for i := range errs {
		errs[i].Field = cc.Field
	}
	return errs
}

func joinKinds() string {
	return strings.Join(Kinds, " ")
}

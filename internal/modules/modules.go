// Package modules lists the business modules served by the API.
package modules

import (
	"github.com/cuongbtq/jobpipe/internal/modules/example"
	"github.com/cuongbtq/jobpipe/internal/modules/jobs"
	"github.com/cuongbtq/jobpipe/internal/usecase"
	"github.com/cuongbtq/jobpipe/internal/validation"
)

// All returns every module. Custom checks are registered on v.
func All(v *validation.Service) []usecase.Module {
	return []usecase.Module{
		example.Module{Validator: v},
		jobs.Module{},
	}
}

// Registry builds the registry of every module.
func Registry(v *validation.Service) (*usecase.Registry, error) {
	return usecase.Build(All(v)...)
}

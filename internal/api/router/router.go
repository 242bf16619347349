package router

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/jobpipe/internal/api/handler"
	"github.com/cuongbtq/jobpipe/internal/api/pipeline"
	"github.com/cuongbtq/jobpipe/internal/apperr"
	"github.com/cuongbtq/jobpipe/internal/config"
	"github.com/cuongbtq/jobpipe/internal/modules/example"
	"github.com/cuongbtq/jobpipe/internal/modules/jobs"
	"github.com/cuongbtq/jobpipe/internal/report"
)

// Route binds an HTTP endpoint to a use case and its validation rules.
type Route struct {
	Method  string
	Path    string
	UseCase string
	Rules   string
}

// V1Routes are served under /api/v1.
var V1Routes = []Route{
	{Method: http.MethodGet, Path: "/example", UseCase: example.Get, Rules: example.Get},
	{Method: http.MethodPost, Path: "/example", UseCase: example.Create, Rules: example.Create},
	{Method: http.MethodGet, Path: "/example/status", UseCase: example.Status, Rules: example.Status},
	{Method: http.MethodGet, Path: "/jobs/:jobId/events", UseCase: jobs.Events, Rules: jobs.Events},
}

// SetupRouter configures and returns the Gin router with all routes. Every
// route's use case and rules are resolved here, so a misnamed route fails
// startup instead of its first request.
func SetupRouter(deps *handler.Dependencies) (*gin.Engine, error) {
	if err := resolve(deps, V1Routes); err != nil {
		return nil, err
	}

	cfg := deps.Container.Config
	if cfg == nil {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = report.Nop{}
	}
	logger := deps.Container.Logger

	r := gin.New()

	// Middleware
	r.Use(pipeline.ErrorHandler(pipeline.ErrorOptions{
		Logger:     logger,
		Reporter:   reporter,
		Production: cfg.IsProduction(),
	}))
	r.Use(pipeline.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware(cfg.API.CORSOrigin))
	r.Use(pipeline.RequestCapture(pipeline.CaptureOptions{
		Prefix:       cfg.API.Prefix,
		Inputs:       inputs(cfg.API.Inputs),
		MaxBodyBytes: cfg.API.MaxBodyBytes,
	}))
	r.NoRoute(pipeline.NotFound())

	system := handler.NewSystemHandler(deps.Container)
	r.GET("/", system.Root)
	r.GET("/health", system.Health)

	// API v1 routes
	v1 := r.Group("/api/v1", pipeline.JobCreation(logger, deps.Subscribers...))
	{
		v1.GET("", system.VersionRoot("v1"))
		v1.GET("/", system.VersionRoot("v1"))

		for _, rt := range V1Routes {
			v1.Handle(rt.Method, rt.Path,
				pipeline.Validation(deps.Container.Validator, deps.Registry, rt.Rules),
				pipeline.Dispatch(deps.Container, deps.Registry, rt.UseCase),
			)
		}
	}

	return r, nil
}

func resolve(deps *handler.Dependencies, routes []Route) error {
	if deps == nil || deps.Container == nil || deps.Registry == nil {
		return errors.New("router requires a container and a use case registry")
	}

	var errs []error
	for _, rt := range routes {
		if _, ok := deps.Registry.UseCase(rt.UseCase); !ok {
			errs = append(errs, fmt.Errorf("%s %s: use case %q: %w", rt.Method, rt.Path, rt.UseCase, apperr.ErrNotRegistered))
		}
		if _, ok := deps.Registry.Rules(rt.Rules); !ok {
			errs = append(errs, fmt.Errorf("%s %s: validation rules %q: %w", rt.Method, rt.Path, rt.Rules, apperr.ErrNotRegistered))
		}
	}
	return errors.Join(errs...)
}

func inputs(cfg config.InputsConfig) pipeline.Inputs {
	return pipeline.Inputs{
		Params: config.Enabled(cfg.Params),
		Query:  config.Enabled(cfg.Query),
		Body:   config.Enabled(cfg.Body),
		Files:  config.Enabled(cfg.Files),
	}
}

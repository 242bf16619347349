// Package container holds the process-wide services handed to every use case.
package container

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/jobpipe/internal/config"
	"github.com/cuongbtq/jobpipe/internal/database"
	"github.com/cuongbtq/jobpipe/internal/validation"
)

// Databases exposes the live backend handles.
type Databases interface {
	Connections() database.Connections
}

// Container is built once by the process entry point and is read-only
// afterwards.
type Container struct {
	Config    *config.Config
	Databases Databases
	Validator *validation.Service
	Logger    *slog.Logger
}

// New creates a container. A nil logger falls back to slog.Default and a nil
// validator to a fresh validation.Service.
func New(cfg *config.Config, dbs Databases, v *validation.Service, logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.Default()
	}
	if v == nil {
		v = validation.NewService()
	}
	if dbs == nil {
		dbs = noDatabases{}
	}
	return &Container{
		Config:    cfg,
		Databases: dbs,
		Validator: v,
		Logger:    logger,
	}
}

// Connections is a shorthand for c.Databases.Connections().
func (c *Container) Connections() database.Connections {
	return c.Databases.Connections()
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck probes every live backend and returns the result per backend.
func (c *Container) HealthCheck(ctx context.Context) map[string]string {
	conns := c.Connections()
	status := make(map[string]string, len(conns.Names()))
	for _, name := range conns.Names() {
		h, _ := conns.Get(name)

		var err error
		switch probe := h.(type) {
		case healthChecker:
			err = probe.HealthCheck(ctx)
		case pinger:
			err = probe.Ping(ctx)
		}
		if err != nil {
			status[name] = "unhealthy: " + err.Error()
			continue
		}
		status[name] = "healthy"
	}
	return status
}

type noDatabases struct{}

func (noDatabases) Connections() database.Connections { return database.Connections{} }

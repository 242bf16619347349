package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/jobpipe/internal/container"
	"github.com/cuongbtq/jobpipe/internal/job"
	"github.com/cuongbtq/jobpipe/internal/report"
	"github.com/cuongbtq/jobpipe/internal/usecase"
)

// Dependencies holds everything the router needs to build the pipeline
type Dependencies struct {
	Container   *container.Container
	Registry    *usecase.Registry
	Reporter    report.Reporter
	Subscribers []job.Subscriber
}

// SystemHandler serves the endpoints that do not go through a use case
type SystemHandler struct {
	deps    *container.Container
	service string
}

// NewSystemHandler creates a new SystemHandler instance
func NewSystemHandler(deps *container.Container) *SystemHandler {
	service := "jobpipe-api"
	if deps.Config != nil && deps.Config.App.Name != "" {
		service = deps.Config.App.Name
	}
	return &SystemHandler{deps: deps, service: service}
}

// Root answers liveness probes on "/".
func (h *SystemHandler) Root(c *gin.Context) {
	c.String(http.StatusOK, "API is running!")
}

// VersionRoot answers on the root of a versioned API group.
func (h *SystemHandler) VersionRoot(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Dashboard API " + version + " root"})
	}
}

// Health probes every live backend. Any unhealthy backend turns the response
// into a 503.
func (h *SystemHandler) Health(c *gin.Context) {
	backends := h.deps.HealthCheck(c.Request.Context())

	status := "healthy"
	code := http.StatusOK
	for _, s := range backends {
		if s != "healthy" {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(code, gin.H{
		"status":   status,
		"service":  h.service,
		"backends": backends,
	})
}

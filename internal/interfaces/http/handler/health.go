package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yieldvault/backend/internal/infrastructure/scheduler"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// JobStatusProvider reports scheduled job state
type JobStatusProvider interface {
	Status() []scheduler.JobRecord
}

// ComponentHealth is the state of one probed dependency
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Jobs       []scheduler.JobRecord      `json:"jobs,omitempty"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// HealthHandler reports liveness of the database, caches and scheduler
type HealthHandler struct {
	BaseHandler
	checks  map[string]HealthCheck
	jobs    JobStatusProvider
	timeout time.Duration
}

// NewHealthHandler creates a health handler. jobs may be nil when the scheduler is disabled.
func NewHealthHandler(checks map[string]HealthCheck, jobs JobStatusProvider) *HealthHandler {
	return &HealthHandler{checks: checks, jobs: jobs, timeout: 3 * time.Second}
}

// Health runs every check and answers 503 if any fails
//
//	GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]ComponentHealth, len(names)),
		CheckedAt:  time.Now().UTC(),
	}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Status = "degraded"
			resp.Components[name] = ComponentHealth{Status: "down", Error: err.Error()}
			continue
		}
		resp.Components[name] = ComponentHealth{Status: "up"}
	}
	if h.jobs != nil {
		resp.Jobs = h.jobs.Status()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

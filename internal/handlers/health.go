package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sustainabilityhub/sustainabilityhub/internal/monitoring"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/response"
)

// HealthHandler serves liveness, readiness and maintenance job status.
type HealthHandler struct {
	manager *monitoring.HealthManager
	jobs    *monitoring.JobTracker
}

// NewHealthHandler constructs a HealthHandler. A nil tracker falls back to the
// process-wide one.
func NewHealthHandler(manager *monitoring.HealthManager, jobs *monitoring.JobTracker) *HealthHandler {
	if manager == nil {
		manager = monitoring.NewHealthManager()
	}
	if jobs == nil {
		jobs = monitoring.DefaultJobs()
	}
	return &HealthHandler{manager: manager, jobs: jobs}
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	report := h.manager.EvaluateReadiness(c.Request.Context())
	c.JSON(healthStatus(report), gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checked_at": report.CheckedAt,
	})
}

// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	report := h.manager.EvaluateLiveness(c.Request.Context())
	c.JSON(healthStatus(report), report)
}

// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	report := h.manager.EvaluateReadiness(c.Request.Context())
	c.JSON(healthStatus(report), report)
}

// GET /api/admin/maintenance
func (h *HealthHandler) Maintenance(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"jobs": h.jobs.Snapshot()})
}

func healthStatus(report monitoring.HealthReport) int {
	if report.Success {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

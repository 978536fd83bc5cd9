package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/obsguard/obsguard/pkg/resilience"
)

// HealthHandler serves health endpoints backed by the resilience manager
type HealthHandler struct {
	manager *resilience.Manager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(manager *resilience.Manager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// Live handles liveness probes. It answers 200 whenever the process is
// up, regardless of component health.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Health returns the full system health snapshot. Degraded systems still
// answer 200 so orchestrators do not restart an instance that is coping;
// only a failed overall status maps to 503.
func (h *HealthHandler) Health(c *gin.Context) {
	health := h.manager.GetSystemHealth()

	status := http.StatusOK
	if health.Overall == resilience.OverallFailed {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, health)
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/obsguard/obsguard/pkg/errors"
	"github.com/obsguard/obsguard/pkg/resilience"
)

// FailureHandler exposes failure reporting and resolution over HTTP, so
// sidecar processes can feed the resilience manager
type FailureHandler struct {
	manager *resilience.Manager
}

// NewFailureHandler creates a new failure handler
func NewFailureHandler(manager *resilience.Manager) *FailureHandler {
	return &FailureHandler{manager: manager}
}

// reportRequest describes one externally observed failure
type reportRequest struct {
	Type      string `json:"type,omitempty"`
	Component string `json:"component" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// Report records a failure and starts recovery for it
func (h *FailureHandler) Report(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "invalid failure report: "+err.Error())
		return
	}

	id := h.manager.ReportFailure(resilience.FailureType(req.Type), errors.NewExternalError(req.Component, req.Message), req.Component)

	c.JSON(http.StatusAccepted, APIResponse{
		Success:   true,
		Data:      gin.H{"id": id},
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// Resolve marks a reported failure as resolved
func (h *FailureHandler) Resolve(c *gin.Context) {
	id := c.Param("id")

	if !h.manager.ResolveFailure(id) {
		c.JSON(http.StatusNotFound, APIResponse{
			Success: false,
			Error: &APIError{
				Code:    "NOT_FOUND",
				Message: "no active failure with that id",
			},
			RequestID: requestID(c),
			Timestamp: time.Now(),
		})
		return
	}

	SuccessResponse(c, gin.H{"id": id, "resolved": true})
}

// Degradation returns the current degradation level and its
// recommendations
func (h *FailureHandler) Degradation(c *gin.Context) {
	SuccessResponse(c, gin.H{
		"level":           h.manager.DegradationLevel().String(),
		"recommendations": h.manager.GetDegradationRecommendations(),
	})
}

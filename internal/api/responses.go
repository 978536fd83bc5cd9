package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/obsguard/obsguard/pkg/errors"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents an API error
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// AppErrorResponse maps an AppError to the right status code
func AppErrorResponse(c *gin.Context, err *errors.AppError) {
	status := http.StatusInternalServerError
	switch err.Type {
	case errors.ErrorTypeValidation, errors.ErrorTypeConfig:
		status = http.StatusBadRequest
	case errors.ErrorTypePermission:
		status = http.StatusForbidden
	case errors.ErrorTypeTimeout:
		status = http.StatusGatewayTimeout
	case errors.ErrorTypeExternal, errors.ErrorTypeNetwork:
		status = http.StatusBadGateway
	}

	c.JSON(status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    err.Code,
			Message: err.Message,
			Details: err.Details,
		},
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// BadRequestResponse sends a 400 response
func BadRequestResponse(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    "BAD_REQUEST",
			Message: message,
		},
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

func requestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

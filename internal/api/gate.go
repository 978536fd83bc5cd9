package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/obsguard/obsguard/pkg/errors"
	"github.com/obsguard/obsguard/pkg/gate"
)

// GateHandler serves on-demand gate runs over HTTP
type GateHandler struct {
	gatekeeper *gate.Gatekeeper
	defaults   gate.Options
}

// NewGateHandler creates a new gate handler
func NewGateHandler(gatekeeper *gate.Gatekeeper, defaults gate.Options) *GateHandler {
	return &GateHandler{
		gatekeeper: gatekeeper,
		defaults:   defaults,
	}
}

// gateRunRequest is the optional body overriding gate run defaults
type gateRunRequest struct {
	Mode            string `json:"mode,omitempty"`
	Strict          *bool  `json:"strict,omitempty"`
	SkipLongRunning *bool  `json:"skip_long_running,omitempty"`
	CheckTimeoutMS  int    `json:"check_timeout_ms,omitempty"`
}

// Run executes the gate and returns the full result. The gate never
// fails internally, so this endpoint always returns 200 with a decision.
func (h *GateHandler) Run(c *gin.Context) {
	opts := h.defaults

	var req gateRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AppErrorResponse(c, errors.NewValidationError("invalid gate run request: "+err.Error()))
			return
		}
	}

	switch req.Mode {
	case "":
	case string(gate.ModeParallel):
		opts.Mode = gate.ModeParallel
	case string(gate.ModeSequential):
		opts.Mode = gate.ModeSequential
	default:
		AppErrorResponse(c, errors.NewValidationError("mode must be parallel or sequential"))
		return
	}

	if req.Strict != nil {
		opts.Strict = *req.Strict
	}
	if req.SkipLongRunning != nil {
		opts.SkipLongRunning = *req.SkipLongRunning
	}
	if req.CheckTimeoutMS > 0 {
		opts.CheckTimeout = time.Duration(req.CheckTimeoutMS) * time.Millisecond
	}

	result := h.gatekeeper.RunGateCheck(c.Request.Context(), opts)
	SuccessResponse(c, result)
}

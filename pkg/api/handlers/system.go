package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/stripctl/pkg/api/types"
	"github.com/urmzd/stripctl/pkg/device"
)

// SystemHandler exposes the power strip's system information
type SystemHandler struct {
	controller device.Controller
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(controller device.Controller) *SystemHandler {
	return &SystemHandler{controller: controller}
}

// SystemInfo handles GET /system
// @Summary      Get system information
// @Description  Performs a live get_sysinfo query and returns the strip's status
// @Tags         system
// @Produce      json
// @Success      200  {object}  types.SystemResponse
// @Failure      503  {object}  types.ErrorResponse  "No strip connected"
// @Failure      504  {object}  types.ErrorResponse  "Request timed out"
// @Failure      500  {object}  types.ErrorResponse  "Device error"
// @Router       /system [get]
func (h *SystemHandler) SystemInfo(c *gin.Context) {
	info, err := h.controller.SystemInfo(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.SystemResponse{
		System:    info,
		Timestamp: time.Now(),
	})
}

// Command handles POST /system/command
// @Summary      Send a raw command
// @Description  Passes a plaintext JSON command to the strip over its preferred transport and returns the decoded reply
// @Tags         system
// @Accept       json
// @Produce      json
// @Param        request  body      types.CommandRequest  true  "Raw command"
// @Success      200      {object}  types.CommandResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid command"
// @Failure      501      {object}  types.ErrorResponse  "Raw commands not supported"
// @Failure      504      {object}  types.ErrorResponse  "Request timed out"
// @Failure      500      {object}  types.ErrorResponse  "Device error"
// @Router       /system/command [post]
func (h *SystemHandler) Command(c *gin.Context) {
	var req types.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Command) == 0 {
		respondError(c, fmt.Errorf("%w: body must be {\"command\": {...}}", device.ErrValidation))
		return
	}

	reply, err := device.SendCommand(c.Request.Context(), h.controller, string(req.Command))
	if err != nil {
		respondError(c, err)
		return
	}

	raw := json.RawMessage(reply)
	if !json.Valid(raw) {
		raw, _ = json.Marshal(reply)
	}
	c.JSON(http.StatusOK, types.CommandResponse{
		Reply:     raw,
		Timestamp: time.Now(),
	})
}

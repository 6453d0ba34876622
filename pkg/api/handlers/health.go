package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/stripctl/pkg/api/types"
	"github.com/urmzd/stripctl/pkg/device"
)

// HealthHandler reports whether a power strip is attached. It never talks to
// the device; outlet data comes from the snapshot taken at startup.
type HealthHandler struct {
	controller device.Controller
}

func NewHealthHandler(controller device.Controller) *HealthHandler {
	return &HealthHandler{controller: controller}
}

// Health handles GET /health
// @Summary      Health check
// @Description  Reports the controller connection and the cached strip summary
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.HealthResponse  "Strip attached"
// @Failure      503  {object}  types.HealthResponse  "No strip attached"
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	resp := types.HealthResponse{
		Status:     "degraded",
		Controller: "disconnected",
		Timestamp:  time.Now(),
	}

	if !h.controller.IsConnected() {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	resp.Status = "healthy"
	resp.Controller = "connected"
	if outlets, err := h.controller.ListDevices(c.Request.Context()); err == nil && len(outlets) > 0 {
		resp.Strip = &types.StripHealth{
			DeviceID: outlets[0].Parent,
			Model:    outlets[0].Model,
			Outlets:  len(outlets),
		}
	}
	c.JSON(http.StatusOK, resp)
}

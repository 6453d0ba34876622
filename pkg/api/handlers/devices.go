package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/stripctl/pkg/api/types"
	"github.com/urmzd/stripctl/pkg/device"
)

// DevicesHandler handles outlet listing endpoints
type DevicesHandler struct {
	controller device.Controller
}

// NewDevicesHandler creates a new devices handler
func NewDevicesHandler(controller device.Controller) *DevicesHandler {
	return &DevicesHandler{controller: controller}
}

// ListDevices handles GET /devices
// @Summary      List all outlets
// @Description  Returns the outlets of the power strip. Live state of every outlet is read with one query when state=true.
// @Tags         devices
// @Produce      json
// @Param        state  query     bool  false  "Include live outlet state"
// @Success      200    {object}  types.ListDevicesResponse
// @Failure      504    {object}  types.ErrorResponse  "Request timed out"
// @Failure      500    {object}  types.ErrorResponse  "Controller error"
// @Router       /devices [get]
func (h *DevicesHandler) ListDevices(c *gin.Context) {
	ctx := c.Request.Context()
	withState := c.Query("state") == "true"

	devices, err := h.controller.ListDevices(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	// State is best effort; an unreachable strip still lists its outlets
	var states map[string]device.DeviceState
	if withState {
		ids := make([]string, 0, len(devices))
		for _, d := range devices {
			ids = append(ids, d.ID)
		}
		states, _ = device.DeviceStates(ctx, h.controller, ids)
	}

	result := make([]types.DeviceWithState, 0, len(devices))
	for _, d := range devices {
		dws := toDeviceWithState(d)
		if state, ok := states[d.ID]; ok {
			dws.State = state
		}
		result = append(result, dws)
	}

	c.JSON(http.StatusOK, types.ListDevicesResponse{
		Devices: result,
		Count:   len(result),
	})
}

// GetDevice handles GET /devices/:id
// @Summary      Get outlet details
// @Description  Returns details and live state for an outlet by composite id or alias
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Composite outlet id or alias"
// @Success      200  {object}  types.DeviceResponse
// @Failure      404  {object}  types.ErrorResponse  "Device not found"
// @Failure      504  {object}  types.ErrorResponse  "Request timed out"
// @Failure      500  {object}  types.ErrorResponse  "Controller error"
// @Router       /devices/{id} [get]
func (h *DevicesHandler) GetDevice(c *gin.Context) {
	ctx := c.Request.Context()

	d, err := h.controller.GetDevice(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	result := toDeviceWithState(*d)
	if state, err := h.controller.GetDeviceState(ctx, d.ID); err == nil {
		result.State = state
	}

	c.JSON(http.StatusOK, types.DeviceResponse{
		Device: result,
	})
}

func toDeviceWithState(d device.Device) types.DeviceWithState {
	return types.DeviceWithState{
		ID:          d.ID,
		Name:        d.Name,
		Parent:      d.Parent,
		Type:        d.Type,
		Protocol:    d.Protocol,
		Model:       d.Model,
		Vendor:      d.Manufacturer,
		StateSchema: d.StateSchema,
	}
}

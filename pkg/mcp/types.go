package mcp

import (
	"encoding/json"

	"github.com/urmzd/stripctl/pkg/device"
)

// --- Health Tool ---

// GetHealthOutput is the output for the get_health tool
type GetHealthOutput struct {
	Status     string `json:"status" jsonschema:"description=Overall health status (healthy or unhealthy)"`
	Controller string `json:"controller" jsonschema:"description=Power strip controller connection status"`
	Timestamp  string `json:"timestamp" jsonschema:"description=ISO8601 timestamp"`
}

// --- System Info Tool ---

// GetSystemInfoOutput is the output for the get_system_info tool
type GetSystemInfoOutput struct {
	System map[string]any `json:"system" jsonschema:"description=Live system information of the power strip"`
}

// --- List Devices Tool ---

// ListDevicesInput is the input for the list_devices tool
type ListDevicesInput struct {
	IncludeState bool `json:"include_state,omitempty" jsonschema:"description=Query live state per outlet"`
}

// ListDevicesOutput is the output for the list_devices tool
type ListDevicesOutput struct {
	Devices []DeviceInfo `json:"devices" jsonschema:"description=Outlets of the power strip"`
	Count   int          `json:"count" jsonschema:"description=Number of outlets"`
}

// DeviceInfo represents an outlet in tool outputs
type DeviceInfo struct {
	ID           string          `json:"id" jsonschema:"description=Composite outlet id (device id followed by child id)"`
	Name         string          `json:"name" jsonschema:"description=Outlet alias"`
	Parent       string          `json:"parent,omitempty" jsonschema:"description=Device id of the power strip"`
	Type         string          `json:"type" jsonschema:"description=Device type"`
	Protocol     string          `json:"protocol" jsonschema:"description=Communication protocol"`
	Manufacturer string          `json:"manufacturer,omitempty" jsonschema:"description=Device manufacturer"`
	Model        string          `json:"model,omitempty" jsonschema:"description=Power strip model"`
	StateSchema  json.RawMessage `json:"state_schema,omitempty" jsonschema:"description=JSON Schema for settable state"`
	State        map[string]any  `json:"state,omitempty" jsonschema:"description=Current outlet state"`
}

// --- Get Device Tool ---

// GetDeviceInput is the input for the get_device tool
type GetDeviceInput struct {
	ID string `json:"id" jsonschema:"required,description=Composite outlet id or alias"`
}

// GetDeviceOutput is the output for the get_device tool
type GetDeviceOutput struct {
	Device DeviceInfo `json:"device" jsonschema:"description=Outlet information"`
}

// --- Get Device State Tool ---

// GetDeviceStateOutput is the output for the get_device_state tool
type GetDeviceStateOutput struct {
	DeviceID string         `json:"device_id" jsonschema:"description=Outlet identifier as requested"`
	State    map[string]any `json:"state" jsonschema:"description=Live outlet state"`
}

// --- Set Device State Tool ---

// SetDeviceStateInput is the input for the set_device_state, turn_on, turn_off and toggle tools
type SetDeviceStateInput struct {
	ID    string         `json:"id" jsonschema:"required,description=Composite outlet id or alias"`
	State map[string]any `json:"state,omitempty" jsonschema:"description=State to set (validated against the outlet schema)"`
}

// SetDeviceStateOutput is the output for the state-changing tools
type SetDeviceStateOutput struct {
	DeviceID string         `json:"device_id" jsonschema:"description=Composite outlet id"`
	Name     string         `json:"name" jsonschema:"description=Outlet alias"`
	State    map[string]any `json:"state" jsonschema:"description=Outlet state after the change"`
}

// --- Send Command Tool ---

// SendCommandOutput is the output for the send_command tool
type SendCommandOutput struct {
	Reply json.RawMessage `json:"reply" jsonschema:"description=Decoded reply of the power strip"`
}

// --- Helper conversions ---

// DeviceToInfo converts a device.Device to DeviceInfo
func DeviceToInfo(d *device.Device) DeviceInfo {
	return DeviceInfo{
		ID:           d.ID,
		Name:         d.Name,
		Parent:       d.Parent,
		Type:         d.Type,
		Protocol:     d.Protocol,
		Manufacturer: d.Manufacturer,
		Model:        d.Model,
		StateSchema:  d.StateSchema,
	}
}

package types

import (
	"encoding/json"
	"time"
)

// --- Request DTOs ---

// SetStateRequest documents the body of POST /devices/:id/state.
// The handler accepts any object and validates it against the device schema.
type SetStateRequest struct {
	State string `json:"state" example:"ON" enums:"ON,OFF,TOGGLE"`
}

// CommandRequest is the body of POST /system/command.
type CommandRequest struct {
	Command json.RawMessage `json:"command" swaggertype:"object"`
}

// --- Response DTOs ---

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned from GET /health
type HealthResponse struct {
	Status     string       `json:"status"`
	Controller string       `json:"controller"`
	Strip      *StripHealth `json:"strip,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// StripHealth summarizes the connected power strip from its cached snapshot.
type StripHealth struct {
	DeviceID string `json:"device_id"`
	Model    string `json:"model,omitempty"`
	Outlets  int    `json:"outlets"`
}

// ListDevicesResponse is returned from GET /devices
type ListDevicesResponse struct {
	Devices []DeviceWithState `json:"devices"`
	Count   int               `json:"count"`
}

// DeviceWithState combines outlet info with its current state
type DeviceWithState struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Parent      string          `json:"parent,omitempty"`
	Model       string          `json:"model,omitempty"`
	Vendor      string          `json:"vendor,omitempty"`
	Type        string          `json:"type"`
	Protocol    string          `json:"protocol"`
	StateSchema json.RawMessage `json:"state_schema,omitempty"`
	State       map[string]any  `json:"state,omitempty"`
}

// DeviceResponse is returned from GET /devices/:id
type DeviceResponse struct {
	Device DeviceWithState `json:"device"`
}

// StateResponse is returned from GET/POST /devices/:id/state
type StateResponse struct {
	Device    string         `json:"device"`
	State     map[string]any `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
}

// SystemResponse is returned from GET /system
type SystemResponse struct {
	System    map[string]any `json:"system"`
	Timestamp time.Time      `json:"timestamp"`
}

// CommandResponse is returned from POST /system/command
type CommandResponse struct {
	Reply     json.RawMessage `json:"reply" swaggertype:"object"`
	Timestamp time.Time       `json:"timestamp"`
}

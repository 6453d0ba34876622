package device

import (
	"encoding/json"
	"time"
)

// Device represents a protocol-agnostic smart home device
type Device struct {
	ID           string          `json:"id"`           // Unique identifier (composite outlet address for power strips)
	Name         string          `json:"name"`         // User-friendly name
	Type         string          `json:"type"`         // Device type (outlet, switch, sensor, etc.)
	Protocol     string          `json:"protocol"`     // Protocol (wifi)
	Manufacturer string          `json:"manufacturer"` // Device manufacturer/vendor
	Model        string          `json:"model"`        // Device model
	StateSchema  json.RawMessage `json:"state_schema"` // JSON Schema for settable state
	Parent       string          `json:"parent,omitempty"`
}

// DeviceState represents the current state of a device as a dynamic map.
type DeviceState map[string]any

// Event represents a device event such as an outlet being switched
type Event struct {
	Type      string         `json:"type"`             // Event type (outlet_switched, ...)
	Device    *Device        `json:"device,omitempty"` // Device information if available
	State     map[string]any `json:"state,omitempty"`  // State carried by the event
	Timestamp time.Time      `json:"timestamp"`        // When the event occurred
}

// Event types
const (
	EventOutletSwitched = "outlet_switched"
)

// Protocol constants
const (
	ProtocolWiFi = "wifi"
)

// Device type constants
const (
	DeviceTypeOutlet = "outlet"
)

// State values shared by switchable devices
const (
	StateOn     = "ON"
	StateOff    = "OFF"
	StateToggle = "TOGGLE"
)

package device

import "context"

// Controller defines the interface for controlling smart home devices.
// This abstraction lets the API, MCP and MQTT surfaces work with any
// backend (a power strip on the LAN, or nothing at all) through one interface.
type Controller interface {
	// ListDevices returns all controllable devices
	ListDevices(ctx context.Context) ([]Device, error)

	// GetDevice returns a single device by ID or friendly name
	GetDevice(ctx context.Context, id string) (*Device, error)

	// GetDeviceState retrieves the current state of a device
	GetDeviceState(ctx context.Context, id string) (DeviceState, error)

	// SetDeviceState sets the state of a device
	SetDeviceState(ctx context.Context, id string, state map[string]any) (DeviceState, error)

	// SystemInfo returns a live, backend-specific status document
	SystemInfo(ctx context.Context) (map[string]any, error)

	// IsConnected returns true if the controller is connected
	IsConnected() bool

	// Close disconnects the controller
	Close()
}

// EventSubscriber defines the interface for subscribing to device events
type EventSubscriber interface {
	// Subscribe returns a channel that receives device events
	Subscribe() chan Event

	// Unsubscribe removes a subscription
	Unsubscribe(ch chan Event)
}

// StateReader is implemented by controllers that can read the state of
// several devices in one round trip.
type StateReader interface {
	GetDeviceStates(ctx context.Context, ids []string) (map[string]DeviceState, error)
}

// CommandSender is implemented by controllers that accept raw protocol
// commands.
type CommandSender interface {
	SendCommand(ctx context.Context, command string) (string, error)
}

// DeviceStates returns the states of ids, using a single StateReader call when
// c supports it and one GetDeviceState per id otherwise. Devices whose state
// cannot be read are left out of the map.
func DeviceStates(ctx context.Context, c Controller, ids []string) (map[string]DeviceState, error) {
	if r, ok := c.(StateReader); ok {
		return r.GetDeviceStates(ctx, ids)
	}

	states := make(map[string]DeviceState, len(ids))
	var firstErr error
	for _, id := range ids {
		state, err := c.GetDeviceState(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		states[id] = state
	}
	if len(states) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return states, nil
}

// SendCommand passes command to c, or fails with ErrUnsupported when c has
// no raw command path.
func SendCommand(ctx context.Context, c Controller, command string) (string, error) {
	s, ok := c.(CommandSender)
	if !ok {
		return "", ErrUnsupported
	}
	return s.SendCommand(ctx, command)
}

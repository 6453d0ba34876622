package powerstrip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/stripctl/pkg/device"
)

// Controller exposes the outlets of a Strip through device.Controller and
// publishes an event whenever an outlet is switched.
type Controller struct {
	strip *Strip

	subscribers   []chan device.Event
	subscribersMu sync.Mutex

	connected bool
	connMu    sync.RWMutex
}

// NewController wraps an initialized strip.
func NewController(strip *Strip) *Controller {
	return &Controller{
		strip:     strip,
		connected: true,
	}
}

// Strip returns the underlying strip.
func (c *Controller) Strip() *Strip {
	return c.strip
}

// outletToDevice converts a snapshot child to a device.Device.
func (c *Controller) outletToDevice(child Child) device.Device {
	stateSchema, _ := json.Marshal(outletStateSchema())
	return device.Device{
		ID:           CompositeAddress(c.strip.DeviceID(), child.ID),
		Name:         child.Alias,
		Type:         device.DeviceTypeOutlet,
		Protocol:     device.ProtocolWiFi,
		Manufacturer: "Unknown",
		Model:        c.strip.Snapshot().Model,
		StateSchema:  stateSchema,
		Parent:       c.strip.DeviceID(),
	}
}

// outletStateSchema returns the JSON schema for settable outlet state.
func outletStateSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"state": map[string]any{
				"type":        "string",
				"enum":        []string{device.StateOn, device.StateOff, device.StateToggle},
				"description": "Relay state",
			},
		},
		"required":             []string{"state"},
		"additionalProperties": false,
	}
}

// findOutlet resolves id as a composite address first, then as an alias.
func (c *Controller) findOutlet(id string) (Child, bool) {
	for _, child := range c.strip.Outlets() {
		if CompositeAddress(c.strip.DeviceID(), child.ID) == id {
			return child, true
		}
	}
	return c.strip.Snapshot().FindChild(id)
}

// --- device.Controller interface ---

func (c *Controller) ListDevices(_ context.Context) ([]device.Device, error) {
	outlets := c.strip.Outlets()
	devices := make([]device.Device, 0, len(outlets))
	for _, child := range outlets {
		devices = append(devices, c.outletToDevice(child))
	}
	return devices, nil
}

func (c *Controller) GetDevice(_ context.Context, id string) (*device.Device, error) {
	child, ok := c.findOutlet(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", device.ErrNotFound, id)
	}
	d := c.outletToDevice(child)
	return &d, nil
}

// GetDeviceState queries the strip and reports the live state of one outlet.
func (c *Controller) GetDeviceState(ctx context.Context, id string) (device.DeviceState, error) {
	child, ok := c.findOutlet(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", device.ErrNotFound, id)
	}

	live, err := c.liveOutlet(ctx, child.ID)
	if err != nil {
		return nil, err
	}
	return outletState(live), nil
}

func (c *Controller) SetDeviceState(ctx context.Context, id string, state map[string]any) (device.DeviceState, error) {
	child, ok := c.findOutlet(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", device.ErrNotFound, id)
	}

	stateVal, ok := state["state"]
	if !ok {
		return nil, fmt.Errorf("%w: missing state", device.ErrValidation)
	}
	strVal, ok := stateVal.(string)
	if !ok {
		return nil, fmt.Errorf("%w: state must be a string", device.ErrValidation)
	}

	// States are case-sensitive, matching the outlet state schema.
	var relay RelayState
	switch strVal {
	case device.StateOn:
		relay = RelayOn
	case device.StateOff:
		relay = RelayOff
	case device.StateToggle:
		live, err := c.liveOutlet(ctx, child.ID)
		if err != nil {
			return nil, err
		}
		relay = RelayOn
		if live.On() {
			relay = RelayOff
		}
	default:
		return nil, fmt.Errorf("%w: invalid state value %q", device.ErrValidation, strVal)
	}

	if err := c.strip.SetRelayStateByID(ctx, relay, child.ID); err != nil {
		return nil, translateError(err)
	}

	result := device.DeviceState{
		"state": boolToOnOff(relay == RelayOn),
		"alias": child.Alias,
	}

	d := c.outletToDevice(child)
	c.publishEvent(device.Event{
		Type:      device.EventOutletSwitched,
		Device:    &d,
		State:     result,
		Timestamp: time.Now(),
	})

	return result, nil
}

// GetDeviceStates reads the live state of several outlets with a single
// get_sysinfo exchange. Unknown ids are skipped.
func (c *Controller) GetDeviceStates(ctx context.Context, ids []string) (map[string]device.DeviceState, error) {
	info, err := c.strip.FetchSystemInfo(ctx)
	if err != nil {
		return nil, translateError(err)
	}

	states := make(map[string]device.DeviceState, len(ids))
	for _, id := range ids {
		child, ok := c.findOutlet(id)
		if !ok {
			continue
		}
		if live, ok := info.FindChildByID(child.ID); ok {
			states[id] = outletState(live)
		}
	}
	return states, nil
}

// SendCommand passes a raw JSON command to the strip over its preferred
// transport and returns the decoded reply.
func (c *Controller) SendCommand(ctx context.Context, command string) (string, error) {
	if !json.Valid([]byte(command)) {
		return "", fmt.Errorf("%w: command is not valid JSON", device.ErrValidation)
	}
	reply, err := c.strip.Send(ctx, command)
	if err != nil {
		return "", translateError(err)
	}
	log.Debug().
		Str("transport", c.strip.Transport().String()).
		Int("bytes", len(reply)).
		Msg("Raw command sent")
	return reply, nil
}

// SystemInfo returns a live snapshot keyed by semantic field names.
func (c *Controller) SystemInfo(ctx context.Context) (map[string]any, error) {
	info, err := c.strip.FetchSystemInfo(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	fields := info.Fields()
	fields["address"] = c.strip.Address()
	return fields, nil
}

func (c *Controller) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Close closes all subscriber channels. The strip holds no open sockets.
func (c *Controller) Close() {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.subscribersMu.Lock()
	for _, ch := range c.subscribers {
		close(ch)
	}
	c.subscribers = nil
	c.subscribersMu.Unlock()

	log.Info().Str("addr", c.strip.Address()).Msg("Power strip controller closed")
}

// --- device.EventSubscriber interface ---

func (c *Controller) Subscribe() chan device.Event {
	ch := make(chan device.Event, 16)
	c.subscribersMu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.subscribersMu.Unlock()
	return ch
}

func (c *Controller) Unsubscribe(ch chan device.Event) {
	c.subscribersMu.Lock()
	defer c.subscribersMu.Unlock()

	for i, sub := range c.subscribers {
		if sub == ch {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// publishEvent sends an event to all subscribers without blocking.
func (c *Controller) publishEvent(evt device.Event) {
	c.subscribersMu.Lock()
	defer c.subscribersMu.Unlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// --- Helpers ---

// liveOutlet fetches fresh system info and returns the outlet with childID.
func (c *Controller) liveOutlet(ctx context.Context, childID string) (Child, error) {
	info, err := c.strip.FetchSystemInfo(ctx)
	if err != nil {
		return Child{}, translateError(err)
	}
	child, ok := info.FindChildByID(childID)
	if !ok {
		return Child{}, fmt.Errorf("%w: outlet %s no longer reported", device.ErrNotFound, childID)
	}
	return child, nil
}

func outletState(child Child) device.DeviceState {
	return device.DeviceState{
		"state":       boolToOnOff(child.On()),
		"alias":       child.Alias,
		"on_time":     child.OnTime,
		"next_action": child.NextAction.Type,
	}
}

// translateError makes powerstrip failures match the device sentinels.
func translateError(err error) error {
	if errors.Is(err, ErrNotFound) && !errors.Is(err, device.ErrNotFound) {
		return fmt.Errorf("%w: %w", device.ErrNotFound, err)
	}
	return err
}

func boolToOnOff(b bool) string {
	if b {
		return device.StateOn
	}
	return device.StateOff
}

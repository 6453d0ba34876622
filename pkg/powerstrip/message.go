package powerstrip

import (
	"encoding/json"
	"fmt"
)

// getSysInfoCommand is the fixed request for a system-info snapshot.
const getSysInfoCommand = `{"system":{"get_sysinfo":{}}}`

// RelayState is the target state of a relay.
type RelayState int

const (
	RelayOff RelayState = 0
	RelayOn  RelayState = 1
)

func (s RelayState) String() string {
	if s == RelayOn {
		return "on"
	}
	return "off"
}

// SystemInfo is the response envelope of a get_sysinfo request.
type SystemInfo struct {
	System SystemSection `json:"system"`
}

// SystemSection holds the get_sysinfo payload.
type SystemSection struct {
	GetSysInfo SysInfo `json:"get_sysinfo"`
}

// SysInfo is a device snapshot. Values are immutable once fetched and are not
// refreshed after state-changing commands.
type SysInfo struct {
	Alias      string  `json:"alias"`
	ChildNum   int     `json:"child_num"`
	Children   []Child `json:"children"`
	DeviceID   string  `json:"deviceId"`
	ErrCode    int     `json:"err_code"`
	Feature    string  `json:"feature"`
	HWID       string  `json:"hwId"`
	HWVer      string  `json:"hw_ver"`
	LatitudeI  int     `json:"latitude_i"`
	LEDOff     int     `json:"led_off"`
	LongitudeI int     `json:"longitude_i"`
	MAC        string  `json:"mac"`
	MICType    string  `json:"mic_type"`
	Model      string  `json:"model"`
	OEMID      string  `json:"oemId"`
	RSSI       int     `json:"rssi"`
	Status     string  `json:"status"`
	SWVer      string  `json:"sw_ver"`
	Updating   int     `json:"updating"`
}

// Child is one outlet of the strip.
type Child struct {
	Alias      string     `json:"alias"`
	ID         string     `json:"id"`
	NextAction NextAction `json:"next_action"`
	OnTime     int        `json:"on_time"`
	State      int        `json:"state"`
}

// NextAction describes the next scheduled action of an outlet.
type NextAction struct {
	Type int `json:"type"`
}

// On reports whether the relay was closed when the snapshot was taken.
func (c Child) On() bool {
	return c.State != 0
}

// FindChild returns the first outlet whose alias equals alias exactly.
// Aliases are not guaranteed unique by the device; duplicates resolve to the
// first entry in the children list.
func (s *SysInfo) FindChild(alias string) (Child, bool) {
	for _, c := range s.Children {
		if c.Alias == alias {
			return c, true
		}
	}
	return Child{}, false
}

// FindChildByID returns the outlet with the given short id.
func (s *SysInfo) FindChildByID(id string) (Child, bool) {
	for _, c := range s.Children {
		if c.ID == id {
			return c, true
		}
	}
	return Child{}, false
}

// Fields returns the snapshot as a generic map keyed by semantic names.
// Coordinates are reported in degrees (the wire carries 1e-4 degree units).
// Children are []any of map[string]any, the shape JSON decoding produces.
func (s *SysInfo) Fields() map[string]any {
	children := make([]any, 0, len(s.Children))
	for _, c := range s.Children {
		children = append(children, map[string]any{
			"alias":            c.Alias,
			"id":               c.ID,
			"next_action_type": c.NextAction.Type,
			"on_time":          c.OnTime,
			"state":            boolToOnOff(c.On()),
		})
	}

	return map[string]any{
		"alias":     s.Alias,
		"child_num": s.ChildNum,
		"children":  children,
		"device_id": s.DeviceID,
		"err_code":  s.ErrCode,
		"feature":   s.Feature,
		"hw_id":     s.HWID,
		"hw_ver":    s.HWVer,
		"latitude":  float64(s.LatitudeI) / 10000,
		"led_off":   s.LEDOff != 0,
		"longitude": float64(s.LongitudeI) / 10000,
		"mac":       s.MAC,
		"mic_type":  s.MICType,
		"model":     s.Model,
		"oem_id":    s.OEMID,
		"rssi":      s.RSSI,
		"status":    s.Status,
		"sw_ver":    s.SWVer,
		"updating":  s.Updating != 0,
	}
}

// CompositeAddress builds the address of one outlet: the device id followed by
// the child id, with no separator.
func CompositeAddress(deviceID, childID string) string {
	return deviceID + childID
}

type command struct {
	Context *commandContext `json:"context,omitempty"`
	System  systemCommand   `json:"system"`
}

type commandContext struct {
	ChildIDs []string `json:"child_ids"`
}

type systemCommand struct {
	SetRelayState *relayStateParams `json:"set_relay_state,omitempty"`
}

type relayStateParams struct {
	State RelayState `json:"state"`
}

// GetSysInfoCommand returns the get_sysinfo request.
func GetSysInfoCommand() string {
	return getSysInfoCommand
}

// RelayStateCommand builds a set_relay_state request scoped to the given
// composite outlet addresses.
func RelayStateCommand(state RelayState, addrs ...string) (string, error) {
	if len(addrs) == 0 {
		return "", fmt.Errorf("%w: set_relay_state needs at least one outlet", ErrConfiguration)
	}
	if state != RelayOn && state != RelayOff {
		return "", fmt.Errorf("%w: invalid relay state %d", ErrConfiguration, int(state))
	}

	cmd := command{
		Context: &commandContext{ChildIDs: addrs},
		System: systemCommand{
			SetRelayState: &relayStateParams{State: state},
		},
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("marshal set_relay_state: %w", err)
	}
	return string(data), nil
}

package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urmzd/stripctl/pkg/device"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/switch/stripctl_ABC12301/switch/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
	SWVersion    string   `json:"sw_version,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	EntityCategory    string   `json:"entity_category,omitempty"`
	Device            haDevice `json:"device"`
}

// stripInfo identifies the power strip in the HA device registry.
type stripInfo struct {
	DeviceID string
	Alias    string
	Model    string
	SWVer    string
}

// stripInfoFrom extracts the registry fields from a SystemInfo document.
func stripInfoFrom(info map[string]any) stripInfo {
	str := func(key string) string {
		s, _ := info[key].(string)
		return s
	}
	return stripInfo{
		DeviceID: str("device_id"),
		Alias:    str("alias"),
		Model:    str("model"),
		SWVer:    str("sw_ver"),
	}
}

func (s stripInfo) displayName() string {
	if s.Alias != "" {
		return s.Alias
	}
	if s.Model != "" {
		return s.Model
	}
	return "Power strip " + s.DeviceID
}

func (s stripInfo) identifier() string {
	return "stripctl_" + s.DeviceID
}

// topicName sanitizes an outlet alias for use as an MQTT topic level.
func topicName(alias string) string {
	name := strings.ToLower(strings.TrimSpace(alias))
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
}

// outletTopic returns the state topic for an outlet, falling back to its id
// when the alias sanitizes to nothing.
func outletTopic(prefix string, d device.Device) string {
	name := topicName(d.Name)
	if strings.Trim(name, "_") == "" {
		name = d.ID
	}
	return prefix + "/" + name
}

// buildDiscovery returns one switch per outlet plus a signal strength sensor
// for the strip itself.
func buildDiscovery(strip stripInfo, outlets []device.Device, cfg Config) []discoveryMsg {
	avail := cfg.TopicPrefix + "/bridge/state"
	stripDev := haDevice{
		Identifiers: []string{strip.identifier()},
		Model:       strip.Model,
		Name:        strip.displayName(),
		SWVersion:   strip.SWVer,
	}

	msgs := make([]discoveryMsg, 0, len(outlets)+1)
	for _, d := range outlets {
		msgs = append(msgs, buildSwitch(d, strip, avail, cfg))
	}

	nodeID := strip.identifier()
	rssi := haDiscovery{
		Name:              "Signal strength",
		UniqueID:          nodeID + "_rssi",
		StateTopic:        cfg.TopicPrefix + "/strip",
		AvailabilityTopic: avail,
		ValueTemplate:     "{{ value_json.rssi }}",
		UnitOfMeasurement: "dBm",
		DeviceClass:       "signal_strength",
		StateClass:        "measurement",
		EntityCategory:    "diagnostic",
		Device:            stripDev,
	}
	msgs = append(msgs, discoveryMsg{
		Topic:   fmt.Sprintf("%s/sensor/%s/rssi/config", cfg.DiscoveryPrefix, nodeID),
		Payload: mustJSON(rssi),
	})
	return msgs
}

func buildSwitch(d device.Device, strip stripInfo, avail string, cfg Config) discoveryMsg {
	nodeID := "stripctl_" + d.ID
	stateTopic := outletTopic(cfg.TopicPrefix, d)
	payload := haDiscovery{
		Name:              d.Name,
		UniqueID:          nodeID + "_switch",
		StateTopic:        stateTopic,
		CommandTopic:      stateTopic + "/set",
		AvailabilityTopic: avail,
		ValueTemplate:     "{{ value_json.state }}",
		PayloadOn:         device.StateOn,
		PayloadOff:        device.StateOff,
		DeviceClass:       "outlet",
		Device: haDevice{
			Identifiers: []string{nodeID},
			Model:       d.Model,
			Name:        d.Name,
			ViaDevice:   strip.identifier(),
		},
	}
	return discoveryMsg{
		Topic:   fmt.Sprintf("%s/switch/%s/switch/config", cfg.DiscoveryPrefix, nodeID),
		Payload: mustJSON(payload),
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/urmzd/stripctl/pkg/device"
	"github.com/urmzd/stripctl/pkg/device/schema"
)

var outletSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"state": {"type": "string", "enum": ["ON", "OFF", "TOGGLE"]}},
	"required": ["state"],
	"additionalProperties": false
}`)

// doneToken is an already completed paho token.
type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic    string
	payload  string
	retained bool
}

type fakeClient struct {
	mu           sync.Mutex
	published    []published
	subscribed   map[string]pahomqtt.MessageHandler
	disconnected bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{subscribed: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var body string
	switch p := payload.(type) {
	case []byte:
		body = string(p)
	case string:
		body = p
	}
	f.published = append(f.published, published{topic: topic, payload: body, retained: retained})
	return doneToken{}
}

func (f *fakeClient) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[topic] = callback
	return doneToken{}
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *fakeClient) last(topic string) (published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.published) - 1; i >= 0; i-- {
		if f.published[i].topic == topic {
			return f.published[i], true
		}
	}
	return published{}, false
}

// stripController serves two outlets of strip ABC123.
type stripController struct {
	mu     sync.Mutex
	states map[string]string
	sets   []map[string]any
}

func newStripController() *stripController {
	return &stripController{states: map[string]string{"ABC12300": "OFF", "ABC12301": "ON"}}
}

func (s *stripController) outlets() []device.Device {
	return []device.Device{
		{ID: "ABC12300", Name: "Desk Lamp", Model: "HS300(US)", Parent: "ABC123", StateSchema: outletSchema},
		{ID: "ABC12301", Name: "Plug 5", Model: "HS300(US)", Parent: "ABC123", StateSchema: outletSchema},
	}
}

func (s *stripController) ListDevices(context.Context) ([]device.Device, error) {
	return s.outlets(), nil
}

func (s *stripController) GetDevice(_ context.Context, id string) (*device.Device, error) {
	for _, d := range s.outlets() {
		if d.ID == id || d.Name == id {
			return &d, nil
		}
	}
	return nil, device.ErrNotFound
}

func (s *stripController) GetDeviceState(_ context.Context, id string) (device.DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return device.DeviceState{"state": s.states[id]}, nil
}

func (s *stripController) SetDeviceState(_ context.Context, id string, state map[string]any) (device.DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, state)
	s.states[id] = state["state"].(string)
	return device.DeviceState{"state": s.states[id]}, nil
}

func (s *stripController) SystemInfo(context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"alias":     "Office Strip",
		"device_id": "ABC123",
		"model":     "HS300(US)",
		"sw_ver":    "1.0.6",
		"rssi":      float64(-52),
		"children": []any{
			map[string]any{"id": "00", "alias": "Desk Lamp", "state": s.states["ABC12300"], "on_time": float64(0)},
			map[string]any{"id": "01", "alias": "Plug 5", "state": s.states["ABC12301"], "on_time": float64(120)},
		},
	}, nil
}

func (s *stripController) IsConnected() bool { return true }
func (s *stripController) Close()            {}

func (s *stripController) setCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}

func newTestBridge(ctrl device.Controller) (*Bridge, *fakeClient) {
	b := newBridge(ctrl, device.NewNullEventSubscriber(), schema.NewValidator(), Config{Broker: "tcp://test:1883"})
	fc := newFakeClient()
	b.client = fc
	return b, fc
}

func TestTopicName(t *testing.T) {
	tests := map[string]string{
		"Plug 5":      "plug_5",
		"Desk-Lamp":   "desk-lamp",
		" Heater ":    "heater",
		"Café/Kettle": "caf__kettle",
	}
	for in, want := range tests {
		if got := topicName(in); got != want {
			t.Errorf("topicName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOutletTopic_FallsBackToID(t *testing.T) {
	d := device.Device{ID: "ABC12301", Name: "!!"}
	if got := outletTopic("stripctl", d); got != "stripctl/ABC12301" {
		t.Errorf("outletTopic = %q", got)
	}
}

func TestBuildDiscovery(t *testing.T) {
	ctrl := newStripController()
	cfg := Config{}.withDefaults()
	info, _ := ctrl.SystemInfo(context.Background())

	msgs := buildDiscovery(stripInfoFrom(info), ctrl.outlets(), cfg)
	if len(msgs) != 3 {
		t.Fatalf("expected 2 switches and 1 sensor, got %d", len(msgs))
	}

	sw := msgs[1]
	if sw.Topic != "homeassistant/switch/stripctl_ABC12301/switch/config" {
		t.Errorf("switch topic = %q", sw.Topic)
	}
	var payload haDiscovery
	if err := json.Unmarshal(sw.Payload, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.StateTopic != "stripctl/plug_5" || payload.CommandTopic != "stripctl/plug_5/set" {
		t.Errorf("topics = %q / %q", payload.StateTopic, payload.CommandTopic)
	}
	if payload.AvailabilityTopic != "stripctl/bridge/state" {
		t.Errorf("availability = %q", payload.AvailabilityTopic)
	}
	if payload.PayloadOn != "ON" || payload.PayloadOff != "OFF" || payload.Device.ViaDevice != "stripctl_ABC123" {
		t.Errorf("unexpected payload: %+v", payload)
	}

	sensor := msgs[2]
	if sensor.Topic != "homeassistant/sensor/stripctl_ABC123/rssi/config" {
		t.Errorf("sensor topic = %q", sensor.Topic)
	}
	if !strings.Contains(string(sensor.Payload), `"name":"Office Strip"`) {
		t.Errorf("sensor device name missing: %s", sensor.Payload)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`{"state":"OFF"}`, "OFF", false},
		{"on", "on", false},
		{" TOGGLE\n", "TOGGLE", false},
		{"", "", true},
		{`{"state":`, "", true},
	}
	for _, tt := range tests {
		cmd, err := parseCommand([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("parseCommand(%q) error = %v", tt.in, err)
			continue
		}
		if err == nil && cmd["state"] != tt.want {
			t.Errorf("parseCommand(%q) = %v, want %s", tt.in, cmd["state"], tt.want)
		}
	}
}

func TestAnnounce(t *testing.T) {
	b, fc := newTestBridge(newStripController())
	b.announce()

	if p, ok := fc.last("stripctl/bridge/state"); !ok || p.payload != "online" || !p.retained {
		t.Errorf("bridge state = %+v", p)
	}
	if _, ok := fc.last("homeassistant/switch/stripctl_ABC12300/switch/config"); !ok {
		t.Error("missing discovery for Desk Lamp")
	}
	if p, ok := fc.last("stripctl/strip"); !ok || !strings.Contains(p.payload, `"rssi":-52`) {
		t.Errorf("strip document = %+v", p)
	}
	for _, topic := range []string{"stripctl/desk_lamp/set", "stripctl/plug_5/set"} {
		if _, ok := fc.subscribed[topic]; !ok {
			t.Errorf("not subscribed to %s", topic)
		}
	}
}

func TestHandleCommand(t *testing.T) {
	ctrl := newStripController()
	b, _ := newTestBridge(ctrl)

	b.handleCommand("ABC12300", []byte("ON"))
	if ctrl.states["ABC12300"] != "ON" {
		t.Errorf("state = %s, want ON", ctrl.states["ABC12300"])
	}

	b.handleCommand("ABC12300", []byte(`{"state":"DIM"}`))
	b.handleCommand("ABC12300", []byte("on"))
	b.handleCommand("ABC12300", []byte(`{"state":"ON","brightness":10}`))
	b.handleCommand("UNKNOWN", []byte("OFF"))
	if ctrl.setCount() != 1 {
		t.Errorf("invalid commands reached the controller: %d sets", ctrl.setCount())
	}
}

func TestPollPublishesOutletState(t *testing.T) {
	ctrl := newStripController()
	b, fc := newTestBridge(ctrl)
	b.announce()

	ctrl.states["ABC12300"] = "ON"
	b.poll(context.Background())

	p, ok := fc.last("stripctl/desk_lamp")
	if !ok {
		t.Fatal("no state published for Desk Lamp")
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(p.payload), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state["state"] != "ON" || !p.retained {
		t.Errorf("published %+v", p)
	}
}

func TestHandleEvent(t *testing.T) {
	b, fc := newTestBridge(newStripController())
	d := device.Device{ID: "ABC12301", Name: "Plug 5"}

	b.handleEvent(device.Event{Type: "other", Device: &d})
	if _, ok := fc.last("stripctl/plug_5"); ok {
		t.Error("unrelated events must be ignored")
	}

	b.handleEvent(device.Event{
		Type:   device.EventOutletSwitched,
		Device: &d,
		State:  map[string]any{"state": "OFF"},
	})
	if p, ok := fc.last("stripctl/plug_5"); !ok || p.payload != `{"state":"OFF"}` {
		t.Errorf("published %+v", p)
	}
}

func TestStartStop(t *testing.T) {
	b, fc := newTestBridge(newStripController())
	b.cfg.PollInterval = time.Hour

	b.Start(context.Background())
	b.Stop()

	if p, ok := fc.last("stripctl/bridge/state"); !ok || p.payload != "offline" {
		t.Errorf("bridge state = %+v", p)
	}
	if !fc.disconnected {
		t.Error("expected disconnect")
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/urmzd/stripctl/pkg/device"
	"github.com/urmzd/stripctl/pkg/device/schema"
)

var outletSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"state": {"type": "string", "enum": ["ON", "OFF", "TOGGLE"]}},
	"required": ["state"],
	"additionalProperties": false
}`)

// memController keeps outlet states in memory.
type memController struct {
	states map[string]string
	sets   []map[string]any
}

func newMemController() *memController {
	return &memController{states: map[string]string{"ABC12301": "OFF"}}
}

func (m *memController) plug() device.Device {
	return device.Device{ID: "ABC12301", Name: "Plug 5", Type: device.DeviceTypeOutlet, StateSchema: outletSchema}
}

func (m *memController) ListDevices(context.Context) ([]device.Device, error) {
	return []device.Device{m.plug()}, nil
}

func (m *memController) GetDevice(_ context.Context, id string) (*device.Device, error) {
	d := m.plug()
	if id != d.ID && id != d.Name {
		return nil, device.ErrNotFound
	}
	return &d, nil
}

func (m *memController) GetDeviceState(_ context.Context, id string) (device.DeviceState, error) {
	if _, err := m.GetDevice(context.Background(), id); err != nil {
		return nil, err
	}
	return device.DeviceState{"state": m.states["ABC12301"]}, nil
}

func (m *memController) SetDeviceState(_ context.Context, id string, state map[string]any) (device.DeviceState, error) {
	m.sets = append(m.sets, state)
	next := state["state"].(string)
	if next == device.StateToggle {
		next = device.StateOn
		if m.states[id] == device.StateOn {
			next = device.StateOff
		}
	}
	m.states[id] = next
	return device.DeviceState{"state": next}, nil
}

func (m *memController) SystemInfo(context.Context) (map[string]any, error) {
	return map[string]any{"alias": "Office Strip", "device_id": "ABC123"}, nil
}

func (m *memController) IsConnected() bool { return true }
func (m *memController) Close()            {}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestToolNames(t *testing.T) {
	s := NewServer(newMemController(), schema.NewValidator())
	want := []string{
		"get_device", "get_device_state", "get_health", "get_system_info",
		"list_devices", "send_command", "set_device_state", "toggle", "turn_off", "turn_on",
	}
	if got := s.ToolNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ToolNames = %v, want %v", got, want)
	}
}

func TestTurnOnAndToggle(t *testing.T) {
	ctrl := newMemController()
	s := NewServer(ctrl, schema.NewValidator())
	ctx := context.Background()

	res, err := s.handleTurnOn(ctx, callTool(map[string]any{"id": "Plug 5"}))
	if err != nil || res.IsError {
		t.Fatalf("turn_on failed: %v %s", err, resultText(t, res))
	}
	var out SetDeviceStateOutput
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.DeviceID != "ABC12301" || out.State["state"] != "ON" {
		t.Errorf("unexpected output: %+v", out)
	}

	res, _ = s.handleToggle(ctx, callTool(map[string]any{"id": "ABC12301"}))
	if res.IsError {
		t.Fatalf("toggle failed: %s", resultText(t, res))
	}
	if ctrl.states["ABC12301"] != "OFF" {
		t.Errorf("toggle left state %s", ctrl.states["ABC12301"])
	}
}

func TestSetDeviceState_Validation(t *testing.T) {
	ctrl := newMemController()
	s := NewServer(ctrl, schema.NewValidator())

	res, _ := s.handleSetDeviceState(context.Background(), callTool(map[string]any{
		"id":    "Plug 5",
		"state": map[string]any{"state": "BRIGHT"},
	}))
	if !res.IsError || !strings.Contains(resultText(t, res), "validation error") {
		t.Errorf("expected validation error, got %s", resultText(t, res))
	}
	if len(ctrl.sets) != 0 {
		t.Error("invalid state reached the controller")
	}
}

func TestSetDeviceState_StringShorthand(t *testing.T) {
	ctrl := newMemController()
	s := NewServer(ctrl, schema.NewValidator())

	res, _ := s.handleSetDeviceState(context.Background(), callTool(map[string]any{
		"id":    "Plug 5",
		"state": "ON",
	}))
	if res.IsError {
		t.Fatalf("set_device_state failed: %s", resultText(t, res))
	}
	if ctrl.states["ABC12301"] != "ON" {
		t.Error("state not applied")
	}
}

func TestMissingID(t *testing.T) {
	s := NewServer(newMemController(), schema.NewValidator())
	res, _ := s.handleGetDeviceState(context.Background(), callTool(map[string]any{}))
	if !res.IsError || !strings.Contains(resultText(t, res), `"id"`) {
		t.Errorf("expected missing id error, got %s", resultText(t, res))
	}
}

func TestUnknownOutlet(t *testing.T) {
	s := NewServer(newMemController(), schema.NewValidator())
	res, _ := s.handleTurnOff(context.Background(), callTool(map[string]any{"id": "Nonexistent"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "not found") {
		t.Errorf("expected not found, got %s", resultText(t, res))
	}
}

func TestGetSystemInfo(t *testing.T) {
	s := NewServer(newMemController(), schema.NewValidator())
	res, _ := s.handleGetSystemInfo(context.Background(), callTool(nil))
	if res.IsError {
		t.Fatalf("get_system_info failed: %s", resultText(t, res))
	}
	var out GetSystemInfoOutput
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.System["device_id"] != "ABC123" {
		t.Errorf("system = %v", out.System)
	}
}

func TestGetSystemInfo_Disconnected(t *testing.T) {
	s := NewServer(device.NewNullController(), schema.NewValidator())
	res, _ := s.handleGetSystemInfo(context.Background(), callTool(nil))
	if !res.IsError {
		t.Error("expected error result without a strip")
	}
	if !strings.Contains(resultText(t, res), device.ErrNotConnected.Error()) {
		t.Errorf("unexpected message: %s", resultText(t, res))
	}
}

func TestListDevices_WithState(t *testing.T) {
	s := NewServer(newMemController(), schema.NewValidator())
	res, _ := s.handleListDevices(context.Background(), callTool(map[string]any{"include_state": true}))

	var out ListDevicesOutput
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 1 || out.Devices[0].State["state"] != "OFF" {
		t.Errorf("unexpected output: %+v", out)
	}
}

// stripController adds the bulk state and raw command paths of a real strip.
type stripController struct {
	*memController
	bulkReads   int
	singleReads int
	commands    []string
}

func (s *stripController) GetDeviceState(ctx context.Context, id string) (device.DeviceState, error) {
	s.singleReads++
	return s.memController.GetDeviceState(ctx, id)
}

func (s *stripController) GetDeviceStates(_ context.Context, ids []string) (map[string]device.DeviceState, error) {
	s.bulkReads++
	out := make(map[string]device.DeviceState, len(ids))
	for _, id := range ids {
		out[id] = device.DeviceState{"state": s.states[id]}
	}
	return out, nil
}

func (s *stripController) SendCommand(_ context.Context, command string) (string, error) {
	s.commands = append(s.commands, command)
	return `{"system":{"set_led_off":{"err_code":0}}}`, nil
}

func TestListDevices_WithStateReadsOnce(t *testing.T) {
	ctrl := &stripController{memController: newMemController()}
	s := NewServer(ctrl, schema.NewValidator())

	res, _ := s.handleListDevices(context.Background(), callTool(map[string]any{"include_state": true}))
	var out ListDevicesOutput
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Devices[0].State["state"] != "OFF" {
		t.Errorf("state = %v", out.Devices[0].State)
	}
	if ctrl.bulkReads != 1 || ctrl.singleReads != 0 {
		t.Errorf("bulk reads = %d, single reads = %d", ctrl.bulkReads, ctrl.singleReads)
	}
}

func TestSendCommand(t *testing.T) {
	ctrl := &stripController{memController: newMemController()}
	s := NewServer(ctrl, schema.NewValidator())

	cmd := `{"system":{"set_led_off":{"off":1}}}`
	res, _ := s.handleSendCommand(context.Background(), callTool(map[string]any{"command": cmd}))
	if res.IsError {
		t.Fatalf("send_command failed: %s", resultText(t, res))
	}
	if len(ctrl.commands) != 1 || ctrl.commands[0] != cmd {
		t.Errorf("commands = %v", ctrl.commands)
	}

	var out SendCommandOutput
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(string(out.Reply), "set_led_off") {
		t.Errorf("reply = %s", out.Reply)
	}
}

func TestSendCommand_Unsupported(t *testing.T) {
	s := NewServer(newMemController(), schema.NewValidator())
	res, _ := s.handleSendCommand(context.Background(), callTool(map[string]any{"command": `{}`}))
	if !res.IsError || !strings.Contains(resultText(t, res), device.ErrUnsupported.Error()) {
		t.Errorf("expected unsupported error, got %s", resultText(t, res))
	}
}

func TestTurnOn_LowercaseStateRejected(t *testing.T) {
	ctrl := newMemController()
	s := NewServer(ctrl, schema.NewValidator())

	res, _ := s.handleSetDeviceState(context.Background(), callTool(map[string]any{
		"id":    "Plug 5",
		"state": "on",
	}))
	if !res.IsError {
		t.Error("lowercase state accepted")
	}
	if len(ctrl.sets) != 0 {
		t.Error("lowercase state reached the controller")
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"strings"
	"testing"

	"github.com/urmzd/stripctl/pkg/powerstrip"
)

const stripReply = `{"system":{"get_sysinfo":{` +
	`"alias":"Office Strip","child_num":2,"children":[` +
	`{"alias":"Desk Lamp","id":"00","next_action":{"type":-1},"on_time":0,"state":0},` +
	`{"alias":"Plug 5","id":"01","next_action":{"type":-1},"on_time":90,"state":1}],` +
	`"deviceId":"ABC123","err_code":0,"feature":"TIM:ENE","hwId":"HW1","hw_ver":"1.0",` +
	`"latitude_i":0,"led_off":0,"longitude_i":0,"mac":"AA:BB:CC:DD:EE:FF",` +
	`"mic_type":"IOT.SMARTPLUGSWITCH","model":"HS300(US)","oemId":"OEM1","rssi":-60,` +
	`"status":"new","sw_ver":"1.0.6","updating":0}}}`

type recorder struct {
	commands   []string
	transports []powerstrip.Transport
}

func (r *recorder) Exchange(_ context.Context, t powerstrip.Transport, _ string, command string) (string, error) {
	r.commands = append(r.commands, command)
	r.transports = append(r.transports, t)
	if strings.Contains(command, "get_sysinfo") {
		return stripReply, nil
	}
	if strings.Contains(command, "set_led_off") {
		return `{"system":{"set_led_off":{"err_code":0}}}`, nil
	}
	return `{"system":{"set_relay_state":{"err_code":0}}}`, nil
}

func TestRun_Info(t *testing.T) {
	rec := &recorder{}
	var out bytes.Buffer

	err := run(context.Background(), []string{"-ip", "10.0.0.5", "info"}, &out, powerstrip.WithExchanger(rec))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(out.Bytes(), &fields); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if fields["device_id"] != "ABC123" {
		t.Errorf("device_id = %v", fields["device_id"])
	}
	if fields["address"] != "10.0.0.5:9999" {
		t.Errorf("address = %v", fields["address"])
	}
	if len(rec.commands) != 1 {
		t.Errorf("exchanges = %d, want 1", len(rec.commands))
	}
}

func TestRun_Outlets(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-ip", "10.0.0.5", "outlets"}, &out, powerstrip.WithExchanger(&recorder{}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"ABC12300", "Desk Lamp", "ABC12301", "Plug 5", "90s"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRun_SwitchOn(t *testing.T) {
	rec := &recorder{}
	var out bytes.Buffer

	err := run(context.Background(), []string{"-ip", "10.0.0.5", "on", "Plug 5"}, &out, powerstrip.WithExchanger(rec))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := `{"context":{"child_ids":["ABC12301"]},"system":{"set_relay_state":{"state":1}}}`
	if got := rec.commands[len(rec.commands)-1]; got != want {
		t.Errorf("command = %s, want %s", got, want)
	}
	if out.String() != "Plug 5: on\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_UnknownAlias(t *testing.T) {
	rec := &recorder{}
	err := run(context.Background(), []string{"-ip", "10.0.0.5", "off", "Nonexistent"}, &bytes.Buffer{}, powerstrip.WithExchanger(rec))
	if !errors.Is(err, powerstrip.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(rec.commands) != 1 {
		t.Errorf("exchanges = %d, want only the init query", len(rec.commands))
	}
}

func TestRun_Usage(t *testing.T) {
	cases := [][]string{
		{"info"},
		{"-ip", "10.0.0.5"},
		{"-ip", "10.0.0.5", "on"},
	}
	for _, args := range cases {
		err := run(context.Background(), args, &bytes.Buffer{}, powerstrip.WithExchanger(&recorder{}))
		if !errors.Is(err, errUsage) {
			t.Errorf("run(%v) = %v, want usage error", args, err)
		}
	}
}

func TestRun_BadTransport(t *testing.T) {
	err := run(context.Background(), []string{"-ip", "10.0.0.5", "-query-transport", "sctp", "info"}, &bytes.Buffer{})
	if !errors.Is(err, powerstrip.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestRun_Raw(t *testing.T) {
	tests := []struct {
		args []string
		want powerstrip.Transport
	}{
		{[]string{"-ip", "10.0.0.5", "raw", `{"system":{"set_led_off":{"off":1}}}`}, powerstrip.TransportTCP},
		{[]string{"-ip", "10.0.0.5", "-transport", "udp", "raw", `{"system":{"set_led_off":{"off":1}}}`}, powerstrip.TransportUDP},
	}
	for _, tt := range tests {
		rec := &recorder{}
		var out bytes.Buffer
		if err := run(context.Background(), tt.args, &out, powerstrip.WithExchanger(rec)); err != nil {
			t.Fatalf("run(%v): %v", tt.args, err)
		}
		if got := rec.transports[len(rec.transports)-1]; got != tt.want {
			t.Errorf("run(%v) used %s, want %s", tt.args, got, tt.want)
		}
		if out.String() != `{"system":{"set_led_off":{"err_code":0}}}`+"\n" {
			t.Errorf("output = %q", out.String())
		}
	}
}

func TestRun_RawRejectsInvalidJSON(t *testing.T) {
	rec := &recorder{}
	err := run(context.Background(), []string{"-ip", "10.0.0.5", "raw", `{"system":`}, &bytes.Buffer{}, powerstrip.WithExchanger(rec))
	if !errors.Is(err, powerstrip.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if len(rec.commands) != 1 {
		t.Errorf("exchanges = %d, want only the init query", len(rec.commands))
	}
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("err = %v, want flag.ErrHelp", err)
	}
	for _, want := range []string{"usage: stripctl", "-ip", "-transport"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("help output missing %q:\n%s", want, out.String())
		}
	}
}

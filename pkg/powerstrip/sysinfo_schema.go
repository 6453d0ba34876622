package powerstrip

import (
	"encoding/json"
	"fmt"

	"github.com/urmzd/stripctl/pkg/device/schema"
)

// sysInfoSchema requires every snapshot and outlet field with its JSON type.
// A reply missing any of them is rejected rather than default-filled.
const sysInfoSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["system"],
	"properties": {
		"system": {
			"type": "object",
			"required": ["get_sysinfo"],
			"properties": {
				"get_sysinfo": {"$ref": "#/$defs/sysinfo"}
			}
		}
	},
	"$defs": {
		"sysinfo": {
			"type": "object",
			"required": [
				"alias", "child_num", "children", "deviceId", "err_code", "feature",
				"hwId", "hw_ver", "latitude_i", "led_off", "longitude_i", "mac",
				"mic_type", "model", "oemId", "rssi", "status", "sw_ver", "updating"
			],
			"properties": {
				"alias": {"type": "string"},
				"child_num": {"type": "integer", "minimum": 0},
				"children": {"type": "array", "items": {"$ref": "#/$defs/child"}},
				"deviceId": {"type": "string"},
				"err_code": {"type": "integer"},
				"feature": {"type": "string"},
				"hwId": {"type": "string"},
				"hw_ver": {"type": "string"},
				"latitude_i": {"type": "integer"},
				"led_off": {"type": "integer"},
				"longitude_i": {"type": "integer"},
				"mac": {"type": "string"},
				"mic_type": {"type": "string"},
				"model": {"type": "string"},
				"oemId": {"type": "string"},
				"rssi": {"type": "integer"},
				"status": {"type": "string"},
				"sw_ver": {"type": "string"},
				"updating": {"type": "integer"}
			}
		},
		"child": {
			"type": "object",
			"required": ["alias", "id", "next_action", "on_time", "state"],
			"properties": {
				"alias": {"type": "string"},
				"id": {"type": "string"},
				"next_action": {
					"type": "object",
					"required": ["type"],
					"properties": {"type": {"type": "integer"}}
				},
				"on_time": {"type": "integer", "minimum": 0},
				"state": {"type": "integer"}
			}
		}
	}
}`

var defaultValidator = schema.NewValidator()

// ParseSystemInfo strictly parses a get_sysinfo reply.
func ParseSystemInfo(reply string) (*SysInfo, error) {
	return parseSystemInfo(defaultValidator, reply)
}

func parseSystemInfo(v *schema.Validator, reply string) (*SysInfo, error) {
	if err := v.ValidateJSON(json.RawMessage(sysInfoSchema), []byte(reply)); err != nil {
		return nil, fmt.Errorf("%w: get_sysinfo reply: %w", ErrProtocol, err)
	}

	var info SystemInfo
	if err := json.Unmarshal([]byte(reply), &info); err != nil {
		return nil, fmt.Errorf("%w: decode get_sysinfo reply: %w", ErrProtocol, err)
	}
	return &info.System.GetSysInfo, nil
}

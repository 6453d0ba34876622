package device

import "errors"

// Sentinels shared by every controller. Backends wrap their own errors with
// these so the API and MCP layers can map them without knowing the protocol.
var (
	// ErrNotFound means no outlet matches the id or alias.
	ErrNotFound = errors.New("outlet not found")

	// ErrTimeout means the device did not answer in time.
	ErrTimeout = errors.New("device did not respond in time")

	// ErrNotConnected means no strip is configured or reachable.
	ErrNotConnected = errors.New("no power strip connected")

	// ErrUnsupported means the controller has no raw command path.
	ErrUnsupported = errors.New("raw commands not supported by this controller")

	ErrValidation = errors.New("invalid payload")
)

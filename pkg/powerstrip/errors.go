package powerstrip

import (
	"errors"
	"os"
)

var (
	// ErrTransport indicates a connect, send or receive failure, including timeouts
	ErrTransport = errors.New("transport error")

	// ErrProtocol indicates a malformed or incomplete JSON envelope
	ErrProtocol = errors.New("protocol error")

	// ErrConfiguration indicates a command was attempted without a snapshot or device id
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound indicates an alias that matches no outlet in the snapshot
	ErrNotFound = errors.New("outlet not found")

	// ErrEncoding indicates a reply that did not decode to valid UTF-8
	ErrEncoding = errors.New("encoding error")
)

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}

package powerstrip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/stripctl/pkg/device"
)

const (
	// udpBufferSize bounds a single reply datagram; longer replies are truncated.
	udpBufferSize = 2048

	// maxTCPReply guards against a corrupt length header.
	maxTCPReply = 1 << 20
)

// Transport selects how a single exchange reaches the device.
type Transport int

const (
	transportUnset Transport = iota
	TransportTCP
	TransportUDP
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportUDP:
		return "udp"
	default:
		return "unset"
	}
}

// ParseTransport parses "tcp" or "udp" (case-insensitive). An empty string
// yields the unset value so callers fall back to defaults.
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return transportUnset, nil
	case "tcp":
		return TransportTCP, nil
	case "udp":
		return TransportUDP, nil
	default:
		return transportUnset, fmt.Errorf("%w: unknown transport %q", ErrConfiguration, s)
	}
}

// Exchanger performs one request/response round trip with a device.
// command is plaintext JSON; the reply is the decoded plaintext.
type Exchanger interface {
	Exchange(ctx context.Context, t Transport, addr string, command string) (string, error)
}

// NetClient exchanges commands over real sockets. Every call opens a fresh
// socket; nothing is pooled or reused.
type NetClient struct {
	timeout time.Duration
}

// NewNetClient creates a client whose exchanges are bounded by timeout.
func NewNetClient(timeout time.Duration) *NetClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NetClient{timeout: timeout}
}

// Exchange dispatches to SendTCP or SendUDP.
func (c *NetClient) Exchange(ctx context.Context, t Transport, addr string, command string) (string, error) {
	switch t {
	case TransportTCP:
		return c.SendTCP(ctx, addr, command)
	case TransportUDP:
		return c.SendUDP(ctx, addr, command)
	default:
		return "", fmt.Errorf("%w: no transport selected", ErrConfiguration)
	}
}

// SendUDP sends the obfuscated command from an ephemeral local port and waits
// for exactly one reply datagram.
func (c *NetClient) SendUDP(ctx context.Context, addr string, command string) (string, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %w", ErrTransport, addr, err)
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return "", fmt.Errorf("%w: bind udp: %w", ErrTransport, err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		return "", fmt.Errorf("%w: set read deadline: %w", ErrTransport, err)
	}

	payload, err := EncodeCommand(command, false)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("transport", "udp").
		Str("addr", addr).
		Int("bytes", len(payload)).
		Msg("Power strip TX")

	if _, err := conn.WriteToUDP(payload, raddr); err != nil {
		return "", fmt.Errorf("%w: send to %s: %w", ErrTransport, addr, err)
	}

	buf := make([]byte, udpBufferSize)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return "", receiveError(ctx, "receive from "+addr, err)
	}

	log.Debug().
		Str("transport", "udp").
		Str("addr", addr).
		Int("bytes", n).
		Msg("Power strip RX")

	return DecodeReply(buf[:n])
}

// SendTCP opens a new connection, writes the length-prefixed command and reads
// one length-prefixed reply. The whole exchange shares a single deadline.
func (c *NetClient) SendTCP(ctx context.Context, addr string, command string) (string, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", receiveError(ctx, "connect "+addr, err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := conn.SetDeadline(c.deadline(ctx)); err != nil {
		return "", fmt.Errorf("%w: set deadline: %w", ErrTransport, err)
	}

	payload, err := EncodeCommand(command, true)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("transport", "tcp").
		Str("addr", addr).
		Int("bytes", len(payload)).
		Msg("Power strip TX")

	if _, err := conn.Write(payload); err != nil {
		return "", fmt.Errorf("%w: send to %s: %w", ErrTransport, addr, err)
	}

	header := make([]byte, lengthPrefixSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return "", receiveError(ctx, "read length from "+addr, err)
	}
	n, err := frameLength(header)
	if err != nil {
		return "", err
	}
	if n > maxTCPReply {
		return "", fmt.Errorf("%w: reply length %d exceeds %d", ErrProtocol, n, maxTCPReply)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(conn, body); err != nil {
		return "", receiveError(ctx, "read reply from "+addr, err)
	}

	log.Debug().
		Str("transport", "tcp").
		Str("addr", addr).
		Int("bytes", n).
		Msg("Power strip RX")

	return DecodeReply(body)
}

// deadline returns the earlier of now+timeout and the context deadline.
func (c *NetClient) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

// receiveError wraps a socket failure in ErrTransport. Expired deadlines also
// match device.ErrTimeout, and a cancelled context is reported as such.
func receiveError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w (%w)", ctxErr, err)
	}
	if IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w: %w", ErrTransport, op, device.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

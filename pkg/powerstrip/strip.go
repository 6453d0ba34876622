package powerstrip

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/stripctl/pkg/device/schema"
)

const (
	// DefaultPort is the vendor LAN control port.
	DefaultPort = 9999

	// DefaultTimeout bounds every exchange unless overridden.
	DefaultTimeout = 2 * time.Second
)

// Config describes how to reach a power strip.
type Config struct {
	// IP is the device address. Required.
	IP string

	// Port defaults to DefaultPort.
	Port int

	// DeviceID overrides the id reported by the device when non-empty.
	DeviceID string

	// Timeout bounds each exchange. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Transport is the preference used by Send. Defaults to TCP.
	Transport Transport

	// QueryTransport carries get_sysinfo. Defaults to UDP.
	QueryTransport Transport

	// CommandTransport carries set_relay_state. Defaults to UDP.
	CommandTransport Transport
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Transport == transportUnset {
		c.Transport = TransportTCP
	}
	if c.QueryTransport == transportUnset {
		c.QueryTransport = TransportUDP
	}
	if c.CommandTransport == transportUnset {
		c.CommandTransport = TransportUDP
	}
	return c
}

// Option customizes a Strip at construction time.
type Option func(*Strip)

// WithExchanger replaces the socket client, mainly for tests.
func WithExchanger(x Exchanger) Option {
	return func(s *Strip) { s.exchanger = x }
}

// WithValidator shares a schema validator with other components.
func WithValidator(v *schema.Validator) Option {
	return func(s *Strip) { s.validator = v }
}

// Strip controls one multi-outlet power strip. A Strip is returned fully
// initialized by New; its snapshot and device id never change afterwards, so
// it is safe for concurrent use.
type Strip struct {
	cfg       Config
	addr      string
	exchanger Exchanger
	validator *schema.Validator

	deviceID string
	snapshot *SysInfo
}

// New contacts the device at cfg.IP, caches its system info and resolves the
// device id. It returns an error if the device cannot be reached or its reply
// cannot be parsed; no Strip is produced in that case.
func New(ctx context.Context, cfg Config, opts ...Option) (*Strip, error) {
	if cfg.IP == "" {
		return nil, fmt.Errorf("%w: device IP is required", ErrConfiguration)
	}
	cfg = cfg.withDefaults()

	s := &Strip{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.Port)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.exchanger == nil {
		s.exchanger = NewNetClient(cfg.Timeout)
	}
	if s.validator == nil {
		s.validator = defaultValidator
	}

	log.Info().
		Str("addr", s.addr).
		Str("transport", cfg.QueryTransport.String()).
		Msg("Initializing power strip")

	info, err := s.FetchSystemInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize power strip at %s: %w", s.addr, err)
	}

	s.snapshot = info
	s.deviceID = info.DeviceID
	if cfg.DeviceID != "" {
		s.deviceID = cfg.DeviceID
	}

	log.Info().
		Str("alias", info.Alias).
		Str("model", info.Model).
		Str("device_id", s.deviceID).
		Int("outlets", len(info.Children)).
		Msg("Power strip initialized")

	return s, nil
}

// FetchSystemInfo performs a live get_sysinfo query. The cached snapshot is
// not updated.
func (s *Strip) FetchSystemInfo(ctx context.Context) (*SysInfo, error) {
	reply, err := s.exchanger.Exchange(ctx, s.cfg.QueryTransport, s.addr, GetSysInfoCommand())
	if err != nil {
		return nil, err
	}
	return parseSystemInfo(s.validator, reply)
}

// ToggleOutlet switches the outlet whose alias matches exactly. An unknown
// alias fails with ErrNotFound before anything is sent.
func (s *Strip) ToggleOutlet(ctx context.Context, alias string, state RelayState) error {
	return s.SetRelayState(ctx, state, alias)
}

// SetRelayState switches several outlets with a single command. All aliases
// must resolve; otherwise nothing is sent.
func (s *Strip) SetRelayState(ctx context.Context, state RelayState, aliases ...string) error {
	if err := s.requireSnapshot(); err != nil {
		return err
	}
	if len(aliases) == 0 {
		return fmt.Errorf("%w: no outlet given", ErrConfiguration)
	}

	ids := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		child, ok := s.snapshot.FindChild(alias)
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotFound, alias)
		}
		ids = append(ids, child.ID)
	}

	return s.sendRelayState(ctx, state, ids)
}

// SetRelayStateByID switches outlets addressed by child id, so outlets that
// share an alias can still be told apart. Every id must be present in the
// snapshot; otherwise nothing is sent.
func (s *Strip) SetRelayStateByID(ctx context.Context, state RelayState, childIDs ...string) error {
	if err := s.requireSnapshot(); err != nil {
		return err
	}
	if len(childIDs) == 0 {
		return fmt.Errorf("%w: no outlet given", ErrConfiguration)
	}
	for _, id := range childIDs {
		if _, ok := s.snapshot.FindChildByID(id); !ok {
			return fmt.Errorf("%w: child id %q", ErrNotFound, id)
		}
	}
	return s.sendRelayState(ctx, state, childIDs)
}

func (s *Strip) requireSnapshot() error {
	if s.snapshot == nil || s.deviceID == "" {
		return fmt.Errorf("%w: strip has no system info or device id", ErrConfiguration)
	}
	return nil
}

func (s *Strip) sendRelayState(ctx context.Context, state RelayState, childIDs []string) error {
	addrs := make([]string, 0, len(childIDs))
	for _, id := range childIDs {
		addrs = append(addrs, CompositeAddress(s.deviceID, id))
	}

	cmd, err := RelayStateCommand(state, addrs...)
	if err != nil {
		return err
	}

	// The reply is awaited but not interpreted.
	if _, err := s.exchanger.Exchange(ctx, s.cfg.CommandTransport, s.addr, cmd); err != nil {
		return err
	}

	log.Info().
		Strs("outlets", addrs).
		Str("state", state.String()).
		Msg("Relay state set")

	return nil
}

// Send passes a raw plaintext command to the device over the preferred
// transport and returns the decoded reply.
func (s *Strip) Send(ctx context.Context, command string) (string, error) {
	return s.exchanger.Exchange(ctx, s.cfg.Transport, s.addr, command)
}

// Snapshot returns a copy of the system info cached at initialization.
func (s *Strip) Snapshot() *SysInfo {
	if s.snapshot == nil {
		return nil
	}
	info := *s.snapshot
	info.Children = s.Outlets()
	return &info
}

// Transport returns the transport preference used by Send.
func (s *Strip) Transport() Transport {
	return s.cfg.Transport
}

// DeviceID returns the resolved device id.
func (s *Strip) DeviceID() string {
	return s.deviceID
}

// Address returns the host:port the strip is reached at.
func (s *Strip) Address() string {
	return s.addr
}

// Outlets returns the outlets from the cached snapshot.
func (s *Strip) Outlets() []Child {
	if s.snapshot == nil {
		return nil
	}
	out := make([]Child, len(s.snapshot.Children))
	copy(out, s.snapshot.Children)
	return out
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var ErrStripNotFound = errors.New("power strip config not found")

// Strip is the persisted target of the power strip controller.
// Transports are stored as "tcp" or "udp".
type Strip struct {
	ID               int64
	ProfileID        int64
	IP               string
	Port             int
	DeviceID         string
	Timeout          time.Duration
	Transport        string
	QueryTransport   string
	CommandTransport string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Address returns ip:port.
func (s *Strip) Address() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

// StripStore provides power strip config operations.
type StripStore interface {
	Get(ctx context.Context, profileID int64) (*Strip, error)
	Save(ctx context.Context, s *Strip) error
	Delete(ctx context.Context, profileID int64) error
}

// Strips returns a StripStore for this database.
func (db *DB) Strips() StripStore {
	return &stripStore{db: db}
}

type stripStore struct {
	db *DB
}

func (s *stripStore) Get(ctx context.Context, profileID int64) (*Strip, error) {
	st := &Strip{}
	var timeoutMS int64
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, ip, port, device_id, timeout_ms,
		       transport, query_transport, command_transport, created_at, updated_at
		FROM strips WHERE profile_id = ?
	`, profileID).Scan(&st.ID, &st.ProfileID, &st.IP, &st.Port, &st.DeviceID, &timeoutMS,
		&st.Transport, &st.QueryTransport, &st.CommandTransport, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrStripNotFound
	}
	if err != nil {
		return nil, err
	}
	st.Timeout = time.Duration(timeoutMS) * time.Millisecond
	st.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	st.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return st, nil
}

// Save inserts the strip config for its profile or replaces the existing one.
// Zero values fall back to the protocol defaults.
func (s *stripStore) Save(ctx context.Context, st *Strip) error {
	if st.IP == "" {
		return fmt.Errorf("power strip config requires an IP")
	}
	if st.Port == 0 {
		st.Port = 9999
	}
	if st.Timeout <= 0 {
		st.Timeout = 2 * time.Second
	}
	if st.Transport == "" {
		st.Transport = "tcp"
	}
	if st.QueryTransport == "" {
		st.QueryTransport = "udp"
	}
	if st.CommandTransport == "" {
		st.CommandTransport = "udp"
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO strips (profile_id, ip, port, device_id, timeout_ms,
		                    transport, query_transport, command_transport)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET
		    ip = excluded.ip,
		    port = excluded.port,
		    device_id = excluded.device_id,
		    timeout_ms = excluded.timeout_ms,
		    transport = excluded.transport,
		    query_transport = excluded.query_transport,
		    command_transport = excluded.command_transport,
		    updated_at = datetime('now')
		RETURNING id
	`, st.ProfileID, st.IP, st.Port, st.DeviceID, st.Timeout.Milliseconds(),
		st.Transport, st.QueryTransport, st.CommandTransport).Scan(&st.ID)
	if err != nil {
		return fmt.Errorf("failed to save power strip config: %w", err)
	}
	return nil
}

func (s *stripStore) Delete(ctx context.Context, profileID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM strips WHERE profile_id = ?`, profileID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrStripNotFound
	}
	return nil
}

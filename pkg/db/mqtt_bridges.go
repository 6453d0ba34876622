package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrMQTTBridgeNotFound = errors.New("mqtt bridge config not found")

// MQTTBridge configures the MQTT bridge of a profile.
type MQTTBridge struct {
	ID              int64
	ProfileID       int64
	Enabled         bool
	Broker          string
	ClientID        string
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string
	PollInterval    time.Duration
	CreatedAt       time.Time
}

// MQTTBridgeStore provides MQTT bridge config operations.
type MQTTBridgeStore interface {
	Get(ctx context.Context, profileID int64) (*MQTTBridge, error)
	Create(ctx context.Context, b *MQTTBridge) error
	Update(ctx context.Context, b *MQTTBridge) error
}

// MQTTBridges returns an MQTTBridgeStore for this database.
func (db *DB) MQTTBridges() MQTTBridgeStore {
	return &mqttBridgeStore{db: db}
}

type mqttBridgeStore struct {
	db *DB
}

func (s *mqttBridgeStore) Get(ctx context.Context, profileID int64) (*MQTTBridge, error) {
	b := &MQTTBridge{}
	var pollSeconds int64
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, enabled, broker, client_id, username, password,
		       topic_prefix, discovery_prefix, poll_interval_s, created_at
		FROM mqtt_bridges WHERE profile_id = ?
	`, profileID).Scan(&b.ID, &b.ProfileID, &b.Enabled, &b.Broker, &b.ClientID, &b.Username,
		&b.Password, &b.TopicPrefix, &b.DiscoveryPrefix, &pollSeconds, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrMQTTBridgeNotFound
	}
	if err != nil {
		return nil, err
	}
	b.PollInterval = time.Duration(pollSeconds) * time.Second
	b.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	return b, nil
}

func (s *mqttBridgeStore) Create(ctx context.Context, b *MQTTBridge) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO mqtt_bridges (profile_id, enabled, broker, client_id, username, password,
		                          topic_prefix, discovery_prefix, poll_interval_s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ProfileID, b.Enabled, b.Broker, b.ClientID, b.Username, b.Password,
		b.TopicPrefix, b.DiscoveryPrefix, int64(b.PollInterval/time.Second))
	if err != nil {
		return fmt.Errorf("failed to create MQTT bridge config: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

func (s *mqttBridgeStore) Update(ctx context.Context, b *MQTTBridge) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE mqtt_bridges SET enabled = ?, broker = ?, client_id = ?, username = ?,
		       password = ?, topic_prefix = ?, discovery_prefix = ?, poll_interval_s = ?
		WHERE profile_id = ?
	`, b.Enabled, b.Broker, b.ClientID, b.Username, b.Password,
		b.TopicPrefix, b.DiscoveryPrefix, int64(b.PollInterval/time.Second), b.ProfileID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrMQTTBridgeNotFound
	}
	return nil
}

package db

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoActiveProfile = errors.New("no active profile found")

// Config represents the complete runtime configuration loaded from the database.
type Config struct {
	Profile   *Profile
	APIServer *APIServer
	Strip     *Strip      // nil until a strip IP has been configured
	MQTT      *MQTTBridge // nil when no bridge is configured
}

// APIAddress returns the API server listen address.
func (c *Config) APIAddress() string {
	if c.APIServer == nil {
		return (&APIServer{Host: defaultAPIHost, Port: defaultAPIPort}).Address()
	}
	return c.APIServer.Address()
}

// MQTTEnabled reports whether the MQTT bridge should run.
func (c *Config) MQTTEnabled() bool {
	return c.MQTT != nil && c.MQTT.Enabled
}

// Timezone returns the profile timezone.
func (c *Config) Timezone() string {
	if c.Profile == nil {
		return "UTC"
	}
	return c.Profile.Timezone
}

// ActiveConfig loads the complete configuration for the active profile.
func (db *DB) ActiveConfig(ctx context.Context) (*Config, error) {
	// Get active profile
	profile, err := db.Profiles().GetActive(ctx)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrNoActiveProfile
		}
		return nil, fmt.Errorf("failed to get active profile: %w", err)
	}

	config := &Config{
		Profile: profile,
	}

	// Get API server config
	apiServer, err := db.APIServers().Get(ctx, profile.ID)
	if err != nil && !errors.Is(err, ErrAPIServerNotFound) {
		return nil, fmt.Errorf("failed to get API server config: %w", err)
	}
	config.APIServer = apiServer

	strip, err := db.Strips().Get(ctx, profile.ID)
	if err != nil && !errors.Is(err, ErrStripNotFound) {
		return nil, fmt.Errorf("failed to get power strip config: %w", err)
	}
	config.Strip = strip

	bridge, err := db.MQTTBridges().Get(ctx, profile.ID)
	if err != nil && !errors.Is(err, ErrMQTTBridgeNotFound) {
		return nil, fmt.Errorf("failed to get MQTT bridge config: %w", err)
	}
	config.MQTT = bridge

	return config, nil
}

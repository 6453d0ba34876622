package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/stripctl/pkg/api"
	"github.com/urmzd/stripctl/pkg/db"
	"github.com/urmzd/stripctl/pkg/device"
	"github.com/urmzd/stripctl/pkg/device/schema"
	"github.com/urmzd/stripctl/pkg/mqtt"
	"github.com/urmzd/stripctl/pkg/powerstrip"

	_ "github.com/urmzd/stripctl/docs"
)

// @title           stripctl API
// @version         1.0
// @description     REST API for controlling the outlets of a smart power strip

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

func main() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Parse flags
	dbPath := flag.String("db", "", "Path to database file (default: $STRIPCTL_DB or ~/.config/stripctl/stripctl.db)")
	profileName := flag.String("profile", "", "Switch to this profile, creating it if needed")
	listen := flag.String("listen", "", "API listen address host:port (saved to the active profile)")
	ip := flag.String("ip", "", "Power strip IP address (saved to the active profile)")
	deviceID := flag.String("device-id", "", "Override the device id reported by the strip")
	timeout := flag.Duration("timeout", 0, "Per-exchange timeout (default 2s)")
	transport := flag.String("transport", "", "Transport for raw commands: tcp or udp")
	flag.Parse()

	ctx := context.Background()

	// Open database
	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	log.Info().Str("path", database.Path()).Msg("Database opened")

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Bootstrap if needed (first run)
	needsBootstrap, err := database.NeedsBootstrap(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to check bootstrap status")
	}
	if needsBootstrap {
		log.Info().Msg("First run detected, bootstrapping database...")
		if err := database.Bootstrap(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to bootstrap database")
		}
		log.Info().Msg("Database bootstrapped successfully")
	}

	if *profileName != "" {
		if err := selectProfile(ctx, database, *profileName); err != nil {
			log.Fatal().Err(err).Str("profile", *profileName).Msg("Failed to select profile")
		}
	}

	// Load configuration
	cfg, err := database.ActiveConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if *listen != "" {
		host, portStr, err := net.SplitHostPort(*listen)
		if err != nil {
			log.Fatal().Err(err).Str("listen", *listen).Msg("Invalid listen address")
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Fatal().Err(err).Str("listen", *listen).Msg("Invalid listen port")
		}
		server := &db.APIServer{ProfileID: cfg.Profile.ID, Host: host, Port: port}
		if err := database.APIServers().Save(ctx, server); err != nil {
			log.Fatal().Err(err).Msg("Failed to save API server config")
		}
		cfg.APIServer = server
	}

	if *ip != "" {
		st := &db.Strip{
			ProfileID: cfg.Profile.ID,
			IP:        *ip,
			DeviceID:  *deviceID,
			Timeout:   *timeout,
			Transport: *transport,
		}
		if err := database.Strips().Save(ctx, st); err != nil {
			log.Fatal().Err(err).Msg("Failed to save power strip config")
		}
		cfg.Strip = st
	}

	log.Info().
		Str("profile", cfg.Profile.Name).
		Str("timezone", cfg.Timezone()).
		Str("api_address", cfg.APIAddress()).
		Bool("mqtt", cfg.MQTTEnabled()).
		Msg("Configuration loaded")

	validator := schema.NewValidator()

	// Connect to the power strip; fall back to NullController
	var controller device.Controller
	var eventSubscriber device.EventSubscriber

	stripController, err := connectStrip(ctx, cfg.Strip, validator)
	if err != nil {
		log.Warn().Err(err).Msg("Power strip unavailable, using null controller")
		controller = device.NewNullController()
		eventSubscriber = device.NewNullEventSubscriber()
	} else {
		controller = stripController
		eventSubscriber = stripController
	}

	var bridge *mqtt.Bridge
	if cfg.MQTTEnabled() {
		bridge, err = mqtt.NewBridge(controller, eventSubscriber, validator, mqtt.Config{
			Broker:          cfg.MQTT.Broker,
			ClientID:        cfg.MQTT.ClientID,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			PollInterval:    cfg.MQTT.PollInterval,
		})
		if err != nil {
			log.Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT bridge unavailable")
		} else {
			bridge.Start(ctx)
		}
	}

	// Create and start API router
	router := api.NewRouter(controller, eventSubscriber, validator)

	// Handle shutdown gracefully
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down...")
		if bridge != nil {
			bridge.Stop()
		}
		controller.Close()
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
		os.Exit(0)
	}()

	// Start server
	addr := cfg.APIAddress()
	log.Info().Str("address", addr).Msg("Starting API server")

	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// selectProfile activates the named profile, creating it on first use.
func selectProfile(ctx context.Context, database *db.DB, name string) error {
	profiles := database.Profiles()
	p, err := profiles.GetByName(ctx, name)
	if errors.Is(err, db.ErrProfileNotFound) {
		p = &db.Profile{Name: name}
		if err := profiles.Create(ctx, p); err != nil {
			return err
		}
		log.Info().Str("profile", name).Msg("Profile created")
	} else if err != nil {
		return err
	}
	if p.IsActive {
		return nil
	}
	return profiles.SetActive(ctx, p.ID)
}

// connectStrip builds the outlet controller from the stored strip config.
func connectStrip(ctx context.Context, st *db.Strip, validator *schema.Validator) (*powerstrip.Controller, error) {
	if st == nil {
		return nil, powerstrip.ErrConfiguration
	}
	cfg, err := stripConfig(st)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = powerstrip.DefaultTimeout
	}
	initCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	strip, err := powerstrip.New(initCtx, cfg, powerstrip.WithValidator(validator))
	if err != nil {
		return nil, err
	}
	return powerstrip.NewController(strip), nil
}

func stripConfig(st *db.Strip) (powerstrip.Config, error) {
	cfg := powerstrip.Config{
		IP:       st.IP,
		Port:     st.Port,
		DeviceID: st.DeviceID,
		Timeout:  st.Timeout,
	}
	var err error
	if cfg.Transport, err = powerstrip.ParseTransport(st.Transport); err != nil {
		return cfg, err
	}
	if cfg.QueryTransport, err = powerstrip.ParseTransport(st.QueryTransport); err != nil {
		return cfg, err
	}
	if cfg.CommandTransport, err = powerstrip.ParseTransport(st.CommandTransport); err != nil {
		return cfg, err
	}
	return cfg, nil
}

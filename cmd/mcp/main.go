package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/stripctl/pkg/db"
	"github.com/urmzd/stripctl/pkg/device"
	"github.com/urmzd/stripctl/pkg/device/schema"
	stripmcp "github.com/urmzd/stripctl/pkg/mcp"
	"github.com/urmzd/stripctl/pkg/powerstrip"
)

func main() {
	// Logging must go to stderr, stdout is the MCP transport
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Parse flags
	dbPath := flag.String("db", "", "Path to database file (default: $STRIPCTL_DB or ~/.config/stripctl/stripctl.db)")
	ip := flag.String("ip", "", "Power strip IP address (overrides the stored config)")
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

	cfg, err := database.ActiveConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	stripCfg := powerstrip.Config{IP: *ip}
	if cfg.Strip != nil && *ip == "" {
		stripCfg.IP = cfg.Strip.IP
		stripCfg.Port = cfg.Strip.Port
		stripCfg.DeviceID = cfg.Strip.DeviceID
		stripCfg.Timeout = cfg.Strip.Timeout
		if stripCfg.Transport, err = powerstrip.ParseTransport(cfg.Strip.Transport); err != nil {
			log.Fatal().Err(err).Msg("Invalid stored transport")
		}
		if stripCfg.QueryTransport, err = powerstrip.ParseTransport(cfg.Strip.QueryTransport); err != nil {
			log.Fatal().Err(err).Msg("Invalid stored query transport")
		}
		if stripCfg.CommandTransport, err = powerstrip.ParseTransport(cfg.Strip.CommandTransport); err != nil {
			log.Fatal().Err(err).Msg("Invalid stored command transport")
		}
	}

	validator := schema.NewValidator()

	// Fall back to NullController when the strip is not reachable
	var controller device.Controller = device.NewNullController()
	timeout := stripCfg.Timeout
	if timeout <= 0 {
		timeout = powerstrip.DefaultTimeout
	}
	initCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	strip, err := powerstrip.New(initCtx, stripCfg, powerstrip.WithValidator(validator))
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("ip", stripCfg.IP).Msg("Power strip unavailable, using null controller")
	} else {
		controller = powerstrip.NewController(strip)
	}
	defer controller.Close()

	// Create and start MCP server
	mcpServer := stripmcp.NewServer(controller, validator)

	log.Info().Msg("Starting MCP server on stdio")

	if err := mcpServer.ServeStdio(); err != nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}

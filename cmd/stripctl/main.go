// Command stripctl queries and switches the outlets of a power strip.
//
//	stripctl -ip 192.168.1.50 info
//	stripctl -ip 192.168.1.50 outlets
//	stripctl -ip 192.168.1.50 on "Desk Lamp"
//	stripctl -ip 192.168.1.50 off "Desk Lamp" "Heater"
//	stripctl -ip 192.168.1.50 -transport udp raw '{"system":{"get_sysinfo":{}}}'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/stripctl/pkg/powerstrip"
)

var errUsage = errors.New("usage: stripctl -ip <addr> [flags] info | outlets | on <alias>... | off <alias>... | raw <json>")

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Error().Err(err).Msg("stripctl failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, opts ...powerstrip.Option) error {
	fs := flag.NewFlagSet("stripctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	ip := fs.String("ip", "", "Power strip IP address")
	port := fs.Int("port", powerstrip.DefaultPort, "Power strip port")
	deviceID := fs.String("device-id", "", "Override the device id reported by the strip")
	timeout := fs.Duration("timeout", powerstrip.DefaultTimeout, "Per-exchange timeout")
	query := fs.String("query-transport", "udp", "Transport for get_sysinfo: tcp or udp")
	command := fs.String("command-transport", "udp", "Transport for set_relay_state: tcp or udp")
	transport := fs.String("transport", "tcp", "Transport for raw commands: tcp or udp")
	verbose := fs.Bool("v", false, "Log every exchange")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintln(out, errUsage)
			fs.SetOutput(out)
			fs.PrintDefaults()
		}
		return err
	}
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	rest := fs.Args()
	if *ip == "" || len(rest) == 0 {
		return errUsage
	}

	cfg := powerstrip.Config{
		IP:       *ip,
		Port:     *port,
		DeviceID: *deviceID,
		Timeout:  *timeout,
	}
	var err error
	if cfg.Transport, err = powerstrip.ParseTransport(*transport); err != nil {
		return err
	}
	if cfg.QueryTransport, err = powerstrip.ParseTransport(*query); err != nil {
		return err
	}
	if cfg.CommandTransport, err = powerstrip.ParseTransport(*command); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 4*(*timeout)+time.Second)
	defer cancel()

	strip, err := powerstrip.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	switch rest[0] {
	case "info":
		return printInfo(out, strip)
	case "outlets":
		return printOutlets(out, strip)
	case "on", "off":
		if len(rest) < 2 {
			return errUsage
		}
		state := powerstrip.RelayOff
		if rest[0] == "on" {
			state = powerstrip.RelayOn
		}
		if err := strip.SetRelayState(ctx, state, rest[1:]...); err != nil {
			return err
		}
		for _, alias := range rest[1:] {
			_, _ = fmt.Fprintf(out, "%s: %s\n", alias, state)
		}
		return nil
	case "raw":
		if len(rest) != 2 {
			return errUsage
		}
		if !json.Valid([]byte(rest[1])) {
			return fmt.Errorf("%w: raw command is not valid JSON", powerstrip.ErrConfiguration)
		}
		reply, err := strip.Send(ctx, rest[1])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, reply)
		return err
	default:
		return fmt.Errorf("unknown command %q: %w", rest[0], errUsage)
	}
}

func printInfo(out io.Writer, strip *powerstrip.Strip) error {
	fields := strip.Snapshot().Fields()
	fields["address"] = strip.Address()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(fields)
}

func printOutlets(out io.Writer, strip *powerstrip.Strip) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tALIAS\tSTATE\tON TIME")
	for _, c := range strip.Outlets() {
		state := powerstrip.RelayOff
		if c.On() {
			state = powerstrip.RelayOn
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%ds\n",
			powerstrip.CompositeAddress(strip.DeviceID(), c.ID), c.Alias, state, c.OnTime)
	}
	return tw.Flush()
}

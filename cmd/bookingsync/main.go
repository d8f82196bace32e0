package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/hilthontt/bookingsync/internal/infrastructure/configs"
	"github.com/hilthontt/bookingsync/internal/infrastructure/logging"
	"github.com/hilthontt/bookingsync/internal/notification"
)

const usage = `Usage: bookingsync [flags] [run|route]

Commands:
  run     connect, follow one booking and serve the local status API (default)
  route   read a push payload as JSON and print the screen it opens

Flags:
`

type options struct {
	configPath string
	bookingID  string
	token      string
	selfID     string
	payload    string
}

func main() {
	opts := options{}
	flags := pflag.NewFlagSet("bookingsync", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	flags.StringVarP(&opts.bookingID, "booking", "b", "", "booking to activate on start")
	flags.StringVar(&opts.token, "token", "", "session credential (overrides config)")
	flags.StringVar(&opts.selfID, "self", "", "id of the local participant")
	flags.StringVar(&opts.payload, "payload", "", "push payload for route; read from stdin when empty")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		os.Exit(2)
	}

	command := "run"
	if flags.NArg() > 0 {
		command = flags.Arg(0)
	}

	switch command {
	case "route":
		if err := routeCommand(opts.payload, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "run":
		os.Exit(runCommand(opts))
	default:
		flags.Usage()
		os.Exit(2)
	}
}

func runCommand(opts options) int {
	cfg, err := configs.Load(configs.DetermineConfigPath(opts.configPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if opts.token != "" {
		cfg.Connection.Token = opts.token
	}
	if opts.selfID != "" {
		cfg.Connection.SelfID = opts.selfID
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		FilePath: cfg.Logger.FilePath,
		Encoding: cfg.Logger.Encoding,
		Level:    cfg.Logger.Level,
	})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts.bookingID, logger); err != nil {
		logger.Error(logging.General, logging.Shutdown, "client stopped with error", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return 1
	}
	return 0
}

// routeCommand prints the target for a payload given inline or on in.
func routeCommand(inline string, in io.Reader, out io.Writer) error {
	var raw []byte
	if strings.TrimSpace(inline) != "" {
		raw = []byte(inline)
	} else {
		b, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		raw = b
	}

	var payload notification.Payload
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}

	enc := json.NewEncoder(out)
	return enc.Encode(notification.Route(payload))
}

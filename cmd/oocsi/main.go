// Command oocsi is a diagnostic tool for OOCSI servers: subscribe to
// channels, publish one-shot messages, and make calls from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	oocsi "github.com/oocsi/oocsi-go"
	"github.com/oocsi/oocsi-go/internal/config"
	"github.com/oocsi/oocsi-go/internal/log"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	host       string
	port       int
	handle     string
	wsURL      string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:           "oocsi",
		Short:         "publish, subscribe and call on an OOCSI server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file path")
	pf.StringVar(&flags.host, "host", "", "OOCSI server host")
	pf.IntVar(&flags.port, "port", 0, "OOCSI server port")
	pf.StringVar(&flags.handle, "handle", "", "client handle (# becomes a random digit)")
	pf.StringVar(&flags.wsURL, "websocket", "", "use the server's websocket endpoint instead of TCP")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(listenCmd(flags), sendCmd(flags), callCmd(flags))
	return root
}

// resolve merges the config file with any explicitly set flags.
func (f *cliFlags) resolve(cmd *cobra.Command) (config.Config, *zerolog.Logger, error) {
	bootstrap := log.New("info")
	cfg, _, err := config.Load(bootstrap, f.configPath)
	if err != nil {
		return cfg, bootstrap, err
	}

	if cmd.Flags().Changed("host") {
		cfg.Host = f.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = f.port
	}
	if cmd.Flags().Changed("handle") {
		cfg.Handle = f.handle
	}
	if cmd.Flags().Changed("websocket") {
		cfg.WebSocketURL = f.wsURL
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	return cfg, log.New(cfg.LogLevel), nil
}

func connect(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*oocsi.Client, error) {
	opts := []oocsi.Option{
		oocsi.WithHost(cfg.Host),
		oocsi.WithPort(cfg.Port),
		oocsi.WithConnectTimeout(cfg.ConnectTimeout),
		oocsi.WithHandshakeTimeout(cfg.HandshakeTimeout),
		oocsi.WithLogger(logger),
	}
	if cfg.WebSocketURL != "" {
		opts = append(opts, oocsi.WithWebSocket(cfg.WebSocketURL))
	}

	client, err := oocsi.New(cfg.Handle, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func listenCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "listen <channel>...",
		Short: "subscribe to channels and print incoming messages as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.resolve(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			enc := json.NewEncoder(os.Stdout)
			for _, channel := range args {
				if err := client.Subscribe(channel, func(sender, recipient string, payload map[string]any) {
					enc.Encode(map[string]any{
						"sender":    sender,
						"recipient": recipient,
						"payload":   payload,
					})
				}); err != nil {
					return err
				}
			}

			logger.Info().Strs("channels", args).Str("handle", client.Handle()).Msg("listening")
			if err := client.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func sendCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <channel> [key=value]...",
		Short: "publish one message to a channel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			payload, err := parsePayload(args[1:])
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Send(args[0], payload); err != nil {
				return err
			}
			logger.Info().Str("channel", args[0]).Msg("message sent")
			return nil
		},
	}
}

func callCmd(flags *cliFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <channel> <name> [key=value]...",
		Short: "make a call and print the response as JSON",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			payload, err := parsePayload(args[2:])
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			// The receive loop must run for the response to arrive.
			go client.Run(ctx)

			resp, err := client.Call(args[0], args[1], payload, timeout)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(resp)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "response wait timeout")
	return cmd
}

// parsePayload turns key=value arguments into a payload map. Values that
// parse as numbers or booleans are sent typed; everything else is a
// string.
func parsePayload(args []string) (map[string]any, error) {
	payload := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid payload argument %q, want key=value", arg)
		}
		switch {
		case raw == "true" || raw == "false":
			payload[key] = raw == "true"
		default:
			if n, err := strconv.ParseFloat(raw, 64); err == nil {
				payload[key] = n
			} else {
				payload[key] = raw
			}
		}
	}
	return payload, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/sherpa-tap/pkg/client"
	"github.com/Sternrassler/sherpa-tap/pkg/config"
	"github.com/Sternrassler/sherpa-tap/pkg/logging"
	"github.com/Sternrassler/sherpa-tap/pkg/metrics"
	"github.com/Sternrassler/sherpa-tap/pkg/pagination"
	"github.com/Sternrassler/sherpa-tap/pkg/retry"
	"github.com/Sternrassler/sherpa-tap/pkg/singer"
	"github.com/Sternrassler/sherpa-tap/pkg/state"
	"github.com/Sternrassler/sherpa-tap/pkg/stream"
	"github.com/Sternrassler/sherpa-tap/pkg/tap"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Singer messages go to stdout, logs
// to stderr.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configFile, logLevel string
	var pretty bool

	root := &cobra.Command{
		Use:           "sherpa-tap",
		Short:         "Singer tap for the Sherpa change feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML or JSON configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&pretty, "pretty", false, "Human-readable log output")

	load := func() (*config.Config, zerolog.Logger, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, zerolog.Nop(), err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if pretty {
			cfg.Log.Pretty = true
		}
		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, zerolog.Nop(), err
		}
		logger := logging.Setup(logging.Config{
			Level:  level,
			Pretty: cfg.Log.Pretty,
			Output: stderr,
		})
		return cfg, logger, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sherpa-tap v%s\n", version)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "streams",
		Short: "List available streams",
		Run: func(cmd *cobra.Command, args []string) {
			for _, d := range stream.Catalog() {
				param := d.PageSizeParam
				if param == "" {
					param = "-"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-22s keys=%s page_size_param=%s\n",
					d.Name, d.Service, strings.Join(d.PrimaryKeys, ","), param)
			}
		},
	})

	var streams []string
	var metricsAddr string
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the selected streams",
		Long: `Sync drains each selected stream from its persisted token until the
feed is exhausted, writing Singer messages to stdout.

Example:
  sherpa-tap sync --config config.yaml --stream changed_stock`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if len(streams) > 0 {
				cfg.Streams = streams
			}
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runSync(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
	syncCmd.Flags().StringSliceVarP(&streams, "stream", "s", nil, "Stream to sync (repeatable; default all)")
	syncCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address")
	root.AddCommand(syncCmd)

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or edit persisted stream state",
	}
	stateCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the bookmark document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), load, func(store *state.Store) error {
				data, err := state.Encode(store.Snapshot())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			})
		},
	})
	stateCmd.AddCommand(&cobra.Command{
		Use:   "set <stream> <token>",
		Short: "Set a stream's cursor, also backwards",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := stream.Lookup(args[0]); err != nil {
				return err
			}
			token, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid token %q: %w", args[1], err)
			}
			return withStore(cmd.Context(), load, func(store *state.Store) error {
				store.Override(args[0], token)
				return store.Flush(cmd.Context())
			})
		},
	})
	stateCmd.AddCommand(&cobra.Command{
		Use:   "reset <stream>",
		Short: "Forget a stream's state so it restarts from the first token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := stream.Lookup(args[0]); err != nil {
				return err
			}
			return withStore(cmd.Context(), load, func(store *state.Store) error {
				store.Reset(args[0])
				return store.Flush(cmd.Context())
			})
		},
	})
	root.AddCommand(stateCmd)

	return root
}

// withStore opens the configured state store, runs fn and closes the store.
func withStore(ctx context.Context, load func() (*config.Config, zerolog.Logger, error), fn func(*state.Store) error) error {
	cfg, logger, err := load()
	if err != nil {
		return err
	}
	backend, err := cfg.State.OpenBackend(ctx)
	if err != nil {
		return err
	}
	store, err := state.Open(ctx, backend, logger)
	if err != nil {
		backend.Close()
		return err
	}
	defer store.Close()
	return fn(store)
}

func runSync(ctx context.Context, cfg *config.Config, logger zerolog.Logger, out io.Writer) error {
	if cfg.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.MetricsAddr, logger); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	backend, err := cfg.State.OpenBackend(ctx)
	if err != nil {
		return err
	}
	store, err := state.Open(ctx, backend, logger)
	if err != nil {
		backend.Close()
		return err
	}
	defer store.Close()

	sherpa, err := client.New(cfg.ClientConfig())
	if err != nil {
		return err
	}
	sherpa.SetLogger(logger)

	writer := singer.NewWriter(out)
	engine, err := pagination.New(pagination.Config{
		Fetcher: sherpa,
		Retry:   retry.New(cfg.RetryConfig()),
		Store:   store,
		Sink:    writer,
		Logger:  &logger,
	})
	if err != nil {
		return err
	}

	t := &tap.Tap{
		Engine:   engine,
		Sink:     writer,
		Store:    store,
		PageSize: cfg.PageSize,
		Logger:   &logger,
	}

	logger.Info().
		Str("endpoint", sherpa.Endpoint()).
		Strs("streams", cfg.Streams).
		Str("state_backend", cfg.State.Backend).
		Msg("Starting sync run")

	_, err = t.Run(ctx, cfg.Streams)
	return err
}

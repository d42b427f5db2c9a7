package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/claude-relay/config"
	"github.com/randalmurphal/claude-relay/relay"
	"github.com/randalmurphal/claude-relay/server"
	"github.com/randalmurphal/claude-relay/session"
)

// serveFlags are command-line overrides applied on top of the config file
// and environment.
type serveFlags struct {
	ConfigPath string
	Listen     string
	LogLevel   string
}

// shutdownSlack is added to the kill grace period when waiting for runs to
// exit at shutdown.
const shutdownSlack = 5 * time.Second

func newServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the websocket server",
		Long: `Start the websocket server.

Configuration is read from --config (YAML or TOML, by extension), then
CLAUDE_RELAY_* environment variables, then the flags below. Changes to the
config file's log_level take effect without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(cmd, flags)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, flags.ConfigPath, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&flags.ConfigPath, "config", "", "Path to a YAML or TOML config file")
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "Address to listen on (overrides config)")
	cmd.Flags().StringVar(&flags.LogLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	return cmd
}

func loadServeConfig(cmd *cobra.Command, flags *serveFlags) (config.Config, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed("listen") {
		cfg.Listen = flags.Listen
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. The returned LevelVar adjusts its
// level at runtime.
func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	if l, err := config.ParseLevel(cfg.LogLevel); err == nil {
		level.Set(l)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == config.LogFormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), level
}

func serve(ctx context.Context, cfg config.Config, configPath string, logOut io.Writer) error {
	logger, level := newLogger(cfg, logOut)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := session.NewRegistry()
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := server.NewMetrics(promReg, registry)

	runnerOpts := append(cfg.ToOptions(), relay.WithLogger(logger), relay.WithObserver(metrics))
	runner := relay.NewRunner(registry, runnerOpts...)

	srv := server.New(runner,
		server.WithLogger(logger),
		server.WithAllowedOrigins(cfg.AllowedOrigins...),
		server.WithGatherer(promReg),
	)

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(next config.Config) {
				l, err := config.ParseLevel(next.LogLevel)
				if err != nil {
					return
				}
				if l != level.Level() {
					level.Set(l)
					logger.Info("log level changed", slog.String("level", l.String()))
				}
			})
			if err != nil {
				logger.Warn("config watch stopped", slog.Any("error", err))
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("claude-relay listening",
			slog.String("addr", cfg.Listen),
			slog.String("claude", cfg.ClaudePath))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Int("sessions", registry.Count()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracePeriod+shutdownSlack)
	defer cancel()

	httpErr := httpSrv.Shutdown(shutdownCtx)
	relayErr := srv.Shutdown(shutdownCtx)
	return errors.Join(httpErr, relayErr)
}

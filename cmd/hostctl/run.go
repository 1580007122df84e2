package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jdelaire/hostctl/adapters/telegram"
	"github.com/jdelaire/hostctl/core"
	"github.com/jdelaire/hostctl/core/chat"
	"github.com/jdelaire/hostctl/core/configwatch"
	"github.com/jdelaire/hostctl/core/events"
	"github.com/jdelaire/hostctl/core/ops"
	"github.com/jdelaire/hostctl/internal/config"
	"github.com/jdelaire/hostctl/internal/keychain"
	"github.com/jdelaire/hostctl/internal/metrics"
	"github.com/jdelaire/hostctl/internal/screenshot"
	"github.com/jdelaire/hostctl/internal/sysaction"
	"github.com/jdelaire/hostctl/internal/sysinfo"
)

const reloadDebounce = 500 * time.Millisecond

func runCommand(args []string) error {
	fs := newFlagSet("run")
	configPath := fs.String("config", config.DefaultPath(), "path to the YAML config file")
	logLevel := fs.String("log-level", "", "override log_level from the config (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	stream := events.NewStream(events.DefaultBuffer)
	logger, err := newLogger(cfg, stream)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go drainEvents(ctx, stream)

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	texts := ops.DefaultTexts().WithLabels(ops.Labels(cfg.Labels))
	reg, err := buildRegistry(cfg, texts, logger)
	if err != nil {
		return err
	}

	factory := func(token string) chat.Transport {
		c := telegram.New(token, logger).WithMetrics(m)
		if cfg.APIBaseURL != "" {
			c.WithBaseURL(cfg.APIBaseURL)
		}
		return c
	}

	settings := loadSettings(cfg, logger)
	svc := core.NewService(factory, reg, texts, settings, logger).
		WithMetrics(m).
		WithEvents(stream)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if cfg.SocketPath != "" {
		srv := core.NewServer(cfg.SocketPath, svc, logger)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("control socket: %w", err)
		}
		defer srv.Shutdown()
	}

	reloader := core.NewReloader(svc, func(path string) (core.Settings, error) {
		next, err := config.Load(path)
		if err != nil {
			return core.Settings{}, err
		}
		return loadSettings(next, logger), nil
	}, settings, logger)
	watcher := configwatch.New(reloadDebounce, logger)
	watcher.Watch(*configPath, reloader.Reload)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Warn("config reload disabled", "error", err)
		}
	}()

	supervised := cfg.SocketPath != ""
	if !svc.Start(ctx) && !supervised {
		return errors.New("bot did not start, see the log")
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case err := <-svc.Ended():
			if !supervised {
				return fmt.Errorf("polling session ended: %w", err)
			}
			logger.Warn("polling session ended, waiting for a start request on the control socket", "socket", cfg.SocketPath)
		}
	}
}

func newLogger(cfg *config.Config, stream *events.Stream) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(events.NewHandler(inner, stream)), nil
}

// drainEvents keeps the event stream moving. Log events already reach
// stderr through the inner handler; run-state changes go to stdout.
func drainEvents(ctx context.Context, stream *events.Stream) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-stream.Events():
			if e.Kind != events.KindStatus {
				continue
			}
			state := "stopped"
			if e.Running {
				state = "running"
			}
			fmt.Fprintf(os.Stdout, "%s bot %s\n", e.Time.Format(time.RFC3339), state)
		}
	}
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

func buildRegistry(cfg *config.Config, texts ops.Texts, logger *slog.Logger) (*ops.Registry, error) {
	displays := make([]screenshot.Display, 0, len(cfg.Displays))
	for _, d := range cfg.Displays {
		displays = append(displays, screenshot.Display{Name: d.Name, X: d.X, Command: d.Command})
	}
	if len(displays) == 0 {
		displays = screenshot.DefaultDisplays()
	}

	reg := ops.NewRegistry()
	all := []ops.Op{
		&ops.MenuOp{Registry: reg, Texts: texts},
		&ops.StatusOp{Info: sysinfo.New(logger), Texts: texts},
		&ops.ScreenshotOp{Screens: screenshot.New(displays, logger), Texts: texts, Logger: logger},
	}
	runner := sysaction.New(logger)
	for _, p := range ops.PowerOps(cfg.Directives(sysaction.DefaultDirectives()), runner, texts, logger, nil) {
		all = append(all, p)
	}
	for _, op := range all {
		if err := reg.Register(op); err != nil {
			return nil, err
		}
	}
	if err := ops.BindLabels(reg, texts.Labels); err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	return reg, nil
}

// loadSettings resolves the token. A missing token yields empty
// settings so the session start fails with an invalid token.
func loadSettings(cfg *config.Config, logger *slog.Logger) core.Settings {
	token, err := cfg.ResolveToken(keychain.Get)
	if err != nil {
		logger.Warn("no bot token available", "error", err)
	}
	return core.Settings{Token: token, AuthorizedUsers: cfg.AuthorizedUsers}
}

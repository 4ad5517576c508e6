// Package daemonrun wires configuration into a running dealflow daemon.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"dealflow/internal/analytics"
	"dealflow/internal/catalog"
	"dealflow/internal/config"
	"dealflow/internal/daemon"
	"dealflow/internal/logging"
	"dealflow/internal/metrics"
	"dealflow/internal/platform"
	"dealflow/internal/scheduler"
	"dealflow/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the dealflow daemon and blocks until SIGINT, SIGTERM, or
// cancellation of cmdCtx.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "dealflow.log")},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}

	svc, err := Build(cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return err
	}
	logConfigSnapshot(logger, cfg, svc.Registry)

	d, err := daemon.New(cfg, svc, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check for another running daemon and the api bind address"),
			logging.String(logging.FieldImpact, "queued posts will not be dispatched"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("dealflow daemon shutting down")
	return nil
}

// Build assembles the daemon services around an open store.
func Build(cfg *config.Config, st *store.Store, logger *slog.Logger) (daemon.Services, error) {
	m := metrics.New()
	registry := platform.FromConfig(cfg, logger)
	sched := scheduler.New(cfg, st, registry, logger, scheduler.WithMetrics(m))
	stats := analytics.NewService(cfg, st, logger, analytics.WithMetrics(m))
	jobs, err := analytics.NewJobs(stats, logger)
	if err != nil {
		return daemon.Services{}, fmt.Errorf("schedule analytics jobs: %w", err)
	}
	return daemon.Services{
		Store:     st,
		Registry:  registry,
		Scheduler: sched,
		Catalog:   catalog.NewService(cfg, st, sched, logger, catalog.WithMetrics(m)),
		Analytics: stats,
		Jobs:      jobs,
		Metrics:   m,
	}, nil
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config, registry *platform.Registry) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.Any("enabled_platforms", cfg.EnabledPlatforms()),
		logging.Any("adapters", registry.Names()),
		logging.Duration("tick_interval", cfg.TickInterval()),
		logging.Int("max_attempts", cfg.Scheduler.MaxAttempts),
		logging.Bool("bitly_token_present", strings.TrimSpace(cfg.Shortener.BitlyToken) != ""),
		logging.Bool("api_token_present", strings.TrimSpace(cfg.API.Token) != ""),
		logging.String("database", cfg.DatabasePath()),
	)
}

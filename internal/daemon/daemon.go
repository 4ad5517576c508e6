package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/gofrs/flock"

	"dealflow/internal/analytics"
	"dealflow/internal/catalog"
	"dealflow/internal/config"
	"dealflow/internal/logging"
	"dealflow/internal/metrics"
	"dealflow/internal/platform"
	"dealflow/internal/scheduler"
	"dealflow/internal/store"
)

// Services bundles the components the daemon coordinates and serves.
type Services struct {
	Store     *store.Store
	Registry  *platform.Registry
	Scheduler *scheduler.Scheduler
	Catalog   *catalog.Service
	Analytics *analytics.Service
	Jobs      *analytics.Jobs
	Metrics   *metrics.Metrics
}

func (s Services) validate() error {
	if s.Store == nil || s.Scheduler == nil || s.Catalog == nil || s.Analytics == nil {
		return errors.New("daemon requires store, scheduler, catalog, and analytics services")
	}
	return nil
}

// Daemon coordinates the scheduler loop, cron jobs, and HTTP API, and
// enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	svc    Services
	api    *apiServer

	lockPath string
	lock     *flock.Flock
	pidPath  string

	running atomic.Bool
	cancel  context.CancelFunc
	loop    chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"database_path"`
	LockPath     string         `json:"lock_path"`
	Platforms    []string       `json:"platforms"`
	Queue        map[string]int `json:"queue"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, svc Services, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if err := svc.validate(); err != nil {
		return nil, err
	}
	if svc.Registry == nil {
		svc.Registry = platform.NewRegistry()
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		svc:      svc,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		pidPath:  cfg.PIDPath(),
	}
	d.api = newAPIServer(cfg, NewRouter(cfg, svc, logger, WithStatus(d.Status)), logger)
	return d, nil
}

// Start acquires the daemon lock, then launches the scheduler loop, the cron
// jobs, and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dealflow daemon instance is already running")
	}
	if err := writePIDFile(d.pidPath); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.releaseFiles()
		return err
	}

	d.cancel = cancel
	d.loop = make(chan struct{})
	go func() {
		defer close(d.loop)
		if err := d.svc.Scheduler.Run(runCtx); err != nil {
			logging.ErrorWithContext(d.logger, "scheduler loop exited", "scheduler_exit",
				logging.Error(err),
				logging.String(logging.FieldImpact, "queued posts will not be dispatched"),
				logging.String(logging.FieldErrorHint, "check database access and restart the daemon"),
			)
		}
	}()
	if d.svc.Jobs != nil {
		d.svc.Jobs.Start()
	}

	d.running.Store(true)
	d.logger.Info("dealflow daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock. Any tick
// in flight finishes recording its outcomes first.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.loop != nil {
		<-d.loop
		d.loop = nil
	}
	if d.svc.Jobs != nil {
		d.svc.Jobs.Stop()
	}
	d.api.stop()
	d.releaseFiles()
	d.running.Store(false)
	d.logger.Info("dealflow daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.svc.Store.Close()
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the API listen address once started.
func (d *Daemon) Addr() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockPath:     d.lockPath,
		Platforms:    d.svc.Registry.Names(),
	}
	if counts, err := d.svc.Store.DeliveryStats(ctx); err == nil {
		status.Queue = make(map[string]int, len(counts))
		for s, n := range counts {
			status.Queue[string(s)] = n
		}
	}
	return status
}

func (d *Daemon) releaseFiles() {
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

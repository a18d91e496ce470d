package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelforge/internal/assets"
	"reelforge/internal/config"
	"reelforge/internal/deps"
	"reelforge/internal/logging"
	"reelforge/internal/outputs"
	"reelforge/internal/queue"
	"reelforge/internal/scheduler"
	"reelforge/internal/services/magick"
)

// Daemon coordinates the render scheduler, retention sweeper and HTTP API,
// and enforces single-instance execution via a file lock.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	scheduler *scheduler.Manager
	outputs   *outputs.Manager
	assets    *assets.Store
	api       *apiServer
	logPath   string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	JobDBPath    string
	LockFilePath string
	Queue        queue.HealthSummary
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, sched *scheduler.Manager, outputMgr *outputs.Manager, assetStore *assets.Store) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || sched == nil || outputMgr == nil || assetStore == nil {
		return nil, errors.New("daemon requires config, store, logger, scheduler, outputs, and assets")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "reelforged.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		scheduler: sched,
		outputs:   outputMgr,
		assets:    assetStore,
		logPath:   filepath.Join(cfg.Paths.LogDir, "reelforge.log"),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, verifies external tools and launches the
// scheduler, retention sweeper and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelforge daemon instance is already running")
	}

	statuses := deps.CheckBinaries(deps.Requirements(d.cfg))
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		_ = d.lock.Unlock()
		return fmt.Errorf("required tools unavailable: %s", strings.Join(missing, ", "))
	}
	d.checkCaptionTooling(ctx)

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.scheduler.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start scheduler: %w", err)
	}
	go d.outputs.RunSweeper(d.ctx)

	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.cancel()
			d.scheduler.Stop()
			_ = d.lock.Unlock()
			d.ctx = nil
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("reelforge daemon started", logging.String("lock", d.lockPath))
	return nil
}

// checkCaptionTooling probes the ImageMagick policy. A blocked policy is
// surfaced loudly at startup instead of as a confusing mid-render failure.
func (d *Daemon) checkCaptionTooling(ctx context.Context) {
	cli := magick.NewCLI(magick.WithBinary(d.cfg.Render.MagickBinary))
	if err := cli.CheckTextPolicy(ctx); err != nil {
		d.logger.Warn("caption tooling misconfigured",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "caption rendering may fail until the ImageMagick policy is fixed"))
	}
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.api != nil {
		d.api.stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("reelforge daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the bound HTTP API address, empty when the API is disabled
// or the daemon is not running.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	health, err := d.scheduler.Health(ctx)
	if err != nil {
		d.logger.Warn("failed to read queue health", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		JobDBPath:    d.store.Path(),
		LockFilePath: d.lockPath,
		Queue:        health,
		Dependencies: deps.CheckBinaries(deps.Requirements(d.cfg)),
	}
}

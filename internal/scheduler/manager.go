package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/outputs"
	"reelforge/internal/queue"
	"reelforge/internal/render"
	"reelforge/internal/timeline"
)

// Manager owns job admission and the worker pool. Submissions are validated
// and planned before they are admitted; admission is serialized so the
// queued-plus-running count never exceeds the configured budget.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	builder  *timeline.Builder
	executor *render.Executor
	outputs  *outputs.Manager
	logger   *slog.Logger

	pollInterval  time.Duration
	retryInterval time.Duration

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	active    map[int64]context.CancelFunc
	requested map[int64]bool
}

// NewManager constructs a scheduler.
func NewManager(cfg *config.Config, store *queue.Store, builder *timeline.Builder, executor *render.Executor, outputMgr *outputs.Manager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:           cfg,
		store:         store,
		builder:       builder,
		executor:      executor,
		outputs:       outputMgr,
		logger:        logging.NewComponentLogger(logger, "scheduler"),
		pollInterval:  time.Duration(cfg.Scheduler.QueuePollInterval) * time.Second,
		retryInterval: time.Duration(cfg.Scheduler.ErrorRetryInterval) * time.Second,
		active:        make(map[int64]context.CancelFunc),
		requested:     make(map[int64]bool),
	}
}

// Start launches the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("scheduler already running")
	}
	workers := m.cfg.Scheduler.Workers
	if workers < 1 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, i)
	}
	return nil
}

// Stop terminates the worker pool and waits for in-flight work to unwind.
// Interrupted jobs are marked failed so restart never resumes half-done work.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	if count, err := m.store.FailRunning(context.Background(), "render", queue.DaemonStopReason); err != nil {
		m.logger.Warn("failed to fail interrupted jobs", logging.Error(err))
	} else if count > 0 {
		m.logger.Info("marked interrupted jobs failed", logging.Int64("jobs", count))
	}
}

// Health reports aggregate job counts.
func (m *Manager) Health(ctx context.Context) (queue.HealthSummary, error) {
	return m.store.Health(ctx)
}

func (m *Manager) registerActive(id int64, cancel context.CancelFunc) {
	m.mu.Lock()
	m.active[id] = cancel
	m.mu.Unlock()
}

func (m *Manager) unregisterActive(id int64) {
	m.mu.Lock()
	delete(m.active, id)
	delete(m.requested, id)
	m.mu.Unlock()
}

func (m *Manager) cancelRequested(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requested[id]
}

package sync

import (
	"context"
	"net/http"
	gosync "sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Locker serializes run ownership across instances. Acquire returns a release
// function, or an error when another owner holds the lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type managerRunStore interface {
	Create(ctx context.Context, run *models.SyncRun) error
	GetByID(ctx context.Context, id string) (*models.SyncRun, error)
	ActiveRun(ctx context.Context) (*models.SyncRun, error)
	Finish(ctx context.Context, id string, status models.SyncRunStatus, errorMessage, note *string) error
}

// ManagerConfig holds run ownership settings.
type ManagerConfig struct {
	LockKey string
	LockTTL time.Duration
}

// Manager owns run admission: one run at a time, started in the background,
// cancellable by id. Routes talk to the Manager, never to the Runner.
type Manager struct {
	cfg    ManagerConfig
	runner *Runner
	runs   managerRunStore
	locker Locker // nil when Redis is not configured; the local guard still applies
	logger ectologger.Logger

	mu           gosync.Mutex
	activeRunID  string
	activeCancel context.CancelFunc
}

// NewManager creates a new sync manager
func NewManager(cfg ManagerConfig, runner *Runner, runs managerRunStore, locker Locker, logger ectologger.Logger) *Manager {
	if cfg.LockKey == "" {
		cfg.LockKey = "sync"
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &Manager{
		cfg:    cfg,
		runner: runner,
		runs:   runs,
		locker: locker,
		logger: logger,
	}
}

// Start admits a new run and executes it in the background. It conflicts when
// a run is already active, locally or anywhere else holding the lock.
func (m *Manager) Start(ctx context.Context) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "sync.Manager.Start")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeRunID != "" {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "sync run %s is already active", m.activeRunID)
	}

	if active, err := m.runs.ActiveRun(ctx); err != nil {
		return nil, err
	} else if active != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "sync run %s is already active", active.ID)
	}

	var release func(context.Context) error
	if m.locker != nil {
		var err error
		release, err = m.locker.Acquire(ctx, m.cfg.LockKey, m.cfg.LockTTL)
		if err != nil {
			m.logger.WithContext(ctx).WithError(err).Warnf("Sync lock is held elsewhere")
			return nil, httperror.NewHTTPError(http.StatusConflict, "a sync run is active on another instance")
		}
	}

	run := &models.SyncRun{}
	if err := m.runs.Create(ctx, run); err != nil {
		if release != nil {
			_ = release(ctx)
		}
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.activeRunID = run.ID
	m.activeCancel = cancel

	go func() {
		defer func() {
			if release != nil {
				_ = release(context.Background())
			}
			cancel()

			m.mu.Lock()
			m.activeRunID = ""
			m.activeCancel = nil
			m.mu.Unlock()
		}()

		if err := m.runner.Run(runCtx, run.ID); err != nil {
			m.logger.WithError(err).WithField("run_id", run.ID).Warnf("Sync run %s did not complete", run.ID)
		}
	}()

	return run, nil
}

// Cancel stops the run with the given id. A run owned by this process is
// cancelled cooperatively; a leftover active row from a dead owner is closed
// out directly.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "sync.Manager.Cancel")
	defer span.End()

	run, err := m.runs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return httperror.NewHTTPErrorf(http.StatusConflict, "sync run %s is already finished", id)
	}

	m.mu.Lock()
	owned := m.activeRunID == id
	cancel := m.activeCancel
	m.mu.Unlock()

	if owned {
		m.logger.WithContext(ctx).WithField("run_id", id).Info("Cancelling active sync run")
		cancel()
		return nil
	}

	// not ours; the owning process is gone
	note := "cancelled without an owning process"
	return m.runs.Finish(ctx, id, models.SyncRunStatusCancelled, nil, &note)
}

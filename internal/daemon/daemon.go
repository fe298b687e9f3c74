package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"mixtape/internal/config"
	"mixtape/internal/deps"
	"mixtape/internal/logging"
	"mixtape/internal/notifications"
	"mixtape/internal/preflight"
	"mixtape/internal/store"
	"mixtape/internal/workflow"
)

// Daemon hosts the workflow manager and the HTTP API and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	workflow *workflow.Manager

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running   atomic.Bool
	stopped   atomic.Bool
	startedAt time.Time
	recovery  workflow.RecoveryReport
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StartedAt     time.Time
	APIAddress    string
	LockFilePath  string
	Storage       string
	ActiveWorkers int
	Recovery      workflow.RecoveryReport
	Statistics    workflow.Statistics
	Dependencies  []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st store.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || st == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, recovers interrupted batches and opens the
// HTTP API. A daemon cannot be started again after Stop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if d.stopped.Load() {
		return errors.New("daemon cannot be restarted after stop")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mixtape daemon instance is already running")
	}

	d.runPreflight(ctx)

	report, err := d.workflow.Recover(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover batches: %w", err)
	}
	d.recovery = report

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if strings.TrimSpace(d.cfg.Paths.APIBind) != "" {
		d.api = newAPIServer(d.cfg, d, d.logger)
		if err := d.api.start(runCtx); err != nil {
			cancel()
			d.workflow.Stop()
			_ = d.lock.Unlock()
			return err
		}
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("mixtape daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddress()),
		logging.String("recovery_mode", report.Mode),
		logging.Int("resumed", report.Resumed),
		logging.Int("failed", report.Failed),
		logging.Int("settled", report.Settled),
	)
	return nil
}

// Stop closes the API, stops every worker and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.stopped.Store(true)
	d.logger.Info("mixtape daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddress returns the address the HTTP API listens on, or "" when it is
// disabled or not started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// TestNotification sends a test message through every configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" && strings.TrimSpace(d.cfg.Navidrome.URL) == "" {
		return false, "no notifier configured", nil
	}
	if err := notifications.NewService(d.cfg).TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		StartedAt:     d.startedAt,
		APIAddress:    d.APIAddress(),
		LockFilePath:  d.lockPath,
		Storage:       d.storageLocation(),
		ActiveWorkers: d.workflow.ActiveWorkers(),
		Recovery:      d.recovery,
		Dependencies:  preflight.CheckSystemDeps(d.cfg),
	}
	stats, err := d.workflow.Statistics(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "statistics unavailable for status", "status_statistics_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "status output shows zero counters"),
		)
	}
	status.Statistics = stats
	return status
}

func (d *Daemon) storageLocation() string {
	if d.cfg.Storage.Backend == config.StorageBackendSQLite {
		return d.cfg.Storage.SQLitePath
	}
	return d.cfg.Storage.BatchDir
}

func (d *Daemon) runPreflight(ctx context.Context) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or service configuration"),
			logging.String(logging.FieldImpact, "downloads or notifications may fail"),
		)
	}
	for _, dep := range deps.Missing(preflight.CheckSystemDeps(d.cfg)) {
		logging.WarnWithContext(d.logger, "required binary missing", "dependency_missing",
			logging.String("dependency", dep.Name),
			logging.String("detail", dep.Detail),
			logging.String(logging.FieldErrorHint, "install "+dep.Name+" or set its path in [fetch]"),
			logging.String(logging.FieldImpact, "every download will fail"),
		)
	}
}

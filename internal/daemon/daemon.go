package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"dealsync/internal/config"
	"dealsync/internal/connectivity"
	"dealsync/internal/logging"
	"dealsync/internal/mutation"
	"dealsync/internal/notifications"
	"dealsync/internal/store"
	"dealsync/internal/syncer"
)

// SessionStore removes persisted credentials when the user signs out.
type SessionStore interface {
	Clear() error
}

// Daemon coordinates the sync engine's background services and enforces
// single-instance execution via a lock file.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.Store
	orchestrator *syncer.Orchestrator
	monitor      *connectivity.Monitor
	notifier     notifications.Service
	sessions     SessionStore
	logPath      string

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
	Sync         syncer.Status
	Connectivity connectivity.State
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies. The session store is
// optional; without one, sign-out only wipes queue state.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, orchestrator *syncer.Orchestrator, monitor *connectivity.Monitor, notifier notifications.Service, sessions SessionStore) (*Daemon, error) {
	if cfg == nil || st == nil || orchestrator == nil || monitor == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and connectivity monitor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.Noop()
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        st,
		orchestrator: orchestrator,
		monitor:      monitor,
		notifier:     notifier,
		sessions:     sessions,
		logPath:      filepath.Join(cfg.Paths.LogDir, "dealsync.log"),
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the connectivity monitor and
// sync orchestrator.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dealsync daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.monitor.Start(d.ctx)
	d.orchestrator.Start(d.ctx)

	d.running.Store(true)
	d.logger.Info("dealsync daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.orchestrator.Stop()
	d.monitor.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("dealsync daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether background processing is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status assembles runtime information for IPC callers.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Sync:         d.orchestrator.Status(),
		Connectivity: d.monitor.Current(),
		QueueDBPath:  d.cfg.QueueDBPath(),
		LockFilePath: d.lockPath,
	}
}

// SyncNow runs one drain pass synchronously.
func (d *Daemon) SyncNow(ctx context.Context) error {
	if !d.running.Load() {
		return errors.New("daemon not running")
	}
	return d.orchestrator.Sync(ctx)
}

// EnqueueUpload queues a media file for upload and kicks a pass when online.
func (d *Daemon) EnqueueUpload(ctx context.Context, item store.UploadItem) (*store.UploadItem, error) {
	return d.orchestrator.EnqueueUpload(ctx, item)
}

// EnqueueMutation queues a local write for replay and kicks a pass when
// online. The kind is validated at the door so callers learn about typos
// immediately instead of after a failed sync pass.
func (d *Daemon) EnqueueMutation(ctx context.Context, kind string, payload json.RawMessage) (string, error) {
	parsed, err := mutation.ParseKind(kind)
	if err != nil {
		return "", err
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return "", errors.New("mutation payload is not valid JSON")
	}
	return d.orchestrator.EnqueueMutation(ctx, parsed.String(), payload)
}

// ListUploads returns upload queue items filtered by optional statuses.
func (d *Daemon) ListUploads(ctx context.Context, statuses []store.UploadStatus) ([]*store.UploadItem, error) {
	return d.store.Uploads(ctx, statuses...)
}

// ListMutations returns the pending mutation queue in replay order.
func (d *Daemon) ListMutations(ctx context.Context) ([]*store.Mutation, error) {
	return d.store.Mutations(ctx)
}

// RetryFailed moves failed uploads back to pending. An empty id list retries
// every failed upload.
func (d *Daemon) RetryFailed(ctx context.Context, ids []string) (int64, error) {
	return d.orchestrator.RetryFailedUploads(ctx, ids...)
}

// ClearCompleted removes completed uploads finished before the cutoff.
func (d *Daemon) ClearCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	return d.store.ClearCompletedUploads(ctx, cutoff)
}

// ClearCache drops every cached entity. Queues are untouched.
func (d *Daemon) ClearCache(ctx context.Context) error {
	return d.store.ClearCache(ctx)
}

// SignOut tears down all local state: cache, queues, sync metadata, and the
// stored session, so a restarted daemon comes up signed out.
func (d *Daemon) SignOut(ctx context.Context) error {
	var errs []error
	if err := d.store.ClearAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if d.sessions != nil {
		if err := d.sessions.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TestNotification sends a test push notification.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, err.Error(), nil
	}
	return true, "notification sent", nil
}

// LogPath returns the daemon's primary log file path.
func (d *Daemon) LogPath() string {
	return d.logPath
}

package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"dealsync/internal/config"
	"dealsync/internal/connectivity"
	"dealsync/internal/logging"
	"dealsync/internal/notifications"
	"dealsync/internal/services"
	"dealsync/internal/store"
	"dealsync/internal/upload"
)

// Pipeline runs one upload attempt for a queued item.
type Pipeline interface {
	Upload(ctx context.Context, item *store.UploadItem, progress upload.ProgressFunc) (string, error)
}

// Dispatcher replays one queued mutation against the backend.
type Dispatcher interface {
	Apply(ctx context.Context, m store.Mutation) error
}

// Connectivity is the slice of the monitor the orchestrator consumes.
type Connectivity interface {
	Current() connectivity.State
	Subscribe() (<-chan connectivity.State, func())
}

// Orchestrator owns the drain loop: when the device is online it replays the
// upload queue, then the mutation queue, strictly in enqueue order, and
// publishes a status snapshot after every state change.
type Orchestrator struct {
	store      *store.Store
	pipeline   Pipeline
	dispatcher Dispatcher
	conn       Connectivity
	notifier   notifications.Service
	logger     *slog.Logger

	maxRetries  int
	backoffBase time.Duration
	debounce    time.Duration
	backlogMin  int

	mu            sync.Mutex
	syncing       bool
	status        Status
	ring          *errorRing
	subscribers   map[int]chan Status
	nextSubID     int
	backlogWarned bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// New builds an orchestrator. All dependencies are injected; nothing here is
// process-global.
func New(cfg *config.Config, st *store.Store, pipeline Pipeline, dispatcher Dispatcher, conn Connectivity, notifier notifications.Service, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.Noop()
	}
	maxRetries := cfg.Sync.MaxRetryCount
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := time.Duration(cfg.Sync.BackoffBaseMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &Orchestrator{
		store:       st,
		pipeline:    pipeline,
		dispatcher:  dispatcher,
		conn:        conn,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(logger, "syncer"),
		maxRetries:  maxRetries,
		backoffBase: backoff,
		debounce:    time.Duration(cfg.Sync.DebounceSeconds) * time.Second,
		backlogMin:  cfg.Notifications.BacklogMin,
		ring:        newErrorRing(cfg.Sync.ErrorHistory),
		subscribers: make(map[int]chan Status),
	}
}

// Start launches the connectivity watcher that triggers debounced syncs on
// the offline-to-online edge. It returns immediately.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.quit != nil {
		o.mu.Unlock()
		return
	}
	o.quit = make(chan struct{})
	quit := o.quit
	o.status.IsOnline = o.conn.Current().Online()
	o.mu.Unlock()

	if reset, err := o.store.ResetStuckUploads(ctx); err == nil && reset > 0 {
		o.logger.Info("reset interrupted uploads", logging.Int64("count", reset))
	}
	o.refreshCounts(ctx)
	o.notify()

	o.wg.Add(1)
	go o.watchConnectivity(ctx, quit)
}

// Stop halts the connectivity watcher. An in-flight pass finishes its
// current item and then observes the cancelled context.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.quit == nil {
		o.mu.Unlock()
		return
	}
	close(o.quit)
	o.quit = nil
	o.mu.Unlock()
	o.wg.Wait()
}

// Status returns the current snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Subscribe registers for status snapshots. The cancel function releases the
// subscription.
func (o *Orchestrator) Subscribe() (<-chan Status, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextSubID
	o.nextSubID++
	ch := make(chan Status, 8)
	o.subscribers[id] = ch

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if existing, ok := o.subscribers[id]; ok {
			delete(o.subscribers, id)
			close(existing)
		}
	}
}

// EnqueueUpload persists an upload job and, when online, kicks a sync pass.
func (o *Orchestrator) EnqueueUpload(ctx context.Context, item store.UploadItem) (*store.UploadItem, error) {
	stored, err := o.store.EnqueueUpload(ctx, item)
	if err != nil {
		return nil, err
	}
	o.refreshCounts(ctx)
	o.notify()
	o.kickIfOnline(ctx)
	o.maybeNotifyBacklog(ctx)
	return stored, nil
}

// EnqueueMutation persists a local write for later replay and, when online,
// kicks a sync pass.
func (o *Orchestrator) EnqueueMutation(ctx context.Context, kind string, payload json.RawMessage) (string, error) {
	id, err := o.store.EnqueueMutation(ctx, kind, payload)
	if err != nil {
		return "", err
	}
	o.refreshCounts(ctx)
	o.notify()
	o.kickIfOnline(ctx)
	o.maybeNotifyBacklog(ctx)
	return id, nil
}

// RetryFailedUploads moves failed uploads back to pending with a fresh retry
// budget and kicks a sync pass.
func (o *Orchestrator) RetryFailedUploads(ctx context.Context, ids ...string) (int64, error) {
	count, err := o.store.RetryFailedUploads(ctx, ids...)
	if err != nil {
		return 0, err
	}
	o.refreshCounts(ctx)
	o.notify()
	o.kickIfOnline(ctx)
	return count, nil
}

// Sync runs one drain pass. It is a no-op while a pass is already running or
// while offline, so callers may invoke it freely.
func (o *Orchestrator) Sync(ctx context.Context) error {
	if !o.online() {
		o.logger.Debug("sync skipped while offline")
		return nil
	}
	o.mu.Lock()
	if o.syncing {
		o.mu.Unlock()
		o.logger.Debug("sync already in progress")
		return nil
	}
	o.syncing = true
	o.ring.clear()
	o.mu.Unlock()

	started := time.Now()
	o.refreshCounts(ctx)
	o.notify()

	uploadsDone, uploadsFailed, aborted := o.drainUploads(ctx)
	mutationsDone := 0
	if !aborted {
		mutationsDone = o.drainMutations(ctx)
	}

	if err := o.store.SetLastSyncTime(ctx, time.Now()); err != nil {
		o.logger.Warn("persist last sync time", logging.Error(err))
	}

	o.refreshCounts(ctx)
	o.mu.Lock()
	o.syncing = false
	if last, err := o.store.LastSyncTime(ctx); err == nil {
		o.status.LastSyncTime = last
	}
	o.mu.Unlock()
	o.notify()

	o.logger.Info("sync pass finished",
		logging.Int("uploads", uploadsDone),
		logging.Int("mutations", mutationsDone),
		logging.Int("failed", uploadsFailed),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "sync_completed"))

	if uploadsDone+mutationsDone+uploadsFailed > 0 {
		if err := o.notifier.NotifySyncCompleted(ctx, uploadsDone, mutationsDone, uploadsFailed, time.Since(started)); err != nil {
			o.logger.Debug("sync notification failed", logging.Error(err))
		}
	}
	return nil
}

// online re-reads connectivity so a drop mid-pass stops the loop at the next
// item boundary.
func (o *Orchestrator) online() bool {
	state := o.conn.Current()
	o.mu.Lock()
	o.status.IsOnline = state.Online()
	online := o.status.IsOnline
	o.mu.Unlock()
	return online
}

func (o *Orchestrator) drainUploads(ctx context.Context) (completed, failed int, aborted bool) {
	items, err := o.store.Uploads(ctx, store.UploadPending)
	if err != nil {
		o.logger.Warn("list pending uploads", logging.Error(err))
		return 0, 0, false
	}

	for _, item := range items {
		if ctx.Err() != nil || !o.online() {
			o.logger.Info("upload drain stopped early", logging.String(logging.FieldEventType, "drain_interrupted"))
			return completed, failed, false
		}
		switch o.processUpload(ctx, item) {
		case outcomeCompleted:
			completed++
		case outcomeFailed:
			failed++
		case outcomeAbortPass:
			return completed, failed, true
		}
		o.refreshCounts(ctx)
		o.notify()
	}
	return completed, failed, false
}

type itemOutcome int

const (
	outcomeCompleted itemOutcome = iota
	outcomeFailed
	outcomeDeferred
	outcomeAbortPass
)

// processUpload drives one item to completion, failure, or a deferred state.
// Transient errors retry in place with exponential backoff until the retry
// ceiling; auth errors abort the whole pass since no later item can succeed
// without a session.
func (o *Orchestrator) processUpload(ctx context.Context, item *store.UploadItem) itemOutcome {
	log := o.logger.With(logging.String(logging.FieldItemID, item.ID))

	for {
		item.Status = store.UploadUploading
		if err := o.store.UpdateUpload(ctx, item); err != nil {
			log.Warn("mark uploading", logging.Error(err))
		}
		o.notify()

		mediaID, err := o.pipeline.Upload(ctx, item, nil)
		if err == nil {
			now := time.Now()
			item.Status = store.UploadCompleted
			item.MediaID = mediaID
			item.ErrorMessage = ""
			item.CompletedAt = &now
			if err := o.store.UpdateUpload(ctx, item); err != nil {
				log.Warn("mark completed", logging.Error(err))
			}
			log.Info("upload completed",
				logging.String("media_id", mediaID),
				logging.String(logging.FieldEventType, "upload_completed"))
			return outcomeCompleted
		}

		switch {
		case errors.Is(err, services.ErrCanceled):
			// User aborts are terminal but not reported as failures.
			item.SetFailed(err.Error())
			if uerr := o.store.UpdateUpload(ctx, item); uerr != nil {
				log.Warn("mark canceled", logging.Error(uerr))
			}
			log.Info("upload canceled")
			return outcomeFailed

		case errors.Is(err, services.ErrAuth):
			item.Status = store.UploadPending
			if uerr := o.store.UpdateUpload(ctx, item); uerr != nil {
				log.Warn("revert to pending", logging.Error(uerr))
			}
			o.recordError(ErrorTypeUpload, err.Error())
			log.Warn("upload auth failure, aborting pass", logging.Error(err))
			return outcomeAbortPass

		case !services.IsRetryable(err):
			item.SetFailed(err.Error())
			if uerr := o.store.UpdateUpload(ctx, item); uerr != nil {
				log.Warn("mark failed", logging.Error(uerr))
			}
			o.recordError(ErrorTypeUpload, err.Error())
			o.notifyUploadFailed(ctx, item, err)
			log.Warn("upload rejected", logging.Error(err))
			return outcomeFailed
		}

		item.RetryCount++
		if item.RetryCount >= o.maxRetries {
			item.SetFailed(err.Error())
			if uerr := o.store.UpdateUpload(ctx, item); uerr != nil {
				log.Warn("mark failed", logging.Error(uerr))
			}
			o.recordError(ErrorTypeUpload, err.Error())
			o.notifyUploadFailed(ctx, item, err)
			log.Warn("upload failed after retries",
				logging.Int("retry_count", item.RetryCount),
				logging.Error(err))
			return outcomeFailed
		}

		item.Status = store.UploadPending
		item.ErrorMessage = err.Error()
		if uerr := o.store.UpdateUpload(ctx, item); uerr != nil {
			log.Warn("persist retry state", logging.Error(uerr))
		}
		log.Debug("upload attempt failed, backing off",
			logging.Int("retry_count", item.RetryCount),
			logging.Error(err))

		if !o.backoff(ctx, item.RetryCount) {
			return outcomeAbortPass
		}
		if !o.online() {
			return outcomeDeferred
		}
	}
}

func (o *Orchestrator) drainMutations(ctx context.Context) int {
	items, err := o.store.Mutations(ctx)
	if err != nil {
		o.logger.Warn("list pending mutations", logging.Error(err))
		return 0
	}

	applied := 0
	for _, item := range items {
		if ctx.Err() != nil || !o.online() {
			o.logger.Info("mutation drain stopped early", logging.String(logging.FieldEventType, "drain_interrupted"))
			return applied
		}
		switch o.processMutation(ctx, item) {
		case outcomeCompleted:
			applied++
		case outcomeAbortPass:
			return applied
		}
		o.refreshCounts(ctx)
		o.notify()
	}
	return applied
}

func (o *Orchestrator) processMutation(ctx context.Context, item *store.Mutation) itemOutcome {
	log := o.logger.With(
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldMutationKind, item.Kind))

	for {
		err := o.dispatcher.Apply(ctx, *item)
		if err == nil {
			if _, rerr := o.store.RemoveMutation(ctx, item.ID); rerr != nil {
				log.Warn("remove applied mutation", logging.Error(rerr))
			}
			log.Info("mutation applied", logging.String(logging.FieldEventType, "mutation_applied"))
			return outcomeCompleted
		}

		switch {
		case errors.Is(err, services.ErrCanceled):
			return outcomeAbortPass

		case errors.Is(err, services.ErrAuth):
			o.recordError(ErrorTypeMutation, err.Error())
			log.Warn("mutation auth failure, aborting pass", logging.Error(err))
			return outcomeAbortPass

		case !services.IsRetryable(err):
			if _, rerr := o.store.RemoveMutation(ctx, item.ID); rerr != nil {
				log.Warn("remove rejected mutation", logging.Error(rerr))
			}
			o.recordError(ErrorTypeMutation, err.Error())
			if nerr := o.notifier.NotifyMutationDropped(ctx, item.Kind, err.Error()); nerr != nil {
				log.Debug("drop notification failed", logging.Error(nerr))
			}
			log.Warn("mutation rejected", logging.Error(err))
			return outcomeFailed
		}

		item.RetryCount++
		if item.RetryCount >= o.maxRetries {
			if _, rerr := o.store.RemoveMutation(ctx, item.ID); rerr != nil {
				log.Warn("remove exhausted mutation", logging.Error(rerr))
			}
			o.recordError(ErrorTypeMutation, err.Error())
			if nerr := o.notifier.NotifyMutationDropped(ctx, item.Kind, err.Error()); nerr != nil {
				log.Debug("drop notification failed", logging.Error(nerr))
			}
			log.Warn("mutation dropped after retries",
				logging.Int("retry_count", item.RetryCount),
				logging.Error(err))
			return outcomeFailed
		}

		if uerr := o.store.UpdateMutation(ctx, item); uerr != nil {
			log.Warn("persist retry state", logging.Error(uerr))
		}
		log.Debug("mutation attempt failed, backing off",
			logging.Int("retry_count", item.RetryCount),
			logging.Error(err))

		if !o.backoff(ctx, item.RetryCount) {
			return outcomeAbortPass
		}
		if !o.online() {
			return outcomeDeferred
		}
	}
}

// backoff sleeps base * 2^(attempt-1), returning false when the context is
// cancelled.
func (o *Orchestrator) backoff(ctx context.Context, attempt int) bool {
	if attempt < 1 {
		attempt = 1
	}
	delay := o.backoffBase * time.Duration(1<<(attempt-1))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (o *Orchestrator) watchConnectivity(ctx context.Context, quit <-chan struct{}) {
	defer o.wg.Done()

	updates, cancel := o.conn.Subscribe()
	defer cancel()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	stopDebounce := func() {
		if debounce != nil {
			debounce.Stop()
			debounce = nil
			debounceC = nil
		}
	}
	defer stopDebounce()

	wasOnline := o.conn.Current().Online()

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			online := state.Online()
			o.mu.Lock()
			o.status.IsOnline = online
			o.mu.Unlock()
			o.notify()

			if online && !wasOnline {
				// Debounce the reconnect edge so a flapping link does not
				// trigger a pass per flap.
				stopDebounce()
				if o.debounce <= 0 {
					go func() { _ = o.Sync(ctx) }()
				} else {
					debounce = time.NewTimer(o.debounce)
					debounceC = debounce.C
				}
				o.logger.Info("connectivity restored",
					logging.Duration("debounce", o.debounce),
					logging.String(logging.FieldEventType, "online"))
			} else if !online {
				stopDebounce()
				if wasOnline {
					o.logger.Info("connectivity lost", logging.String(logging.FieldEventType, "offline"))
				}
			}
			wasOnline = online

		case <-debounceC:
			stopDebounce()
			go func() { _ = o.Sync(ctx) }()
		}
	}
}

// maybeNotifyBacklog warns once per offline stretch when queued work crosses
// the configured threshold. The flag resets as soon as the backlog drops back
// under it, so a later buildup warns again.
func (o *Orchestrator) maybeNotifyBacklog(ctx context.Context) {
	if o.backlogMin <= 0 || o.conn.Current().Online() {
		return
	}
	o.mu.Lock()
	pending := o.status.PendingUploads + o.status.PendingMutations
	if pending < o.backlogMin {
		o.backlogWarned = false
		o.mu.Unlock()
		return
	}
	if o.backlogWarned {
		o.mu.Unlock()
		return
	}
	o.backlogWarned = true
	o.mu.Unlock()

	o.logger.Info("offline backlog threshold reached",
		logging.Int("pending", pending),
		logging.String(logging.FieldEventType, "backlog_warning"))
	if err := o.notifier.NotifyBacklog(ctx, pending); err != nil {
		o.logger.Debug("backlog notification failed", logging.Error(err))
	}
}

func (o *Orchestrator) kickIfOnline(ctx context.Context) {
	if o.conn.Current().Online() {
		go func() { _ = o.Sync(ctx) }()
	}
}

func (o *Orchestrator) refreshCounts(ctx context.Context) {
	counts, err := o.store.PendingCounts(ctx)
	if err != nil {
		o.logger.Warn("recompute pending counts", logging.Error(err))
		return
	}
	o.mu.Lock()
	o.status.PendingUploads = counts.PendingUploads
	o.status.PendingMutations = counts.PendingMutations
	o.status.FailedUploads = counts.FailedUploads
	o.mu.Unlock()
}

func (o *Orchestrator) recordError(errType, message string) {
	o.mu.Lock()
	o.ring.append(newSyncError(errType, message))
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) notifyUploadFailed(ctx context.Context, item *store.UploadItem, err error) {
	if nerr := o.notifier.NotifyUploadFailed(ctx, filepath.Base(item.LocalPath), err.Error()); nerr != nil {
		o.logger.Debug("failure notification failed", logging.Error(nerr))
	}
}

func (o *Orchestrator) snapshotLocked() Status {
	status := o.status
	status.IsSyncing = o.syncing
	status.Errors = o.ring.snapshot()
	return status
}

// notify delivers under the lock with non-blocking sends so an unsubscribe
// cannot close a channel mid-delivery. Slow subscribers drop snapshots.
func (o *Orchestrator) notify() {
	o.mu.Lock()
	defer o.mu.Unlock()
	status := o.snapshotLocked()
	for _, ch := range o.subscribers {
		select {
		case ch <- status:
		default:
		}
	}
}

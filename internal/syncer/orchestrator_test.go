package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"dealsync/internal/config"
	"dealsync/internal/connectivity"
	"dealsync/internal/services"
	"dealsync/internal/store"
	"dealsync/internal/testsupport"
	"dealsync/internal/upload"
)

type fakeConn struct {
	mu    sync.Mutex
	state connectivity.State
	subs  []chan connectivity.State
}

func newFakeConn(online bool) *fakeConn {
	reachable := online
	return &fakeConn{state: connectivity.State{Connected: online, InternetReachable: &reachable}}
}

func (f *fakeConn) Current() connectivity.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) Subscribe() (<-chan connectivity.State, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan connectivity.State, 8)
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeConn) set(online bool) {
	reachable := online
	f.mu.Lock()
	f.state = connectivity.State{Connected: online, InternetReachable: &reachable}
	subs := append([]chan connectivity.State(nil), f.subs...)
	state := f.state
	f.mu.Unlock()
	for _, ch := range subs {
		ch <- state
	}
}

type fakeNotifier struct {
	mu       sync.Mutex
	backlogs []int
}

func (f *fakeNotifier) NotifySyncCompleted(ctx context.Context, uploads, mutations, failed int, duration time.Duration) error {
	return nil
}

func (f *fakeNotifier) NotifyUploadFailed(ctx context.Context, fileName, reason string) error {
	return nil
}

func (f *fakeNotifier) NotifyMutationDropped(ctx context.Context, kind, reason string) error {
	return nil
}

func (f *fakeNotifier) NotifyBacklog(ctx context.Context, pending int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backlogs = append(f.backlogs, pending)
	return nil
}

func (f *fakeNotifier) NotifyError(ctx context.Context, err error, context string) error { return nil }

func (f *fakeNotifier) TestNotification(ctx context.Context) error { return nil }

func (f *fakeNotifier) backlogCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.backlogs...)
}

type call struct {
	kind string
	id   string
	at   time.Time
}

type fakePipeline struct {
	mu        sync.Mutex
	calls     []call
	err       error
	permanent bool
	failLeft  int
}

func (f *fakePipeline) Upload(ctx context.Context, item *store.UploadItem, progress upload.ProgressFunc) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{kind: "upload", id: item.ID, at: time.Now()})
	if f.err != nil && (f.permanent || f.failLeft > 0) {
		if f.failLeft > 0 {
			f.failLeft--
		}
		return "", f.err
	}
	return "media-" + item.ID, nil
}

func (f *fakePipeline) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeDispatcher) Apply(ctx context.Context, m store.Mutation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{kind: "mutation", id: m.ID, at: time.Now()})
	return f.err
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newOrchestrator(t *testing.T, conn *fakeConn, pipeline Pipeline, dispatcher Dispatcher) (*Orchestrator, *store.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Sync.BackoffBaseMS = 1
	st := testsupport.MustOpenStore(t, cfg)
	o := New(cfg, st, pipeline, dispatcher, conn, nil, nil)
	return o, st, cfg
}

func TestSyncDrainsQueuesCompletely(t *testing.T) {
	conn := newFakeConn(true)
	pipeline := &fakePipeline{}
	dispatcher := &fakeDispatcher{}
	o, st, _ := newOrchestrator(t, conn, pipeline, dispatcher)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		testsupport.EnqueueUpload(t, st, "/tmp/a.jpg", "opp-1", "image/jpeg")
	}
	testsupport.EnqueueMutation(t, st, "lead_update", map[string]any{"leadId": "l-1"})

	if err := o.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	counts, err := st.PendingCounts(ctx)
	if err != nil {
		t.Fatalf("PendingCounts: %v", err)
	}
	if counts.PendingUploads != 0 || counts.PendingMutations != 0 {
		t.Fatalf("queues not drained: %+v", counts)
	}

	uploads, err := st.Uploads(ctx, store.UploadCompleted)
	if err != nil {
		t.Fatalf("Uploads: %v", err)
	}
	if len(uploads) != 3 {
		t.Fatalf("completed uploads %d, want 3", len(uploads))
	}
	for _, item := range uploads {
		if item.MediaID == "" || item.CompletedAt == nil {
			t.Fatalf("completed item missing media id or timestamp: %+v", item)
		}
	}

	if o.Status().LastSyncTime.IsZero() {
		t.Fatal("last sync time not stamped")
	}
}

func TestUploadsDrainBeforeMutations(t *testing.T) {
	conn := newFakeConn(true)
	pipeline := &fakePipeline{}
	dispatcher := &fakeDispatcher{}
	o, st, _ := newOrchestrator(t, conn, pipeline, dispatcher)
	ctx := context.Background()

	testsupport.EnqueueMutation(t, st, "lead_update", map[string]any{"leadId": "l-1"})
	testsupport.EnqueueUpload(t, st, "/tmp/a.jpg", "opp-1", "image/jpeg")

	if err := o.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	pipeline.mu.Lock()
	uploadDone := pipeline.calls[len(pipeline.calls)-1].at
	pipeline.mu.Unlock()
	dispatcher.mu.Lock()
	mutationStart := dispatcher.calls[0].at
	dispatcher.mu.Unlock()

	if mutationStart.Before(uploadDone) {
		t.Fatal("mutation dispatched before upload finished")
	}
}

func TestRetryCeilingRecordsExactlyOneError(t *testing.T) {
	conn := newFakeConn(true)
	pipeline := &fakePipeline{
		err:       services.Wrap(services.ErrNetwork, "backend", "transfer", "connection reset", nil),
		permanent: true,
	}
	dispatcher := &fakeDispatcher{}
	o, st, cfg := newOrchestrator(t, conn, pipeline, dispatcher)
	ctx := context.Background()

	item := testsupport.EnqueueUpload(t, st, "/tmp/a.jpg", "opp-1", "image/jpeg")

	if err := o.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	stored, err := st.UploadByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("UploadByID: %v", err)
	}
	if stored.Status != store.UploadFailed {
		t.Fatalf("status %s, want failed", stored.Status)
	}
	if stored.RetryCount != cfg.Sync.MaxRetryCount {
		t.Fatalf("retry count %d, want %d", stored.RetryCount, cfg.Sync.MaxRetryCount)
	}
	if pipeline.callCount() != cfg.Sync.MaxRetryCount {
		t.Fatalf("attempts %d, want %d", pipeline.callCount(), cfg.Sync.MaxRetryCount)
	}

	status := o.Status()
	uploadErrors := 0
	for _, e := range status.Errors {
		if e.Type == ErrorTypeUpload {
			uploadErrors++
		}
	}
	if uploadErrors != 1 {
		t.Fatalf("upload errors %d, want exactly 1", uploadErrors)
	}
}

func TestTransientUploadRecoversWithinPass(t *testing.T) {
	conn := newFakeConn(true)
	pipeline := &fakePipeline{
		err:      services.Wrap(services.ErrNetwork, "backend", "transfer", "connection reset", nil),
		failLeft: 2,
	}
	o, st, _ := newOrchestrator(t, conn, pipeline, &fakeDispatcher{})
	ctx := context.Background()

	item := testsupport.EnqueueUpload(t, st, "/tmp/a.jpg", "opp-1", "image/jpeg")

	if err := o.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	stored, err := st.UploadByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("UploadByID: %v", err)
	}
	if stored.Status != store.UploadCompleted {
		t.Fatalf("status %s, want completed after transient failures", stored.Status)
	}
	if pipeline.callCount() != 3 {
		t.Fatalf("attempts %d, want 3", pipeline.callCount())
	}
	if len(o.Status().Errors) != 0 {
		t.Fatalf("recovered upload must not leave errors, got %+v", o.Status().Errors)
	}
}

func TestMutationDroppedAfterCeiling(t *testing.T) {
	conn := newFakeConn(true)
	pipeline := &fakePipeline{}
	dispatcher := &fakeDispatcher{
		err: services.Wrap(services.ErrTransient, "backend", "request", "status 503", nil),
	}
	o, st, cfg := newOrchestrator(t, conn, pipeline, dispatcher)
	ctx := context.Background()

	testsupport.EnqueueMutation(t, st, "deal_update", map[string]any{"dealId": "d-1"})

	if err := o.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	remaining, err := st.Mutations(ctx)
	if err != nil {
		t.Fatalf("Mutations: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatal("exhausted mutation should be removed from the queue")
	}
	if dispatcher.callCount() != cfg.Sync.MaxRetryCount {
		t.Fatalf("attempts %d, want %d", dispatcher.callCount(), cfg.Sync.MaxRetryCount)
	}

	status := o.Status()
	if len(status.Errors) != 1 || status.Errors[0].Type != ErrorTypeMutation {
		t.Fatalf("expected one mutation error, got %+v", status.Errors)
	}
}

func TestValidationErrorDropsWithoutRetry(t *testing.T) {
	conn := newFakeConn(true)
	dispatcher := &fakeDispatcher{
		err: services.Wrap(services.ErrValidation, "mutation", "parse kind", "unknown mutation kind", nil),
	}
	o, st, _ := newOrchestrator(t, conn, &fakePipeline{}, dispatcher)
	ctx := context.Background()

	testsupport.EnqueueMutation(t, st, "calendar_sync", map[string]any{})

	if err := o.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if dispatcher.callCount() != 1 {
		t.Fatalf("attempts %d, want 1 for non-retryable", dispatcher.callCount())
	}
	remaining, _ := st.Mutations(ctx)
	if len(remaining) != 0 {
		t.Fatal("rejected mutation should be removed")
	}
	if len(o.Status().Errors) != 1 {
		t.Fatalf("expected one error, got %+v", o.Status().Errors)
	}
}

func TestAuthFailureFailsFastWithoutRetries(t *testing.T) {
	conn := newFakeConn(true)
	pipeline := &fakePipeline{
		err:       services.Wrap(services.ErrAuth, "backend", "session", "no active session", nil),
		permanent: true,
	}
	o, st, _ := newOrchestrator(t, conn, pipeline, &fakeDispatcher{})
	ctx := context.Background()

	item := testsupport.EnqueueUpload(t, st, "/tmp/a.jpg", "opp-1", "image/jpeg")

	if err := o.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if pipeline.callCount() != 1 {
		t.Fatalf("attempts %d, want 1 (auth fails fast)", pipeline.callCount())
	}
	stored, _ := st.UploadByID(ctx, item.ID)
	if stored.Status != store.UploadPending || stored.RetryCount != 0 {
		t.Fatalf("auth failure must leave the item pending with no retries consumed, got %+v", stored)
	}
	status := o.Status()
	if len(status.Errors) != 1 || status.Errors[0].Type != ErrorTypeUpload {
		t.Fatalf("expected one auth error, got %+v", status.Errors)
	}
}

func TestSyncIsNoOpWhileSyncing(t *testing.T) {
	conn := newFakeConn(true)
	block := make(chan struct{})
	pipeline := &blockingPipeline{release: block}
	o, st, _ := newOrchestrator(t, conn, pipeline, &fakeDispatcher{})
	ctx := context.Background()

	testsupport.EnqueueUpload(t, st, "/tmp/a.jpg", "opp-1", "image/jpeg")

	done := make(chan struct{})
	go func() {
		_ = o.Sync(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return o.Status().IsSyncing })

	// Re-entrant call returns immediately without a second pass.
	if err := o.Sync(ctx); err != nil {
		t.Fatalf("re-entrant Sync: %v", err)
	}
	close(block)
	<-done

	if got := pipeline.count(); got != 1 {
		t.Fatalf("pipeline calls %d, want 1", got)
	}
	if o.Status().IsSyncing {
		t.Fatal("isSyncing should reset after the pass")
	}
}

func TestSyncSkippedWhileOffline(t *testing.T) {
	conn := newFakeConn(false)
	pipeline := &fakePipeline{}
	o, st, _ := newOrchestrator(t, conn, pipeline, &fakeDispatcher{})
	ctx := context.Background()

	testsupport.EnqueueUpload(t, st, "/tmp/a.jpg", "opp-1", "image/jpeg")

	if err := o.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if pipeline.callCount() != 0 {
		t.Fatal("no uploads should run while offline")
	}
	if o.Status().IsSyncing {
		t.Fatal("isSyncing must stay false while offline")
	}
}

func TestReconnectTriggersSyncAfterDebounce(t *testing.T) {
	conn := newFakeConn(false)
	pipeline := &fakePipeline{}
	dispatcher := &fakeDispatcher{}
	o, st, _ := newOrchestrator(t, conn, pipeline, dispatcher)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o.Start(ctx)
	defer o.Stop()

	for i := 0; i < 3; i++ {
		testsupport.EnqueueUpload(t, st, "/tmp/a.jpg", "opp-1", "image/jpeg")
	}
	testsupport.EnqueueMutation(t, st, "lead_update", map[string]any{"leadId": "l-1"})

	conn.set(true)

	waitFor(t, func() bool {
		counts, err := st.PendingCounts(context.Background())
		return err == nil && counts.PendingUploads == 0 && counts.PendingMutations == 0
	})

	status := o.Status()
	if status.LastSyncTime.IsZero() {
		t.Fatal("last sync time not stamped after automatic pass")
	}
	if dispatcher.callCount() != 1 {
		t.Fatalf("mutation calls %d, want 1", dispatcher.callCount())
	}
}

func TestOfflineBacklogNotifiesOncePerStretch(t *testing.T) {
	conn := newFakeConn(false)
	notifier := &fakeNotifier{}
	cfg := testsupport.NewConfig(t)
	cfg.Sync.BackoffBaseMS = 1
	cfg.Notifications.BacklogMin = 2
	st := testsupport.MustOpenStore(t, cfg)
	o := New(cfg, st, &fakePipeline{}, &fakeDispatcher{}, conn, notifier, nil)
	ctx := context.Background()

	if _, err := o.EnqueueUpload(ctx, store.UploadItem{LocalPath: "/tmp/a.jpg"}); err != nil {
		t.Fatalf("EnqueueUpload: %v", err)
	}
	if got := notifier.backlogCalls(); len(got) != 0 {
		t.Fatalf("no warning expected below threshold, got %v", got)
	}

	if _, err := o.EnqueueMutation(ctx, "lead_update", json.RawMessage(`{"leadId":"l-1"}`)); err != nil {
		t.Fatalf("EnqueueMutation: %v", err)
	}
	if got := notifier.backlogCalls(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected one warning at pending 2, got %v", got)
	}

	// Further growth during the same offline stretch stays quiet.
	if _, err := o.EnqueueUpload(ctx, store.UploadItem{LocalPath: "/tmp/b.jpg"}); err != nil {
		t.Fatalf("EnqueueUpload: %v", err)
	}
	if got := notifier.backlogCalls(); len(got) != 1 {
		t.Fatalf("expected a single warning per stretch, got %v", got)
	}
}

func TestOnlineEnqueueDoesNotWarnAboutBacklog(t *testing.T) {
	conn := newFakeConn(true)
	notifier := &fakeNotifier{}
	cfg := testsupport.NewConfig(t)
	cfg.Sync.BackoffBaseMS = 1
	cfg.Notifications.BacklogMin = 1
	st := testsupport.MustOpenStore(t, cfg)
	o := New(cfg, st, &fakePipeline{}, &fakeDispatcher{}, conn, notifier, nil)
	ctx := context.Background()

	if _, err := o.EnqueueUpload(ctx, store.UploadItem{LocalPath: "/tmp/a.jpg"}); err != nil {
		t.Fatalf("EnqueueUpload: %v", err)
	}
	if got := notifier.backlogCalls(); len(got) != 0 {
		t.Fatalf("backlog warning must be offline-only, got %v", got)
	}
}

func TestErrorRingIsBounded(t *testing.T) {
	ring := newErrorRing(10)
	for i := 0; i < 25; i++ {
		ring.append(newSyncError(ErrorTypeUpload, "boom"))
	}
	if got := len(ring.snapshot()); got != 10 {
		t.Fatalf("ring size %d, want 10", got)
	}
}

type blockingPipeline struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (b *blockingPipeline) Upload(ctx context.Context, item *store.UploadItem, progress upload.ProgressFunc) (string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-b.release
	return "media-1", nil
}

func (b *blockingPipeline) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

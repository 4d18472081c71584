package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dealsync/internal/backend"
	"dealsync/internal/connectivity"
	"dealsync/internal/store"
	"dealsync/internal/syncer"
	"dealsync/internal/testsupport"
	"dealsync/internal/upload"
)

type completingPipeline struct{}

func (completingPipeline) Upload(ctx context.Context, item *store.UploadItem, progress upload.ProgressFunc) (string, error) {
	return "media-" + item.ID, nil
}

type acceptingDispatcher struct{}

func (acceptingDispatcher) Apply(ctx context.Context, m store.Mutation) error { return nil }

func newTestDaemon(t *testing.T) (*Daemon, *store.Store, *connectivity.Monitor) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	monitor := connectivity.NewMonitor(cfg, nil)
	orchestrator := syncer.New(cfg, st, completingPipeline{}, acceptingDispatcher{}, monitor, nil, nil)

	d, err := New(cfg, st, nil, orchestrator, monitor, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, st, monitor
}

func TestDaemonStartStop(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() {
		t.Fatal("daemon should report running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start should fail while running")
	}

	d.Stop()
	if d.Running() {
		t.Fatal("daemon should report stopped")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	monitor := connectivity.NewMonitor(cfg, nil)
	orchestrator := syncer.New(cfg, st, completingPipeline{}, acceptingDispatcher{}, monitor, nil, nil)

	first, err := New(cfg, st, nil, orchestrator, monitor, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second, err := New(cfg, st, nil, orchestrator, monitor, nil, nil)
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second instance should fail to acquire the lock")
	}
}

func TestDaemonStatusReportsQueueState(t *testing.T) {
	d, st, monitor := newTestDaemon(t)
	ctx := context.Background()
	monitor.SetState(connectivity.State{Connected: false})

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	testsupport.EnqueueUpload(t, st, "/tmp/a.jpg", "opp-1", "image/jpeg")

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("status should report running")
	}
	if status.QueueDBPath == "" || status.LockFilePath == "" {
		t.Fatalf("status missing paths: %+v", status)
	}
}

func TestDaemonSignOutClearsStateAndSession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	monitor := connectivity.NewMonitor(cfg, nil)
	orchestrator := syncer.New(cfg, st, completingPipeline{}, acceptingDispatcher{}, monitor, nil, nil)

	sessionPath := filepath.Join(t.TempDir(), "session.json")
	session := backend.NewFileSession(sessionPath, "https://backend.test", "anon")
	if err := os.WriteFile(sessionPath, []byte(`{"access_token":"tok","refresh_token":"ref"}`), 0o600); err != nil {
		t.Fatalf("write session: %v", err)
	}
	if _, err := session.Session(context.Background()); err != nil {
		t.Fatalf("Session before sign out: %v", err)
	}

	d, err := New(cfg, st, nil, orchestrator, monitor, nil, session)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	testsupport.EnqueueUpload(t, st, "/tmp/a.jpg", "opp-1", "image/jpeg")
	testsupport.EnqueueMutation(t, st, "lead_update", map[string]any{"leadId": "l-1"})

	if err := d.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	counts, err := st.PendingCounts(ctx)
	if err != nil {
		t.Fatalf("PendingCounts: %v", err)
	}
	if counts.PendingUploads != 0 || counts.PendingMutations != 0 {
		t.Fatalf("queues survived sign out: %+v", counts)
	}
	if _, err := os.Stat(sessionPath); !os.IsNotExist(err) {
		t.Fatalf("session file should be removed, stat err %v", err)
	}
	if _, err := session.Session(ctx); err == nil {
		t.Fatal("cached session must be forgotten after sign out")
	}

	// Signing out again stays clean even with nothing left to remove.
	if err := d.SignOut(ctx); err != nil {
		t.Fatalf("repeat SignOut: %v", err)
	}
}

func TestDaemonSyncNowRequiresRunning(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	if err := d.SyncNow(context.Background()); err == nil {
		t.Fatal("SyncNow should fail before Start")
	}
}

package ipc_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dealsync/internal/connectivity"
	"dealsync/internal/daemon"
	"dealsync/internal/ipc"
	"dealsync/internal/logging"
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

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	monitor := connectivity.NewMonitor(cfg, logger)
	monitor.SetState(connectivity.State{Connected: true})
	orchestrator := syncer.New(cfg, st, completingPipeline{}, acceptingDispatcher{}, monitor, nil, logger)

	d, err := daemon.New(cfg, st, logger, orchestrator, monitor, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	socket := filepath.Join(cfg.Paths.LogDir, "dealsync.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	ping, err := client.Ping()
	if err != nil {
		t.Fatalf("Ping RPC failed: %v", err)
	}
	if ping.PID != os.Getpid() {
		t.Fatalf("unexpected pid %d", ping.PID)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if !status.Online {
		t.Fatal("expected status to report online")
	}

	photoPath := filepath.Join(cfg.Paths.DataDir, "kitchen.jpg")
	testsupport.WriteFile(t, photoPath, 1024)

	addResp, err := client.EnqueueUpload(ipc.EnqueueUploadRequest{
		LocalPath:     photoPath,
		OpportunityID: "opp-1",
		MimeType:      "image/jpeg",
	})
	if err != nil {
		t.Fatalf("EnqueueUpload failed: %v", err)
	}
	if addResp.Item.ID == "" {
		t.Fatal("expected enqueued item to have an id")
	}
	mutResp, err := client.EnqueueMutation(ipc.EnqueueMutationRequest{
		Kind:    "note_create",
		Payload: json.RawMessage(`{"noteId":"note-1","dealId":"deal-1","body":"call back tomorrow"}`),
	})
	if err != nil {
		t.Fatalf("EnqueueMutation failed: %v", err)
	}
	if mutResp.ID == "" {
		t.Fatal("expected enqueued mutation to have an id")
	}
	if _, err := client.EnqueueMutation(ipc.EnqueueMutationRequest{Kind: "calendar_sync"}); err == nil {
		t.Fatal("expected unknown mutation kind to be rejected")
	}

	syncResp, err := client.SyncNow()
	if err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}
	if !syncResp.Started {
		t.Fatalf("expected sync pass to run, message=%s", syncResp.Message)
	}

	listResp, err := client.QueueList(nil)
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(listResp.Uploads) != 1 {
		t.Fatalf("expected 1 upload entry, got %d", len(listResp.Uploads))
	}
	if listResp.Uploads[0].Status != string(store.UploadCompleted) {
		t.Fatalf("expected completed upload, got %s", listResp.Uploads[0].Status)
	}
	if len(listResp.Mutations) != 0 {
		t.Fatalf("expected drained mutation queue, got %d entries", len(listResp.Mutations))
	}

	completedResp, err := client.QueueList([]string{string(store.UploadCompleted)})
	if err != nil {
		t.Fatalf("QueueList filter failed: %v", err)
	}
	if len(completedResp.Uploads) != 1 {
		t.Fatalf("expected 1 completed upload, got %d", len(completedResp.Uploads))
	}

	retryResp, err := client.QueueRetry(nil)
	if err != nil {
		t.Fatalf("QueueRetry failed: %v", err)
	}
	if retryResp.Updated != 0 {
		t.Fatalf("expected 0 retried uploads, got %d", retryResp.Updated)
	}

	clearResp, err := client.QueueClearCompleted(0)
	if err != nil {
		t.Fatalf("QueueClearCompleted failed: %v", err)
	}
	if clearResp.Removed != 1 {
		t.Fatalf("expected 1 completed upload removed, got %d", clearResp.Removed)
	}

	logPath := d.LogPath()
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail initial failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}

	followDone := make(chan struct{})
	go func(offset int64) {
		resp, err := client.LogTail(ipc.LogTailRequest{Offset: offset, Follow: true, WaitMillis: 500})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Lines) != 1 || resp.Lines[0] != "fourth" {
			t.Errorf("unexpected follow lines: %#v", resp.Lines)
		}
		close(followDone)
	}(logResp.Offset)

	time.Sleep(100 * time.Millisecond)
	if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		_, _ = f.WriteString("fourth\n")
		_ = f.Close()
	} else {
		t.Fatalf("append log: %v", err)
	}

	select {
	case <-followDone:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}

	cacheResp, err := client.CacheClear()
	if err != nil {
		t.Fatalf("CacheClear failed: %v", err)
	}
	if !cacheResp.Cleared {
		t.Fatal("expected cache clear acknowledgement")
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp == nil || notifyResp.Message == "" {
		t.Fatalf("expected notification message, got %#v", notifyResp)
	}

	signOutResp, err := client.SignOut()
	if err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if !signOutResp.Cleared {
		t.Fatal("expected sign out acknowledgement")
	}

	status2, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status2.PendingUploads != 0 || status2.PendingMutations != 0 {
		t.Fatalf("expected empty queues after sign out: %#v", status2)
	}
}

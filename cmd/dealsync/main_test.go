package main

import (
	"bytes"
	"context"
	"fmt"
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

type cliTestEnv struct {
	store      *store.Store
	daemon     *daemon.Daemon
	socketPath string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", base)

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.MediaCacheDir, cfg.Paths.SocketPath)

	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	monitor := connectivity.NewMonitor(cfg, logger)
	monitor.SetState(connectivity.State{Connected: true})
	orchestrator := syncer.New(cfg, st, completingPipeline{}, acceptingDispatcher{}, monitor, nil, logger)

	d, err := daemon.New(cfg, st, logger, orchestrator, monitor, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	socketPath := filepath.Join(cfg.Paths.LogDir, "dealsync.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	return &cliTestEnv{
		store:      st,
		daemon:     d,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
	}
}

func writeTestConfig(t *testing.T, path, dataDir, logDir, cacheDir, socketPath string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
media_cache_dir = %q
socket_path = %q

[backend]
base_url = "https://backend.test"
anon_key = "anon-test-key"
`, dataDir, logDir, cacheDir, socketPath)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, socketPath, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	full := append([]string{}, args...)
	if socketPath != "" {
		full = append(full, "--socket", socketPath)
	}
	if configPath != "" {
		full = append(full, "--config", configPath)
	}
	cmd.SetArgs(full)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}

func waitForOutput(t *testing.T, run func() (string, error), want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var last string
	for time.Now().Before(deadline) {
		out, err := run()
		if err != nil {
			t.Fatalf("command failed: %v", err)
		}
		if strings.Contains(out, want) {
			return
		}
		last = out
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("expected output to contain %q, last:\n%s", want, last)
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "Running")
	requireContains(t, out, "Pending uploads")
}

func TestStatusCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, `"running": true`)
	requireContains(t, out, `"pending_uploads": 0`)
}

func TestQueueListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Queues are empty")
}

func TestUploadAndSyncCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	photo := filepath.Join(env.baseDir, "listing.jpg")
	testsupport.WriteFile(t, photo, 2048)

	out, _, err := runCLI(t, []string{"upload", photo, "--opportunity", "opp-9"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	requireContains(t, out, "Queued listing.jpg")

	out, _, err = runCLI(t, []string{"sync"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	requireContains(t, out, "sync pass completed")

	waitForOutput(t, func() (string, error) {
		out, _, err := runCLI(t, []string{"queue", "list", "--status", "completed"}, env.socketPath, env.configPath)
		return out, err
	}, "listing.jpg")
}

func TestMutateCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"mutate", "lead_update", `{"leadId":"l-9","fields":{"phone":"555"}}`}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	requireContains(t, out, "Queued lead_update mutation as")

	if _, _, err := runCLI(t, []string{"mutate", "calendar_sync"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("unknown mutation kind should be rejected")
	}

	if _, _, err := runCLI(t, []string{"mutate", "lead_update", `{not json`}, env.socketPath, env.configPath); err == nil {
		t.Fatal("malformed payload should be rejected")
	}
}

func TestQueueClearCompletedCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	photo := filepath.Join(env.baseDir, "porch.jpg")
	testsupport.WriteFile(t, photo, 512)
	if _, _, err := runCLI(t, []string{"upload", photo}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, _, err := runCLI(t, []string{"sync"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("sync: %v", err)
	}
	waitForOutput(t, func() (string, error) {
		out, _, err := runCLI(t, []string{"queue", "list", "--status", "completed"}, env.socketPath, env.configPath)
		return out, err
	}, "porch.jpg")

	out, _, err := runCLI(t, []string{"queue", "clear-completed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear-completed: %v", err)
	}
	requireContains(t, out, "Cleared 1 completed uploads")
}

func TestSignOutForce(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"sign-out", "--force"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sign-out: %v", err)
	}
	requireContains(t, out, "Signed out")
}

func TestLogsCommandNoEntries(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"logs"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "No log entries available")
}

func TestTestNotifyCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "notification sent")
}

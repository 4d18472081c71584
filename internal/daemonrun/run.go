package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"dealsync/internal/backend"
	"dealsync/internal/config"
	"dealsync/internal/connectivity"
	"dealsync/internal/daemon"
	"dealsync/internal/ipc"
	"dealsync/internal/logging"
	"dealsync/internal/media"
	"dealsync/internal/mutation"
	"dealsync/internal/notifications"
	"dealsync/internal/preflight"
	"dealsync/internal/store"
	"dealsync/internal/syncer"
	"dealsync/internal/upload"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the dealsync daemon runtime loop. It wires every service from
// configuration and blocks until the process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, "dealsync.log")
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "dealsync.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	for _, result := range preflight.RunAll(signalCtx, cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}

	st, err := store.Open(cfg, logger)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer st.Close()

	auth := backend.NewFileSession(cfg.Backend.SessionFile, cfg.Backend.BaseURL, cfg.Backend.AnonKey)
	client, err := backend.New(cfg, auth)
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	compressor := media.NewCompressor(cfg.Paths.MediaCacheDir, cfg.Upload.MaxDimension, cfg.Upload.JPEGQuality)
	pipeline := upload.NewPipeline(client, compressor, logger, upload.Options{
		CompressionEnabled: cfg.Upload.CompressionEnabled,
	})
	dispatcher := mutation.NewDispatcher(client, logger)
	monitor := connectivity.NewMonitor(cfg, logger)
	notifier := notifications.NewService(cfg)
	orchestrator := syncer.New(cfg, st, pipeline, dispatcher, monitor, notifier, logger)

	d, err := daemon.New(cfg, st, logger, orchestrator, monitor, notifier, auth)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check for another running instance and queue database access"))
		return err
	}

	<-signalCtx.Done()
	logger.Info("dealsync daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

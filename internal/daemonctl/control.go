// Package daemonctl orchestrates the daemon process from the CLI: launching
// the dealsyncd binary, waiting for its socket, and terminating it cleanly.
package daemonctl

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"dealsync/internal/ipc"
)

// ErrDaemonNotRunning indicates no daemon was reachable at the socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
}

// StartState describes the outcome of EnsureStarted.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// StopResult captures daemon stop orchestration state.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached dealsyncd process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	var args []string
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon process if it is not already reachable
// and returns the resulting state.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	ping, err := client.Ping()
	if err != nil {
		return StartResult{}, fmt.Errorf("ping daemon: %w", err)
	}

	if launched {
		return StartResult{State: StartStateStarted, Launched: true, PID: ping.PID}, nil
	}
	return StartResult{State: StartStateAlreadyRunning, PID: ping.PID}, nil
}

// StopAndTerminate signals the daemon process to shut down and waits for
// its socket to disappear. A process that ignores SIGTERM past the timeout
// is killed.
func StopAndTerminate(socketPath string, timeout time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return StopResult{}, ErrDaemonNotRunning
	}
	ping, err := client.Ping()
	_ = client.Close()
	if err != nil {
		return StopResult{}, ErrDaemonNotRunning
	}

	pid := ping.PID
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("daemon reported invalid pid %d", pid)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return StopResult{PID: pid}, nil
		}
		return StopResult{PID: pid}, fmt.Errorf("signal daemon: %w", err)
	}

	if err := WaitForShutdown(socketPath, timeout); err == nil {
		return StopResult{PID: pid}, nil
	}

	if killErr := syscall.Kill(pid, syscall.SIGKILL); killErr != nil && !errors.Is(killErr, syscall.ESRCH) {
		return StopResult{PID: pid}, fmt.Errorf("kill daemon: %w", killErr)
	}
	return StopResult{PID: pid, ForcedKill: true}, nil
}

// WaitForShutdown waits for the daemon IPC socket to stop answering.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			return nil
		}
		_, pingErr := client.Ping()
		_ = client.Close()
		if pingErr != nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon still running after %s", timeout)
}

// Running reports whether a daemon answers at the socket.
func Running(socketPath string) bool {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return false
	}
	defer client.Close()
	_, err = client.Ping()
	return err == nil
}

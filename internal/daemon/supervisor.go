// ABOUTME: Daemon supervisor owning the pid file and log handle
// ABOUTME: Start re-execs the binary detached; stop sends SIGTERM and waits

package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNotRunning is returned by Stop and Signal when no live daemon process
// is found.
var ErrNotRunning = errors.New("daemon not running")

// ErrAlreadyRunning is returned by Start when a live daemon holds the pid file.
type ErrAlreadyRunning struct {
	PID int
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("daemon already running with pid %d", e.PID)
}

// Supervisor manages the daemon's pid file and detached lifecycle.
type Supervisor struct {
	pidFile string
	logFile string
	logger  *slog.Logger
}

// NewSupervisor creates a supervisor for the given pid and log file paths.
func NewSupervisor(pidFile, logFile string) *Supervisor {
	return &Supervisor{
		pidFile: pidFile,
		logFile: logFile,
		logger:  slog.Default().With("component", "daemon"),
	}
}

// PidFile returns the supervised pid file path.
func (s *Supervisor) PidFile() string { return s.pidFile }

// LogFile returns the daemon log path.
func (s *Supervisor) LogFile() string { return s.logFile }

// WritePID records the given pid. Parent directories are created.
func (s *Supervisor) WritePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(s.pidFile), 0755); err != nil {
		return fmt.Errorf("creating pid directory: %w", err)
	}
	if err := os.WriteFile(s.pidFile, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	return nil
}

// ReadPID returns the recorded pid, or ErrNotRunning if absent or invalid.
func (s *Supervisor) ReadPID() (int, error) {
	data, err := os.ReadFile(s.pidFile)
	if os.IsNotExist(err) {
		return 0, ErrNotRunning
	}
	if err != nil {
		return 0, fmt.Errorf("reading pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, ErrNotRunning
	}
	return pid, nil
}

// RemovePID deletes the pid file. Missing files are not an error.
func (s *Supervisor) RemovePID() error {
	err := os.Remove(s.pidFile)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}

// Status returns the running daemon's pid, or (0, false) when the daemon is
// not running. A stale pid file left by a dead process is removed.
func (s *Supervisor) Status() (int, bool) {
	pid, err := s.ReadPID()
	if err != nil {
		return 0, false
	}
	if !processAlive(pid) {
		s.logger.Warn("removing stale pid file", "pid", pid)
		s.RemovePID()
		return 0, false
	}
	return pid, true
}

// Start re-execs the current binary with the given arguments, detached from
// the terminal, with stdout and stderr appended to the log file. Returns the
// child pid.
func (s *Supervisor) Start(args []string) (int, error) {
	if pid, running := s.Status(); running {
		return 0, &ErrAlreadyRunning{PID: pid}
	}

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolving executable: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.logFile), 0755); err != nil {
		return 0, fmt.Errorf("creating log directory: %w", err)
	}
	logHandle, err := os.OpenFile(s.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("opening log file: %w", err)
	}
	defer logHandle.Close()

	cmd := exec.Command(exe, args...)
	cmd.Stdout = logHandle
	cmd.Stderr = logHandle
	cmd.Stdin = nil
	cmd.SysProcAttr = detachAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting daemon process: %w", err)
	}

	pid := cmd.Process.Pid
	if err := s.WritePID(pid); err != nil {
		cmd.Process.Kill()
		return 0, err
	}

	// Reap on exit so a crashed child doesn't linger as a zombie
	go cmd.Wait()

	s.logger.Info("daemon started", "pid", pid, "log", s.logFile)
	return pid, nil
}

// Stop terminates the running daemon and waits up to timeout for it to
// exit. The pid file is removed on success.
func (s *Supervisor) Stop(timeout time.Duration) error {
	pid, running := s.Status()
	if !running {
		return ErrNotRunning
	}

	if err := terminateProcess(pid); err != nil {
		return fmt.Errorf("signaling daemon: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			s.RemovePID()
			s.logger.Info("daemon stopped", "pid", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon with pid %d did not exit within %s", pid, timeout)
}

// ABOUTME: Unix process primitives: liveness probe, SIGTERM, session detach

//go:build unix

package daemon

import (
	"syscall"
)

// processAlive probes the process with signal 0.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func terminateProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// detachAttr puts the child in its own session so it survives the parent's
// terminal closing.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

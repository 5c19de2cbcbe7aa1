//go:build windows

package main

import (
	"os"
	"os/exec"
	"syscall"
)

// detach starts the daemon in a new process group, away from the console
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminate kills the daemon. Windows has no SIGTERM, so in-flight
// submissions are not drained.
func terminate(p *os.Process) error {
	return p.Kill()
}

//go:build unix

package main

import (
	"os"
	"os/exec"
	"syscall"
)

// detach puts the daemon in its own process group so it outlives the shell
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate asks the daemon to drain in-flight grading and exit
func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

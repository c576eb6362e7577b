// SPDX-License-Identifier: MIT

//go:build !unix

package procgroup

import (
	"os/exec"
	"syscall"
)

const (
	sigTerm = syscall.SIGTERM
	sigKill = syscall.SIGKILL
)

// Set is a no-op without process groups.
func Set(*exec.Cmd) {}

// Kill only supports SIGKILL, applied to the leader.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if sig == syscall.SIGKILL {
		return cmd.Process.Kill()
	}
	return nil
}

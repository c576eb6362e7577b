// SPDX-License-Identifier: MIT

// Package procgroup starts helper processes in their own process group so the
// whole tree can be signalled together.
package procgroup

import (
	"errors"
	"os/exec"
	"time"

	lklog "github.com/anilwee/dialog/internal/log"
)

// ErrKillFailed is returned when a process survives SIGKILL for the timeout.
var ErrKillFailed = errors.New("kill operation failed")

// killWait bounds how long Terminate waits for cmd.Wait after SIGKILL.
var killWait = 5 * time.Second

// Terminate stops cmd's process group: SIGTERM, then SIGKILL once grace has
// passed. waitCh must deliver the result of cmd.Wait; Terminate consumes it
// and returns that result, or ErrKillFailed when the process outlives
// SIGKILL. A nil cmd is a no-op.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	logger := lklog.WithComponent("procgroup")
	pid := cmd.Process.Pid

	if err := Kill(cmd, sigTerm); err != nil {
		logger.Debug().Err(err).Int("pid", pid).Msg("SIGTERM to process group failed")
	}
	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	logger.Warn().Int("pid", pid).Dur("grace", grace).Msg("grace period exceeded, sending SIGKILL to process group")
	if err := Kill(cmd, sigKill); err != nil {
		logger.Debug().Err(err).Int("pid", pid).Msg("SIGKILL to process group failed")
	}
	select {
	case err := <-waitCh:
		return err
	case <-time.After(killWait):
		return ErrKillFailed
	}
}

//go:build !windows
// +build !windows

package procrunner

/**
 * Code in this file is based on the source code at
 * https://github.com/hashicorp/consul-template/tree/3ea7d99ad8eff17897e0d63dac86d74770170bb8/child/sys_nix.go
 */

import (
	"os/exec"
	"syscall"
)

func setSetpgid(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGracefully sends SIGTERM to the process group so children of
// the shell (e.g. a script's own subprocesses) are reached too.
func terminateGracefully(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

func forceKill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

func processNotFoundErr(err error) bool {
	return err == syscall.ESRCH
}

// isAlive reports whether pid still exists, used as the "is responding"
// liveness probe; a headless CLI runner has no window-message pump to
// poll, so existence is the platform-specific signal available to us.
func isAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

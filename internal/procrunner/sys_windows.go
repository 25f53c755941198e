//go:build windows
// +build windows

package procrunner

/**
 * Code in this file is based on the source code at
 * https://github.com/hashicorp/consul-template/tree/3ea7d99ad8eff17897e0d63dac86d74770170bb8/child/sys_windows.go
 */

import "os/exec"

func setSetpgid(cmd *exec.Cmd) {}

func terminateGracefully(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func forceKill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func processNotFoundErr(err error) bool {
	return false
}

// isAlive is best-effort on Windows: os.FindProcess always succeeds for a
// pid regardless of liveness, so the runner falls back to its own exit
// channel for real liveness and treats this probe as advisory only.
func isAlive(pid int) bool {
	return true
}

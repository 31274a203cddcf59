//go:build !windows

package runner

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcess puts the tool in its own process group, so that killing it also kills the ffmpeg children that
// yt-dlp spawns for merging.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}

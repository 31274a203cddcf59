//go:build windows

package runner

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// configureProcess gives the tool its own process group, so console interrupts aimed at the server do not reach it.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

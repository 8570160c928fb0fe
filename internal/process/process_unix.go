//go:build unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

const SuspendSupported = true

// The child leads a new process group, so that signals reach any processes it spawns too.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	err := unix.Kill(-p.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func suspendProcess(p *os.Process) error {
	return signalGroup(p, unix.SIGSTOP)
}

func resumeProcess(p *os.Process) error {
	return signalGroup(p, unix.SIGCONT)
}

func terminateProcess(p *os.Process) error {
	return signalGroup(p, unix.SIGKILL)
}

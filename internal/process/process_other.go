//go:build !unix && !windows

package process

import (
	"errors"
	"os"
	"os/exec"
)

const SuspendSupported = false

func configureCommand(*exec.Cmd) {}

func suspendProcess(*os.Process) error {
	return ErrSuspendUnsupported
}

func resumeProcess(*os.Process) error {
	return ErrSuspendUnsupported
}

func terminateProcess(p *os.Process) error {
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

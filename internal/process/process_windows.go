//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

const SuspendSupported = true

const (
	createNoWindow       = 0x08000000
	processSuspendResume = 0x0800
)

var (
	ntdll                = windows.NewLazySystemDLL("ntdll.dll")
	procNtSuspendProcess = ntdll.NewProc("NtSuspendProcess")
	procNtResumeProcess  = ntdll.NewProc("NtResumeProcess")
)

func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true, CreationFlags: createNoWindow}
}

func callWithProcess(proc *windows.LazyProc, p *os.Process) error {
	if err := proc.Find(); err != nil {
		return fmt.Errorf("%w: %v", ErrSuspendUnsupported, err)
	}
	h, err := windows.OpenProcess(processSuspendResume, false, uint32(p.Pid))
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)
	if status, _, _ := proc.Call(uintptr(h)); status != 0 {
		return fmt.Errorf("%s failed: NTSTATUS 0x%08x", proc.Name, status)
	}
	return nil
}

func suspendProcess(p *os.Process) error {
	return callWithProcess(procNtSuspendProcess, p)
}

func resumeProcess(p *os.Process) error {
	return callWithProcess(procNtResumeProcess, p)
}

func terminateProcess(p *os.Process) error {
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

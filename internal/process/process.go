// Package process runs external tools as child processes, streaming their output line by line and allowing the whole
// process tree to be suspended, resumed and terminated.
package process

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	DefaultOutputBufSize = 64
	// Number of trailing stderr lines kept for ProcessError.
	stderrTailLines = 10
)

var (
	ErrSuspendUnsupported = errors.New("suspend/resume not supported on this platform")
)

type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("Stream(%d)", int(s))
	}
}

// Line is one line of child process output, without its terminator.
type Line struct {
	Stream Stream
	Text   string
}

type Runner interface {
	// Start launches the executable at path with args. A failure to launch is reported as a *LaunchError.
	Start(path string, args []string) (Process, error)
}

// Process is an exclusively owned handle to a running child process.
type Process interface {
	Pid() int
	// Output delivers output lines in arrival order, from both streams. The channel is closed once both streams have
	// ended, always before Wait returns.
	Output() <-chan Line
	// Wait blocks until the process has exited and all output has been delivered, returning a *ProcessError for a
	// nonzero exit. It may be called any number of times.
	Wait() error
	// Suspend pauses the process (and its children where the platform allows). It is idempotent and a no-op after
	// the process has exited.
	Suspend() error
	// Resume reverses Suspend, with the same idempotence.
	Resume() error
	// Terminate forcibly ends the process. It is idempotent.
	Terminate() error
}

// LaunchError means the process could not be started at all.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ProcessError means the process ran but did not exit successfully. ExitCode is -1 if it was killed by a signal.
type ProcessError struct {
	Path     string
	ExitCode int
	Stderr   []string
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", filepath.Base(e.Path), e.ExitCode)
	if detail := e.Message(); detail != "" {
		msg += ": " + detail
	}
	return msg
}

// Message picks the most useful line of the captured stderr: the last one that looks like an error report, otherwise
// the last non-empty line.
func (e *ProcessError) Message() string {
	last := ""
	for i := len(e.Stderr) - 1; i >= 0; i-- {
		line := strings.TrimSpace(e.Stderr[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(line), "ERROR") {
			return line
		}
		if last == "" {
			last = line
		}
	}
	return last
}

// Output is the captured stderr tail as the tool wrote it, without blank lines at either end.
func (e *ProcessError) Output() string {
	lines := e.Stderr
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

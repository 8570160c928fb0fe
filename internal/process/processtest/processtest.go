// Package processtest provides a scripted process.Runner for testing code that drives external tools.
package processtest

import (
	"errors"
	"sync"

	"github.com/alanbriolat/ezfetch/internal/process"
	sync_ "github.com/alanbriolat/ezfetch/internal/sync"
)

var ErrNoScript = errors.New("no script for command")

// Script describes how a fake process behaves.
type Script struct {
	// Returned from Start as a *process.LaunchError, without creating a process.
	LaunchErr error
	// Run before Start returns, e.g. to create the files a real tool would write.
	OnStart func() error
	Lines   []process.Line
	// Exit result, unless the process is terminated.
	Err error
	// Hold keeps the process running after its lines were emitted, until Release or Terminate.
	Hold bool
}

// Stdout and Stderr build Lines for a Script.
func Stdout(lines ...string) []process.Line {
	return makeLines(process.Stdout, lines)
}

func Stderr(lines ...string) []process.Line {
	return makeLines(process.Stderr, lines)
}

func makeLines(stream process.Stream, lines []string) []process.Line {
	result := make([]process.Line, len(lines))
	for i, text := range lines {
		result[i] = process.Line{Stream: stream, Text: text}
	}
	return result
}

// Runner starts fake processes, choosing a Script for each invocation with Handler.
type Runner struct {
	Handler func(path string, args []string) Script

	mu      sync.Mutex
	started []*Process
}

func (r *Runner) Start(path string, args []string) (process.Process, error) {
	script := Script{LaunchErr: ErrNoScript}
	if r.Handler != nil {
		script = r.Handler(path, args)
	}
	if script.LaunchErr != nil {
		return nil, &process.LaunchError{Path: path, Err: script.LaunchErr}
	}
	if script.OnStart != nil {
		if err := script.OnStart(); err != nil {
			return nil, &process.LaunchError{Path: path, Err: err}
		}
	}
	p := &Process{
		Path:    path,
		Args:    append([]string(nil), args...),
		script:  script,
		output:  make(chan process.Line, len(script.Lines)),
		release: make(chan struct{}),
		done:    make(chan struct{}),
	}
	r.mu.Lock()
	r.started = append(r.started, p)
	r.mu.Unlock()
	go p.run()
	return p, nil
}

// Started returns every process started so far, oldest first.
func (r *Runner) Started() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Process(nil), r.started...)
}

type Process struct {
	Path string
	Args []string

	script      Script
	output      chan process.Line
	release     chan struct{}
	releaseOnce sync.Once
	done        chan struct{}
	err         error

	Suspended  sync_.Event
	Terminated sync_.Event
	mu         sync.Mutex
	suspends   int
	resumes    int
}

func (p *Process) run() {
	for _, line := range p.script.Lines {
		p.output <- line
	}
	if p.script.Hold {
		select {
		case <-p.release:
		case <-p.Terminated.Wait():
		}
	}
	if p.Terminated.IsSet() {
		p.err = &process.ProcessError{Path: p.Path, ExitCode: -1}
	} else {
		p.err = p.script.Err
	}
	close(p.output)
	close(p.done)
}

// Release lets a held process exit with its scripted result.
func (p *Process) Release() {
	p.releaseOnce.Do(func() { close(p.release) })
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Counts returns how many times Suspend and Resume changed the state.
func (p *Process) Counts() (suspends int, resumes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suspends, p.resumes
}

func (p *Process) Pid() int {
	return 0
}

func (p *Process) Output() <-chan process.Line {
	return p.output
}

func (p *Process) Wait() error {
	<-p.done
	return p.err
}

func (p *Process) Suspend() error {
	if p.Suspended.Set() {
		p.mu.Lock()
		p.suspends++
		p.mu.Unlock()
	}
	return nil
}

func (p *Process) Resume() error {
	if p.Suspended.Clear() {
		p.mu.Lock()
		p.resumes++
		p.mu.Unlock()
	}
	return nil
}

func (p *Process) Terminate() error {
	p.Terminated.Set()
	return nil
}

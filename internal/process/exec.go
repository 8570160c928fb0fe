package process

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alanbriolat/ezfetch/internal/pubsub"
	sync_ "github.com/alanbriolat/ezfetch/internal/sync"
)

const (
	DefaultWaitDelay = 2 * time.Second
	// Large enough for a single-line JSON metadata document.
	maxLineSize = 16 * 1024 * 1024
)

// ExecRunner starts real child processes with os/exec.
type ExecRunner struct {
	Dir           string
	Env           []string
	OutputBufSize int
	// WaitDelay bounds how long output is still read after the process exits, in case a grandchild holds the output
	// pipes open.
	WaitDelay time.Duration
}

func (r *ExecRunner) Start(path string, args []string) (Process, error) {
	cmd := exec.Command(path, args...)
	cmd.Dir = r.Dir
	cmd.Env = r.Env
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	configureCommand(cmd)

	bufSize := r.OutputBufSize
	if bufSize <= 0 {
		bufSize = DefaultOutputBufSize
	}
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stdoutW.Close()
		_ = stderrW.Close()
		return nil, &LaunchError{Path: path, Err: err}
	}

	p := &execProcess{
		cmd:    cmd,
		path:   path,
		output: pubsub.NewChannel[Line](bufSize),
		done:   make(chan struct{}),
		log:    zap.S().Named("process").With("pid", cmd.Process.Pid, "path", path),
	}
	p.log.Debugw("started", "args", args)
	p.readers.Add(2)
	go p.read(Stdout, stdoutR)
	go p.read(Stderr, stderrR)
	go p.wait(stdoutW, stderrW)
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	path   string
	output pubsub.Channel[Line]
	log    *zap.SugaredLogger

	readers    sync.WaitGroup
	stderrTail []string // owned by the stderr reader until readers are done

	suspended  sync_.Event
	terminated sync_.Event
	exited     sync_.Event
	done       chan struct{}
	err        error
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Output() <-chan Line {
	return p.output.Receive()
}

func (p *execProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *execProcess) Suspend() error {
	if p.exited.IsSet() || !p.suspended.Set() {
		return nil
	}
	if err := suspendProcess(p.cmd.Process); err != nil {
		p.suspended.Clear()
		return err
	}
	p.log.Debug("suspended")
	return nil
}

func (p *execProcess) Resume() error {
	if p.exited.IsSet() || !p.suspended.Clear() {
		return nil
	}
	if err := resumeProcess(p.cmd.Process); err != nil {
		p.suspended.Set()
		return err
	}
	p.log.Debug("resumed")
	return nil
}

func (p *execProcess) Terminate() error {
	if p.exited.IsSet() || !p.terminated.Set() {
		return nil
	}
	p.log.Debug("terminating")
	return terminateProcess(p.cmd.Process)
}

func (p *execProcess) read(stream Stream, r io.Reader) {
	defer p.readers.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(scanLines)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		if stream == Stderr {
			p.stderrTail = append(p.stderrTail, text)
			if len(p.stderrTail) > stderrTailLines {
				p.stderrTail = p.stderrTail[len(p.stderrTail)-stderrTailLines:]
			}
		}
		p.output.Send(Line{Stream: stream, Text: text})
	}
	if err := scanner.Err(); err != nil {
		p.log.Warnw("stopped reading output", "stream", stream, "error", err)
		// Keep consuming so the process never blocks on a full pipe
		_, _ = io.Copy(io.Discard, r)
	}
}

func (p *execProcess) wait(stdout, stderr *io.PipeWriter) {
	err := p.cmd.Wait()
	_ = stdout.Close()
	_ = stderr.Close()
	p.readers.Wait()
	p.output.Close()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(err, exec.ErrWaitDelay):
		p.log.Warn("output still open after exit, some output may be lost")
	case errors.As(err, &exitErr):
		p.err = &ProcessError{Path: p.path, ExitCode: exitErr.ExitCode(), Stderr: p.stderrTail}
	default:
		p.err = &ProcessError{Path: p.path, ExitCode: -1, Stderr: append(p.stderrTail, err.Error())}
	}
	p.log.Debugw("exited", "error", p.err)
	p.exited.Set()
	close(p.done)
}

// scanLines is like bufio.ScanLines, but also treats a bare '\r' as a line terminator, since progress meters
// redraw a single line with carriage returns.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

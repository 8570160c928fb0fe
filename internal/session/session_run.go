package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/r3labs/diff/v3"
	"go.uber.org/zap"

	"github.com/alanbriolat/ezfetch/async"
	"github.com/alanbriolat/ezfetch/generic"
	"github.com/alanbriolat/ezfetch/internal/metadata"
	"github.com/alanbriolat/ezfetch/internal/notify"
	"github.com/alanbriolat/ezfetch/internal/process"
	"github.com/alanbriolat/ezfetch/internal/progress"
	"github.com/alanbriolat/ezfetch/internal/settings"
	"github.com/alanbriolat/ezfetch/internal/tools"
	"github.com/alanbriolat/ezfetch/util"
)

type task struct {
	id        TaskID
	url       string
	startedAt time.Time
	log       *zap.SugaredLogger

	info        *metadata.Info
	prefs       settings.Preferences
	mode        tools.Mode
	savePath    string
	stem        string
	autoConvert bool

	// The phase in progress: its process, and where its results arrive. A nil channel is one not waited on.
	process  generic.Option[process.Process]
	parser   progress.Parser
	resolved <-chan generic.Result[*metadata.Info]
	output   <-chan process.Line
	exited   <-chan error

	downloaded    string
	convertOutput string
	convertTarget string
}

func (s *Session) run() {
	for {
		var resolved <-chan generic.Result[*metadata.Info]
		var output <-chan process.Line
		var exited <-chan error
		if t := s.task; t != nil {
			resolved, output = t.resolved, t.output
			// Only act on the exit once every line of output has been handled
			if t.output == nil {
				exited = t.exited
			}
		}

		select {
		case <-s.ctx.Done():
			s.shutdown()
			close(s.done)
			return
		case c := <-s.commands:
			s.handleCommand(c)
		case r := <-resolved:
			s.handleResolved(r)
		case line, ok := <-output:
			if ok {
				s.handleLine(line)
			} else {
				s.task.output = nil
			}
		case err := <-exited:
			s.handleExit(err)
		}
	}
}

func (s *Session) handleCommand(c any) {
	switch c := c.(type) {
	case submitCommand:
		if id, err := s.submit(c.Arg()); err != nil {
			_ = c.RespondError(err)
		} else {
			_ = c.Respond(id)
		}
	case startCommand:
		if err := s.start(c.Arg()); err != nil {
			_ = c.RespondError(err)
		} else {
			_ = c.Respond(generic.NewVoid())
		}
	case cancelCommand:
		if !s.snapshot.Get().State.IsRunning() {
			if c.Arg().closing {
				_ = c.Respond(true)
			} else {
				_ = c.RespondError(ErrNoActiveTask)
			}
			return
		}
		_ = c.Respond(s.cancel())
	case acknowledgeCommand:
		if err := s.acknowledge(); err != nil {
			_ = c.RespondError(err)
		} else {
			_ = c.Respond(generic.NewVoid())
		}
	default:
		s.log.Errorf("unhandled command type %T", c)
	}
}

// checkIdle rejects a request for new work if the session is busy, routing it to the cancel path if a task is active.
func (s *Session) checkIdle() error {
	switch state := s.snapshot.Get().State; {
	case state == StateResolvingMetadata:
		return ErrBusy
	case state.IsRunning():
		s.cancel()
		return ErrTaskActive
	default:
		return nil
	}
}

func (s *Session) submit(url string) (TaskID, error) {
	if err := s.checkIdle(); err != nil {
		return "", err
	}
	if _, err := util.ValidateURL(url); err != nil {
		return "", err
	}
	t := &task{
		id:        NewTaskID(),
		url:       strings.TrimSpace(url),
		startedAt: time.Now(),
	}
	t.log = s.log.With("task_id", t.id)
	t.log.Infow("resolving metadata", "url", t.url)
	s.task = t
	s.update(func(snap *Snapshot) {
		*snap = Snapshot{TaskID: t.id, URL: t.url, State: StateResolvingMetadata}
	})
	t.resolved = async.RunResult(func() (*metadata.Info, error) {
		return s.resolve(t.url)
	})
	return t.id, nil
}

// resolve runs outside the session goroutine, so it may only use immutable state.
func (s *Session) resolve(url string) (*metadata.Info, error) {
	path, err := s.config.Locator.Locate(s.config.Downloader)
	if err != nil {
		return nil, err
	}
	r := &metadata.Resolver{Runner: s.config.Runner, Path: path}
	return r.Resolve(s.ctx, url)
}

func (s *Session) handleResolved(r generic.Result[*metadata.Info]) {
	t := s.task
	t.resolved = nil
	if r.IsErr() {
		t.log.Infow("metadata resolution failed", "error", r.Error)
		detail := errorDetail(t.log, r.Error)
		s.record(OutcomeFailed, "", r.Error)
		s.task = nil
		s.update(func(snap *Snapshot) {
			snap.State = StateIdle
			snap.Error = r.Error.Error()
			snap.Detail = detail
		})
		return
	}
	t.info = r.Value
	t.log.Infow("ready to download", "title", t.info.Title)
	s.update(func(snap *Snapshot) {
		snap.Title = t.info.Title
		snap.Thumbnail = t.info.Thumbnail
		snap.Duration = t.info.Duration
		snap.State = StateReadyToDownload
	})
}

func (s *Session) start(opts StartOptions) error {
	if err := s.checkIdle(); err != nil {
		return err
	}
	if s.snapshot.Get().State != StateReadyToDownload {
		return ErrNotReady
	}
	if !opts.Mode.Valid() {
		return &util.ValidationError{Field: "mode", Input: string(opts.Mode), Reason: "must be video or audio"}
	}
	if strings.TrimSpace(opts.SavePath) == "" {
		return ErrNoSavePath
	}
	savePath, err := filepath.Abs(opts.SavePath)
	if err != nil {
		return err
	}

	t := s.task
	t.prefs = s.loadPreferences()
	t.mode = opts.Mode
	t.savePath = savePath
	t.stem = tools.Stem(savePath)
	t.autoConvert = t.prefs.EffectiveAutoConvert()
	t.log.Infow("starting download", "mode", t.mode, "save_path", t.savePath, "auto_convert", t.autoConvert)

	path, err := s.config.Locator.Locate(s.config.Downloader)
	if err == nil {
		err = s.startPhase(progress.PhaseDownloading, path, tools.DownloadArgs(t.url, t.mode, t.stem))
	}
	if err != nil {
		s.fail(err)
		return err
	}
	s.update(func(snap *Snapshot) {
		snap.Mode = t.mode
		snap.SavePath = t.savePath
		snap.AutoConvert = t.autoConvert
		snap.State = StateDownloading
		snap.Progress = progress.Sample{Phase: progress.PhaseDownloading}
		snap.Error = ""
		snap.Detail = ""
	})
	return nil
}

func (s *Session) loadPreferences() settings.Preferences {
	prefs, err := s.config.Preferences.Load()
	if err != nil {
		s.log.Warnw("failed to load preferences, using defaults", "error", err)
		return settings.Defaults()
	}
	return prefs
}

func (s *Session) startPhase(phase progress.Phase, path string, args []string) error {
	t := s.task
	p, err := s.config.Runner.Start(path, args)
	if err != nil {
		return err
	}
	t.log.Debugw("process started", "phase", phase, "path", path, "args", args, "pid", p.Pid())
	t.process = generic.Some(p)
	t.output = p.Output()
	t.exited = async.Run(p.Wait)
	t.parser = progress.Parser{Phase: phase}
	if phase == progress.PhaseConverting && t.info != nil {
		t.parser.Estimator.Total = t.info.Duration
	}
	return nil
}

func (s *Session) handleLine(line process.Line) {
	t := s.task
	t.log.Debugw("output", "stream", line.Stream, "text", line.Text)
	if sample, ok := t.parser.Parse(line.Text); ok {
		s.update(func(snap *Snapshot) {
			snap.Progress = sample
		})
	}
}

func (s *Session) handleExit(err error) {
	t := s.task
	t.exited = nil
	t.process = generic.None[process.Process]()
	if err != nil {
		s.fail(err)
		return
	}

	switch t.parser.Phase {
	case progress.PhaseDownloading:
		path, err := findOutput(t.stem)
		if err != nil {
			s.fail(err)
			return
		}
		t.downloaded = path
		t.log.Infow("download finished", "path", path)
		if t.autoConvert {
			s.startConversion()
		} else {
			s.complete(path)
		}
	case progress.PhaseConverting:
		s.finishConversion()
	}
}

func (s *Session) startConversion() {
	t := s.task
	t.convertTarget = t.stem + t.mode.TargetExt()
	t.convertOutput = t.convertTarget
	if filepath.Clean(t.downloaded) == filepath.Clean(t.convertTarget) {
		// The transcoder can't write over its own input
		t.convertOutput = t.stem + ".converted" + t.mode.TargetExt()
	}
	t.log.Infow("starting conversion", "input", t.downloaded, "output", t.convertTarget)

	path, err := s.config.Locator.Locate(s.config.Transcoder)
	if err == nil {
		err = s.startPhase(progress.PhaseConverting, path, tools.TranscodeArgs(t.downloaded, t.convertOutput, t.mode))
	}
	if err != nil {
		s.fail(err)
		return
	}
	s.update(func(snap *Snapshot) {
		snap.SavePath = t.convertTarget
		snap.State = StateConverting
		snap.Progress = progress.Sample{Phase: progress.PhaseConverting}
	})
}

func (s *Session) finishConversion() {
	t := s.task
	if t.convertOutput != t.convertTarget {
		if err := os.Rename(t.convertOutput, t.convertTarget); err != nil {
			s.fail(err)
			return
		}
	} else if err := os.Remove(t.downloaded); err != nil && !errors.Is(err, os.ErrNotExist) {
		t.log.Warnw("failed to remove pre-conversion file", "path", t.downloaded, "error", err)
	}
	s.complete(t.convertTarget)
}

func (s *Session) complete(path string) {
	t := s.task
	t.log.Infow("task completed", "path", path)
	s.update(func(snap *Snapshot) {
		snap.SavePath = path
		snap.State = StateCompleted
		snap.Progress.Percent = 100
	})
	completion := notify.Completion{Path: path}
	if t.info != nil {
		completion.Title = t.info.Title
	}
	// Failures are logged by the notifier, and never affect the task
	_ = s.config.Notifier.Notify(s.ctx, completion, t.prefs)
	s.record(OutcomeCompleted, path, nil)
}

// errorDetail returns the full stderr tail behind err, if a tool produced it, logging it at debug level.
func errorDetail(log *zap.SugaredLogger, err error) string {
	var processErr *process.ProcessError
	if !errors.As(err, &processErr) {
		return ""
	}
	detail := processErr.Output()
	if detail != "" {
		log.Debugf("%s output:\n%s", filepath.Base(processErr.Path), detail)
	}
	return detail
}

func (s *Session) fail(err error) {
	t := s.task
	t.log.Infow("task failed", "error", err)
	detail := errorDetail(t.log, err)
	if t.process.IsSome() {
		_ = t.process.Value.Terminate()
		s.abandon()
	}
	s.update(func(snap *Snapshot) {
		if t.mode != "" {
			snap.Mode = t.mode
			snap.SavePath = t.savePath
		}
		snap.State = StateFailed
		snap.Error = err.Error()
		snap.Detail = detail
	})
	s.record(OutcomeFailed, "", err)
}

// cancel suspends the active process while the Confirmer decides. On confirmation the process is terminated and
// the session returns to idle, otherwise the process resumes and the task carries on exactly where it was.
func (s *Session) cancel() bool {
	t := s.task
	p := t.process.Expect("running task without a process")
	prior := s.snapshot.Get()
	if err := p.Suspend(); err != nil {
		t.log.Warnw("could not suspend process", "error", err)
	}
	s.update(func(snap *Snapshot) {
		snap.State = StateCancelling
	})

	if !s.config.Confirmer.ConfirmCancel(s.ctx, prior) {
		t.log.Info("cancel declined")
		if err := p.Resume(); err != nil {
			t.log.Warnw("could not resume process", "error", err)
		}
		s.update(func(snap *Snapshot) {
			snap.State = prior.State
			snap.Progress = prior.Progress
		})
		return false
	}

	t.log.Info("cancelling task")
	if err := p.Terminate(); err != nil {
		t.log.Warnw("could not terminate process", "error", err)
	}
	s.abandon()
	s.record(OutcomeCancelled, "", nil)
	s.task = nil
	s.update(func(snap *Snapshot) {
		*snap = idleSnapshot
	})
	return true
}

// abandon stops waiting on the current process. Its remaining output is discarded so that it can still exit.
func (s *Session) abandon() {
	t := s.task
	if output := t.output; output != nil {
		go func() {
			for range output {
			}
		}()
	}
	t.output = nil
	t.exited = nil
	t.process = generic.None[process.Process]()
}

func (s *Session) acknowledge() error {
	switch state := s.snapshot.Get().State; {
	case state == StateResolvingMetadata:
		return ErrBusy
	case state.IsRunning():
		return ErrTaskActive
	}
	s.task = nil
	s.update(func(snap *Snapshot) {
		*snap = idleSnapshot
	})
	return nil
}

func (s *Session) shutdown() {
	if t := s.task; t != nil && t.process.IsSome() {
		t.log.Info("terminating process for shutdown")
		_ = t.process.Value.Terminate()
		s.abandon()
		s.record(OutcomeCancelled, "", ErrSessionClosed)
	}
	s.events.Close()
}

func (s *Session) record(outcome Outcome, path string, err error) {
	t := s.task
	entry := HistoryEntry{
		TaskID:     t.id,
		URL:        t.url,
		Mode:       t.mode,
		Path:       path,
		Outcome:    outcome,
		StartedAt:  t.startedAt,
		FinishedAt: time.Now(),
	}
	if t.info != nil {
		entry.Title = t.info.Title
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if err := s.config.History.RecordTask(entry); err != nil {
		t.log.Warnw("failed to record task history", "error", err)
	}
	s.events.Send(TaskFinished{Entry: entry})
}

// update applies f to the snapshot, publishing the change if there was one.
func (s *Session) update(f func(*Snapshot)) {
	old, next := s.snapshot.Update(func(snap Snapshot) Snapshot {
		f(&snap)
		snap.ControlsEnabled = snap.State.ControlsEnabled()
		return snap
	})
	if old == next {
		return
	}
	if changes, err := diff.Diff(old, next); err != nil {
		s.log.Errorf("failed to diff old and new snapshot: %v", err)
	} else {
		for _, change := range changes {
			s.log.Debugf("%v: %#v -> %#v", strings.Join(change.Path, "."), change.From, change.To)
		}
	}
	s.events.Send(TaskUpdated{OldState: old, NewState: next})
}

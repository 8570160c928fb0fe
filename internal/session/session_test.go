package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanbriolat/ezfetch/internal/locate"
	"github.com/alanbriolat/ezfetch/internal/notify"
	"github.com/alanbriolat/ezfetch/internal/process"
	"github.com/alanbriolat/ezfetch/internal/process/processtest"
	"github.com/alanbriolat/ezfetch/internal/progress"
	"github.com/alanbriolat/ezfetch/internal/settings"
	"github.com/alanbriolat/ezfetch/internal/tools"
	"github.com/alanbriolat/ezfetch/util"
)

const testDocument = `{"id": "abc123", "title": "My Clip 🎉!", "thumbnail": "https://i.example.com/abc123.jpg", ` +
	`"ext": "webm", "duration": 10}`

type toolLocator map[string]string

func (l toolLocator) Locate(tool string) (string, error) {
	if path, ok := l[tool]; ok {
		return path, nil
	}
	return "", &locate.NotFoundError{Tool: tool}
}

type recordingNotifier struct {
	mu          sync.Mutex
	completions []notify.Completion
	// State of the session at the moment Notify was called
	states []State
	s      *Session
}

func (n *recordingNotifier) Notify(_ context.Context, c notify.Completion, _ settings.Preferences) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completions = append(n.completions, c)
	n.states = append(n.states, n.s.Snapshot().State)
	return errors.New("notifications are best-effort")
}

func (n *recordingNotifier) get() ([]notify.Completion, []State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Completion(nil), n.completions...), append([]State(nil), n.states...)
}

type recordingHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

func (h *recordingHistory) RecordTask(e HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

func (h *recordingHistory) get() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HistoryEntry(nil), h.entries...)
}

type harness struct {
	t        *testing.T
	dir      string
	runner   *processtest.Runner
	prefs    *settings.MemoryStore
	notifier *recordingNotifier
	history  *recordingHistory
	session  *Session

	mu        sync.Mutex
	resolve   func(url string) processtest.Script
	download  func(stem string) processtest.Script
	transcode func(input, output string) processtest.Script
	confirm   func(current Snapshot) bool
	confirms  []Snapshot
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:        t,
		dir:      t.TempDir(),
		prefs:    settings.NewMemoryStore(settings.Defaults()),
		notifier: &recordingNotifier{},
		history:  &recordingHistory{},
	}
	h.resolve = func(string) processtest.Script {
		return processtest.Script{Lines: processtest.Stdout(testDocument)}
	}
	h.runner = &processtest.Runner{Handler: h.handle}
	s, err := New(context.Background(), Config{
		Runner:      h.runner,
		Locator:     toolLocator{"yt-dlp": "/tools/yt-dlp", "ffmpeg": "/tools/ffmpeg"},
		Confirmer:   ConfirmFunc(h.confirmCancel),
		Notifier:    h.notifier,
		History:     h.history,
		Preferences: h.prefs,
	})
	require.NoError(t, err)
	h.notifier.s = s
	h.session = s
	t.Cleanup(s.Close)
	return h
}

func (h *harness) handle(path string, args []string) processtest.Script {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case path == "/tools/yt-dlp" && len(args) >= 2 && args[len(args)-2] == "--dump-json":
		return h.resolve(args[len(args)-1])
	case path == "/tools/yt-dlp" && h.download != nil:
		for i, arg := range args {
			if arg == "-o" {
				return h.download(strings.TrimSuffix(args[i+1], ".%(ext)s"))
			}
		}
	case path == "/tools/ffmpeg" && h.transcode != nil:
		return h.transcode(args[4], args[len(args)-1])
	}
	return processtest.Script{LaunchErr: processtest.ErrNoScript}
}

func (h *harness) confirmCancel(_ context.Context, current Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.confirms = append(h.confirms, current)
	if h.confirm == nil {
		return true
	}
	return h.confirm(current)
}

func (h *harness) confirmations() []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Snapshot(nil), h.confirms...)
}

func (h *harness) waitFor(cond func(Snapshot) bool) Snapshot {
	h.t.Helper()
	var snap Snapshot
	require.Eventually(h.t, func() bool {
		snap = h.session.Snapshot()
		return cond(snap)
	}, 5*time.Second, 5*time.Millisecond, "last snapshot: %+v", h.session.Snapshot())
	return snap
}

func (h *harness) waitForState(state State) Snapshot {
	h.t.Helper()
	return h.waitFor(func(s Snapshot) bool { return s.State == state })
}

// ready submits a URL and waits for its metadata.
func (h *harness) ready() Snapshot {
	h.t.Helper()
	_, err := h.session.SubmitURL("https://example.com/watch?v=abc123")
	require.NoError(h.t, err)
	return h.waitForState(StateReadyToDownload)
}

func (h *harness) lastProcess() *processtest.Process {
	started := h.runner.Started()
	require.NotEmpty(h.t, started)
	return started[len(started)-1]
}

// writesFile scripts a download that produces "<stem><ext>".
func writesFile(ext string, script processtest.Script) func(stem string) processtest.Script {
	return func(stem string) processtest.Script {
		script.OnStart = func() error {
			return os.WriteFile(stem+ext, []byte("media"), 0644)
		}
		return script
	}
}

var downloadLines = processtest.Stdout(
	"[youtube] abc123: Downloading webpage",
	"[download]  10.0% of 10.00MiB at 1.00MiB/s ETA 00:09",
	"[download]  55.5% of 10.00MiB at 1.00MiB/s ETA 00:04",
	"[download] 100.0% of 10.00MiB in 00:10",
)

func TestSession_DownloadWithoutConversion(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	events, err := h.session.Subscribe(100)
	require.NoError(t, err)
	h.download = writesFile(".webm", processtest.Script{Lines: downloadLines})

	snap := h.ready()
	assert.Equal("My Clip !", snap.Title)
	assert.Equal("https://i.example.com/abc123.jpg", snap.Thumbnail)
	assert.Equal(10*time.Second, snap.Duration)
	assert.True(snap.ControlsEnabled)

	savePath := filepath.Join(h.dir, snap.Title+".mp4")
	require.NoError(t, h.session.StartDownload(tools.ModeVideo, savePath))
	snap = h.waitForState(StateCompleted)
	stem := filepath.Join(h.dir, "My Clip !")
	assert.Equal(stem+".webm", snap.SavePath)
	assert.Equal(100.0, snap.Progress.Percent)
	assert.True(snap.ControlsEnabled)
	assert.False(snap.AutoConvert)

	p := h.lastProcess()
	assert.Equal("/tools/yt-dlp", p.Path)
	assert.Equal(tools.DownloadArgs("https://example.com/watch?v=abc123", tools.ModeVideo, stem), p.Args)

	// Notified exactly once, after entering Completed, despite the notifier failing
	completions, states := h.notifier.get()
	assert.Equal([]notify.Completion{{Path: stem + ".webm", Title: "My Clip !"}}, completions)
	assert.Equal([]State{StateCompleted}, states)
	entries := h.history.get()
	if assert.Len(entries, 1) {
		assert.Equal(OutcomeCompleted, entries[0].Outcome)
		assert.Equal(stem+".webm", entries[0].Path)
	}

	require.NoError(t, h.session.Acknowledge())
	snap = h.waitForState(StateIdle)
	assert.Equal(Snapshot{State: StateIdle, ControlsEnabled: true}, snap)

	// Progress seen by subscribers only ever moved forward within the download
	h.session.Close()
	var percents []float64
	var finished int
	for e := range events.Receive() {
		switch e := e.(type) {
		case TaskUpdated:
			if e.OldState.State == StateDownloading && e.NewState.State == StateDownloading {
				percents = append(percents, e.NewState.Progress.Percent)
			}
		case TaskFinished:
			finished++
		}
	}
	assert.Equal([]float64{10, 55.5, 100}, percents)
	assert.Equal(1, finished)
}

func TestSession_DownloadWithConversion(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	require.NoError(t, h.prefs.Save(settings.Preferences{AutoConvert: true, TranscoderAvailable: true}))
	h.download = writesFile(".webm", processtest.Script{Lines: downloadLines})
	var transcodeInput string
	h.transcode = func(input, output string) processtest.Script {
		transcodeInput = input
		return processtest.Script{
			OnStart: func() error { return os.WriteFile(output, []byte("converted"), 0644) },
			Lines:   processtest.Stderr("Stream mapping:", "size=1kB time=00:00:05.00 bitrate=1.6kbits/s", "size=2kB time=00:00:10.00"),
		}
	}

	snap := h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, snap.Title)))
	snap = h.waitForState(StateCompleted)
	stem := filepath.Join(h.dir, "My Clip !")
	assert.Equal(stem+".mp4", snap.SavePath)
	assert.Equal(progress.PhaseConverting, snap.Progress.Phase)
	assert.True(snap.AutoConvert)

	assert.Equal(stem+".webm", transcodeInput)
	p := h.lastProcess()
	assert.Equal("/tools/ffmpeg", p.Path)
	assert.Equal(tools.TranscodeArgs(stem+".webm", stem+".mp4", tools.ModeVideo), p.Args)
	// The pre-conversion file is gone
	assert.NoFileExists(stem + ".webm")
	assert.FileExists(stem + ".mp4")
	completions, _ := h.notifier.get()
	assert.Len(completions, 1)
}

func TestSession_ConversionInPlace(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	require.NoError(t, h.prefs.Save(settings.Preferences{AutoConvert: true, TranscoderAvailable: true}))
	h.download = writesFile(".mp3", processtest.Script{Lines: downloadLines})
	h.transcode = func(input, output string) processtest.Script {
		return processtest.Script{OnStart: func() error { return os.WriteFile(output, []byte("converted"), 0644) }}
	}

	h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeAudio, filepath.Join(h.dir, "song.mp3")))
	snap := h.waitForState(StateCompleted)
	stem := filepath.Join(h.dir, "song")
	assert.Equal(stem+".mp3", snap.SavePath)
	args := h.lastProcess().Args
	assert.Equal(stem+".converted.mp3", args[len(args)-1])
	data, err := os.ReadFile(stem + ".mp3")
	assert.Nil(err)
	assert.Equal("converted", string(data))
	assert.NoFileExists(stem + ".converted.mp3")
}

func TestSession_AudioConversion(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	require.NoError(t, h.prefs.Save(settings.Preferences{AutoConvert: true, TranscoderAvailable: true}))
	h.download = writesFile(".m4a", processtest.Script{Lines: downloadLines})
	h.transcode = func(input, output string) processtest.Script {
		return processtest.Script{
			OnStart: func() error { return os.WriteFile(output, []byte("converted"), 0644) },
			Lines:   processtest.Stderr("size=1kB time=00:00:05.00 bitrate=1.6kbits/s"),
		}
	}

	h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeAudio, filepath.Join(h.dir, "out.mp3")))
	snap := h.waitForState(StateCompleted)
	stem := filepath.Join(h.dir, "out")
	assert.Equal(stem+".mp3", snap.SavePath)
	assert.Equal(tools.ModeAudio, snap.Mode)

	p := h.lastProcess()
	assert.Equal("/tools/ffmpeg", p.Path)
	assert.Equal(tools.TranscodeArgs(stem+".m4a", stem+".mp3", tools.ModeAudio), p.Args)
	assert.NoFileExists(stem + ".m4a")
	assert.FileExists(stem + ".mp3")
	entries := h.history.get()
	if assert.Len(entries, 1) {
		assert.Equal(stem+".mp3", entries[0].Path)
		assert.Equal(tools.ModeAudio, entries[0].Mode)
	}
}

func TestSession_CancelDuringConversion(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	require.NoError(t, h.prefs.Save(settings.Preferences{AutoConvert: true, TranscoderAvailable: true}))
	h.download = writesFile(".webm", processtest.Script{Lines: downloadLines})
	h.transcode = func(input, output string) processtest.Script {
		return processtest.Script{
			Lines: processtest.Stderr("size=1kB time=00:00:05.00 bitrate=1.6kbits/s"),
			Hold:  true,
		}
	}
	h.confirm = func(Snapshot) bool { return false }

	h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip")))
	before := h.waitFor(func(s Snapshot) bool { return s.State == StateConverting && s.Progress.Percent == 50 })
	assert.Equal(progress.PhaseConverting, before.Progress.Phase)
	ffmpeg := h.lastProcess()
	assert.Equal("/tools/ffmpeg", ffmpeg.Path)

	// Declining leaves the conversion exactly where it was
	cancelled, err := h.session.RequestCancel()
	assert.Nil(err)
	assert.False(cancelled)
	assert.Equal(before, h.session.Snapshot())
	suspends, resumes := ffmpeg.Counts()
	assert.Equal(1, suspends)
	assert.Equal(1, resumes)
	assert.False(ffmpeg.Terminated.IsSet())

	h.confirm = nil
	cancelled, err = h.session.RequestCancel()
	assert.Nil(err)
	assert.True(cancelled)
	assert.Equal(Snapshot{State: StateIdle, ControlsEnabled: true}, h.session.Snapshot())
	assert.True(ffmpeg.Terminated.IsSet())
	select {
	case <-ffmpeg.Done():
	case <-time.After(5 * time.Second):
		assert.Fail("terminated transcoder never exited")
	}

	confirms := h.confirmations()
	if assert.Len(confirms, 2) {
		assert.Equal(StateConverting, confirms[0].State)
		assert.Equal(StateConverting, confirms[1].State)
	}
	completions, _ := h.notifier.get()
	assert.Empty(completions)
	entries := h.history.get()
	if assert.Len(entries, 1) {
		assert.Equal(OutcomeCancelled, entries[0].Outcome)
	}
}

func TestSession_ConversionFailure(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	require.NoError(t, h.prefs.Save(settings.Preferences{AutoConvert: true, TranscoderAvailable: true}))
	h.download = writesFile(".webm", processtest.Script{Lines: downloadLines})
	stderr := []string{"[aac @ 0x1] Too many channels", "Conversion failed!"}
	h.transcode = func(input, output string) processtest.Script {
		return processtest.Script{
			Lines: processtest.Stderr(stderr...),
			Err:   &process.ProcessError{Path: "ffmpeg", ExitCode: 1, Stderr: stderr},
		}
	}

	h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip")))
	snap := h.waitForState(StateFailed)
	assert.Equal("ffmpeg exited with code 1: Conversion failed!", snap.Error)
	assert.Equal("[aac @ 0x1] Too many channels\nConversion failed!", snap.Detail)
	assert.True(snap.ControlsEnabled)
	// The download is kept so that conversion can be retried by hand
	assert.FileExists(filepath.Join(h.dir, "clip.webm"))
	completions, _ := h.notifier.get()
	assert.Empty(completions)
	entries := h.history.get()
	if assert.Len(entries, 1) {
		assert.Equal(OutcomeFailed, entries[0].Outcome)
	}
}

func TestSession_AutoConvertNeedsTranscoder(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	require.NoError(t, h.prefs.Save(settings.Preferences{AutoConvert: true, TranscoderAvailable: false}))
	h.download = writesFile(".webm", processtest.Script{})

	h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip")))
	snap := h.waitForState(StateCompleted)
	assert.False(snap.AutoConvert)
	assert.Equal(filepath.Join(h.dir, "clip.webm"), snap.SavePath)
	assert.Len(h.runner.Started(), 2)
}

func TestSession_CancelConfirmed(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	h.download = writesFile(".webm", processtest.Script{
		Lines: processtest.Stdout("[download]  40.0% of 10.00MiB"),
		Hold:  true,
	})
	var suspendedDuringConfirm bool
	h.confirm = func(Snapshot) bool {
		suspendedDuringConfirm = h.lastProcess().Suspended.IsSet()
		return true
	}

	h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip")))
	h.waitFor(func(s Snapshot) bool { return s.Progress.Percent == 40 })

	cancelled, err := h.session.RequestCancel()
	assert.Nil(err)
	assert.True(cancelled)
	assert.True(suspendedDuringConfirm)

	snap := h.session.Snapshot()
	assert.Equal(StateIdle, snap.State)
	assert.True(snap.ControlsEnabled)
	p := h.lastProcess()
	assert.True(p.Terminated.IsSet())
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		assert.Fail("terminated process never exited")
	}

	confirms := h.confirmations()
	if assert.Len(confirms, 1) {
		assert.Equal(StateDownloading, confirms[0].State)
	}
	completions, _ := h.notifier.get()
	assert.Empty(completions)
	entries := h.history.get()
	if assert.Len(entries, 1) {
		assert.Equal(OutcomeCancelled, entries[0].Outcome)
	}

	// Nothing left to cancel
	_, err = h.session.RequestCancel()
	assert.ErrorIs(err, ErrNoActiveTask)
}

func TestSession_CancelDeclined(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	h.download = writesFile(".webm", processtest.Script{
		Lines: processtest.Stdout("[download]  40.0% of 10.00MiB"),
		Hold:  true,
	})
	h.confirm = func(Snapshot) bool { return false }

	h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip")))
	before := h.waitFor(func(s Snapshot) bool { return s.Progress.Percent == 40 })

	cancelled, err := h.session.RequestCancel()
	assert.Nil(err)
	assert.False(cancelled)
	// Exactly as before
	assert.Equal(before, h.session.Snapshot())
	p := h.lastProcess()
	suspends, resumes := p.Counts()
	assert.Equal(1, suspends)
	assert.Equal(1, resumes)
	assert.False(p.Suspended.IsSet())
	assert.False(p.Terminated.IsSet())

	// And the task carries on to completion
	p.Release()
	snap := h.waitForState(StateCompleted)
	assert.Equal(filepath.Join(h.dir, "clip.webm"), snap.SavePath)
}

func TestSession_NewWorkWhileActive(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	h.download = writesFile(".webm", processtest.Script{Hold: true})
	h.confirm = func(Snapshot) bool { return false }

	h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip")))
	h.waitForState(StateDownloading)

	// Both are routed to the cancel path, which the user declines
	assert.ErrorIs(h.session.StartDownload(tools.ModeAudio, filepath.Join(h.dir, "other")), ErrTaskActive)
	_, err := h.session.SubmitURL("https://example.com/another")
	assert.ErrorIs(err, ErrTaskActive)
	assert.Len(h.confirmations(), 2)
	assert.Equal(StateDownloading, h.session.Snapshot().State)
	assert.Len(h.runner.Started(), 2)

	// Accepting cancels the active task, but still doesn't start the new one
	h.confirm = nil
	_, err = h.session.SubmitURL("https://example.com/another")
	assert.ErrorIs(err, ErrTaskActive)
	assert.Equal(StateIdle, h.session.Snapshot().State)
	assert.Len(h.runner.Started(), 2)
}

func TestSession_RequestClose(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)

	// Nothing running, nothing to ask
	ok, err := h.session.RequestClose()
	assert.Nil(err)
	assert.True(ok)
	assert.Empty(h.confirmations())

	h.download = writesFile(".webm", processtest.Script{Hold: true})
	h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip")))
	h.waitForState(StateDownloading)

	h.confirm = func(Snapshot) bool { return false }
	ok, err = h.session.RequestClose()
	assert.Nil(err)
	assert.False(ok)
	assert.Equal(StateDownloading, h.session.Snapshot().State)

	h.confirm = nil
	ok, err = h.session.RequestClose()
	assert.Nil(err)
	assert.True(ok)
	assert.True(h.lastProcess().Terminated.IsSet())
}

func TestSession_InvalidURL(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)

	_, err := h.session.SubmitURL("ftp://example.com/file")
	var verr *util.ValidationError
	assert.ErrorAs(err, &verr)
	assert.Equal(StateIdle, h.session.Snapshot().State)
	assert.Empty(h.runner.Started())
}

func TestSession_MetadataFailure(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	h.resolve = func(string) processtest.Script {
		return processtest.Script{
			Lines: processtest.Stderr("ERROR: Unsupported URL: https://example.com/watch?v=abc123"),
			Err:   &process.ProcessError{Path: "yt-dlp", ExitCode: 1, Stderr: []string{"ERROR: Unsupported URL"}},
		}
	}

	_, err := h.session.SubmitURL("https://example.com/watch?v=abc123")
	require.NoError(t, err)
	snap := h.waitFor(func(s Snapshot) bool { return s.State == StateIdle && s.Error != "" })
	assert.Contains(snap.Error, "Unsupported URL")
	assert.Equal("ERROR: Unsupported URL", snap.Detail)
	assert.True(snap.ControlsEnabled)

	// Not ready, so nothing to start
	assert.ErrorIs(h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip")), ErrNotReady)
	assert.Nil(h.session.Acknowledge())
	assert.Equal(Snapshot{State: StateIdle, ControlsEnabled: true}, h.session.Snapshot())
}

func TestSession_BusyWhileResolving(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	h.resolve = func(string) processtest.Script {
		return processtest.Script{Lines: processtest.Stdout(testDocument), Hold: true}
	}

	_, err := h.session.SubmitURL("https://example.com/watch?v=abc123")
	require.NoError(t, err)
	snap := h.session.Snapshot()
	assert.Equal(StateResolvingMetadata, snap.State)
	assert.False(snap.ControlsEnabled)

	_, err = h.session.SubmitURL("https://example.com/other")
	assert.ErrorIs(err, ErrBusy)
	assert.ErrorIs(h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip")), ErrBusy)
	assert.ErrorIs(h.session.Acknowledge(), ErrBusy)

	h.lastProcess().Release()
	h.waitForState(StateReadyToDownload)
}

func TestSession_DownloadFailure(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	finished, err := h.session.SubscribeFinished(10)
	require.NoError(t, err)
	h.download = func(string) processtest.Script {
		return processtest.Script{
			Lines: processtest.Stdout("[download]  12.0% of 10.00MiB"),
			Err: &process.ProcessError{Path: "yt-dlp", ExitCode: 1, Stderr: []string{
				"WARNING: unable to extract uploader id",
				"ERROR: HTTP Error 403: Forbidden",
			}},
		}
	}

	h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip")))
	snap := h.waitForState(StateFailed)
	assert.Equal("yt-dlp exited with code 1: ERROR: HTTP Error 403: Forbidden", snap.Error)
	assert.Equal("WARNING: unable to extract uploader id\nERROR: HTTP Error 403: Forbidden", snap.Detail)
	assert.True(snap.ControlsEnabled)
	assert.Equal(12.0, snap.Progress.Percent)
	completions, _ := h.notifier.get()
	assert.Empty(completions)

	require.NoError(t, h.session.Acknowledge())
	assert.Equal(StateIdle, h.session.Snapshot().State)
	entries := h.history.get()
	if assert.Len(entries, 1) {
		assert.Equal(OutcomeFailed, entries[0].Outcome)
		assert.Equal(snap.Error, entries[0].Error)
	}

	// Only the finish of the task is delivered
	select {
	case e := <-finished.Receive():
		if assert.IsType(TaskFinished{}, e) {
			assert.Equal(OutcomeFailed, e.(TaskFinished).Entry.Outcome)
			assert.Equal(snap.TaskID, e.TaskID())
		}
	case <-time.After(5 * time.Second):
		assert.Fail("no TaskFinished event")
	}
	select {
	case e := <-finished.Receive():
		assert.Fail("unexpected event", "%#v", e)
	default:
	}
}

func TestSession_DownloadedFileMissing(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	h.download = func(string) processtest.Script { return processtest.Script{} }

	h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip")))
	snap := h.waitForState(StateFailed)
	assert.Contains(snap.Error, "no downloaded file found")
}

func TestSession_LaunchFailure(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	h.download = func(string) processtest.Script {
		return processtest.Script{LaunchErr: os.ErrPermission}
	}

	h.ready()
	err := h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip"))
	var launchErr *process.LaunchError
	assert.ErrorAs(err, &launchErr)
	snap := h.session.Snapshot()
	assert.Equal(StateFailed, snap.State)
	assert.Equal(tools.ModeVideo, snap.Mode)
	assert.True(snap.ControlsEnabled)
}

func TestSession_StartValidation(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	h.ready()

	assert.ErrorIs(h.session.StartDownload(tools.ModeVideo, "  "), ErrNoSavePath)
	var verr *util.ValidationError
	assert.ErrorAs(h.session.StartDownload(tools.Mode("gif"), filepath.Join(h.dir, "clip")), &verr)
	assert.Equal(StateReadyToDownload, h.session.Snapshot().State)
}

func TestSession_Closed(t *testing.T) {
	assert := assert_.New(t)
	h := newHarness(t)
	h.download = writesFile(".webm", processtest.Script{Hold: true})
	h.ready()
	require.NoError(t, h.session.StartDownload(tools.ModeVideo, filepath.Join(h.dir, "clip")))
	h.waitForState(StateDownloading)

	h.session.Close()
	assert.True(h.lastProcess().Terminated.IsSet())
	_, err := h.session.SubmitURL("https://example.com/")
	assert.ErrorIs(err, ErrSessionClosed)
	entries := h.history.get()
	if assert.Len(entries, 1) {
		assert.Equal(OutcomeCancelled, entries[0].Outcome)
	}
}

func TestState(t *testing.T) {
	assert := assert_.New(t)
	for _, s := range []State{StateIdle, StateReadyToDownload, StateCompleted, StateFailed} {
		assert.True(s.ControlsEnabled(), s)
		assert.False(s.IsRunning(), s)
	}
	for _, s := range []State{StateResolvingMetadata, StateDownloading, StateConverting, StateCancelling} {
		assert.False(s.ControlsEnabled(), s)
	}
	assert.True(StateDownloading.IsRunning())
	assert.True(StateConverting.IsRunning())
	assert.False(StateResolvingMetadata.IsRunning())
}

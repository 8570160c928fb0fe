package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/alanbriolat/ezfetch/internal/session"
	sync_ "github.com/alanbriolat/ezfetch/internal/sync"
)

// tracker follows session events on their own goroutine. It must never call back into the session, which may be
// waiting for the event to be delivered.
type tracker struct {
	out      io.Writer
	latest   *sync_.RWMutexed[session.Snapshot]
	bar      *sync_.Mutexed[*progressbar.ProgressBar]
	resolved *sync_.Event
	finished *sync_.Event
}

func newTracker(out io.Writer) *tracker {
	return &tracker{
		out:      out,
		latest:   sync_.NewRWMutexed(session.Snapshot{}),
		bar:      sync_.NewMutexed[*progressbar.ProgressBar](nil),
		resolved: sync_.NewEvent(),
		finished: sync_.NewEvent(),
	}
}

// reset prepares for the next task; call it before submitting.
func (t *tracker) reset() {
	t.resolved.Clear()
	t.finished.Clear()
}

func (t *tracker) handle(e session.Event) {
	update, ok := e.(session.TaskUpdated)
	if !ok {
		return
	}
	old, next := update.OldState, update.NewState
	t.latest.Set(next)

	if next.Progress != old.Progress && next.State.IsRunning() {
		_ = t.bar.Locked(func(bar *progressbar.ProgressBar) error {
			if bar == nil {
				return nil
			}
			bar.Describe(string(next.Progress.Phase))
			return bar.Set(int(next.Progress.Percent))
		})
	}

	switch {
	case old.State == session.StateResolvingMetadata && next.State != session.StateResolvingMetadata:
		t.resolved.Set()
	case next.State == session.StateCompleted || next.State == session.StateFailed:
		t.finished.Set()
	}
}

func (t *tracker) startProgress(title string) {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription(title),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionFullWidth(),
	)
	if old := t.bar.Swap(bar); old != nil {
		_ = old.Clear()
	}
}

func (t *tracker) stopProgress() {
	if bar := t.bar.Swap(nil); bar != nil {
		_ = bar.Finish()
		_, _ = fmt.Fprintln(t.out)
	}
}

// terminalConfirmer asks on out and reads the answer from in. Anything but yes declines, as does ctx ending
// before an answer arrives. Lines are read on a single goroutine, so an abandoned prompt never swallows input.
func terminalConfirmer(in io.Reader, out io.Writer) session.ConfirmFunc {
	answers := make(chan string)
	var reading sync.Once
	readAnswers := func() {
		go func() {
			defer close(answers)
			scanner := bufio.NewScanner(in)
			for scanner.Scan() {
				answers <- scanner.Text()
			}
		}()
	}
	return func(ctx context.Context, current session.Snapshot) bool {
		what := "task"
		if current.State == session.StateConverting {
			what = "conversion"
		} else if current.State == session.StateDownloading {
			what = "download"
		}
		_, _ = fmt.Fprintf(out, "\nCancel the %s of %q? [y/N] ", what, current.Title)
		reading.Do(readAnswers)
		select {
		case answer, ok := <-answers:
			if !ok {
				return false
			}
			switch strings.ToLower(strings.TrimSpace(answer)) {
			case "y", "yes":
				return true
			default:
				return false
			}
		case <-ctx.Done():
			_, _ = fmt.Fprintln(out)
			return false
		}
	}
}

// logFinished reports a task as it is written to history.
func logFinished(log *zap.SugaredLogger, entry session.HistoryEntry) {
	log = log.With("task", string(entry.TaskID), "elapsed", entry.FinishedAt.Sub(entry.StartedAt).Round(time.Millisecond))
	title := entry.Title
	if title == "" {
		title = entry.URL
	}
	switch entry.Outcome {
	case session.OutcomeCompleted:
		log.Infof("Recorded %q as %s", title, entry.Path)
	case session.OutcomeCancelled:
		log.Infof("Recorded %q as cancelled", title)
	default:
		log.Warnf("Recorded %q as %s: %s", title, entry.Outcome, entry.Error)
	}
}

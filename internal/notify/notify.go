// Package notify tells the user that a task has finished.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/alanbriolat/ezfetch/internal/settings"
)

const (
	Title   = "Download Complete"
	timeout = 10 * time.Second
)

type Completion struct {
	Path  string
	Title string
}

// Message is the notification body for c.
func (c Completion) Message() string {
	return fmt.Sprintf("%s is done!", filepath.Base(c.Path))
}

type Sounder interface {
	Play(ctx context.Context) error
}

type Desktop interface {
	Show(ctx context.Context, title string, message string) error
}

// Notifier plays a sound and/or shows a desktop notification, as the preferences allow. Either may be nil, which
// disables it.
type Notifier struct {
	Sound   Sounder
	Desktop Desktop
}

// Notify is best-effort: every failure is logged, and all of them are returned together, but one failing doesn't
// stop the other.
func (n *Notifier) Notify(ctx context.Context, c Completion, prefs settings.Preferences) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	log := zap.S().Named("notify")

	var result *multierror.Error
	if prefs.PlaySound && n.Sound != nil {
		if err := n.Sound.Play(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("sound: %w", err))
		}
	}
	if prefs.ShowNotification && n.Desktop != nil {
		if err := n.Desktop.Show(ctx, Title, c.Message()); err != nil {
			result = multierror.Append(result, fmt.Errorf("desktop notification: %w", err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		log.Warnw("notification failed", "path", c.Path, "error", err)
		return err
	}
	return nil
}

// Command runs an external program; as a Sounder it runs with fixed arguments.
type Command struct {
	Name string
	Args []string
}

func (c Command) Play(ctx context.Context) error {
	return run(ctx, c.Name, c.Args...)
}

// CommandDesktop shows notifications with an external program, building its arguments from title and message.
type CommandDesktop struct {
	Name string
	Args func(title string, message string) []string
}

func (d CommandDesktop) Show(ctx context.Context, title string, message string) error {
	return run(ctx, d.Name, d.Args(title, message)...)
}

func run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil && len(out) > 0 {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return err
}

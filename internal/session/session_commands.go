package session

import (
	"errors"

	"github.com/alanbriolat/ezfetch/generic"
	"github.com/alanbriolat/ezfetch/internal/lpc"
	"github.com/alanbriolat/ezfetch/internal/tools"
)

type StartOptions struct {
	Mode     tools.Mode
	SavePath string
}

type cancelRequest struct {
	closing bool
}

type (
	submitCommand      = *lpc.Command[string, TaskID]
	startCommand       = *lpc.Command[StartOptions, generic.Void]
	cancelCommand      = *lpc.Command[cancelRequest, bool]
	acknowledgeCommand = *lpc.Command[generic.Void, generic.Void]
)

func call[Arg any, Response any](s *Session, c *lpc.Command[Arg, Response]) (Response, error) {
	response, err := lpc.Call(s.ctx, s.commands, c)
	if err != nil && s.ctx.Err() != nil && errors.Is(err, s.ctx.Err()) {
		return response, ErrSessionClosed
	}
	return response, err
}

// SubmitURL starts resolving metadata for url as a new task, replacing any task that is ready, completed or failed.
// If a download or conversion is in progress, the user is asked to cancel it instead and ErrTaskActive is returned.
func (s *Session) SubmitURL(url string) (TaskID, error) {
	return call(s, submitCommand(nil).New(url))
}

// StartDownload downloads the resolved task to savePath. The extension of savePath is only a hint, the downloader
// picks the real one. Like SubmitURL, calling this while a task is active asks to cancel it.
func (s *Session) StartDownload(mode tools.Mode, savePath string) error {
	_, err := call(s, startCommand(nil).New(StartOptions{Mode: mode, SavePath: savePath}))
	return err
}

// RequestCancel asks the Confirmer whether to cancel the active task, returning true if it was cancelled.
func (s *Session) RequestCancel() (bool, error) {
	return call(s, cancelCommand(nil).New(cancelRequest{}))
}

// RequestClose is RequestCancel for when the application wants to exit: it returns true if exiting may proceed,
// which is always the case when no task is active.
func (s *Session) RequestClose() (bool, error) {
	return call(s, cancelCommand(nil).New(cancelRequest{closing: true}))
}

// Acknowledge dismisses a finished (or ready but unwanted) task, returning to idle.
func (s *Session) Acknowledge() error {
	_, err := call(s, acknowledgeCommand(nil).New(generic.NewVoid()))
	return err
}

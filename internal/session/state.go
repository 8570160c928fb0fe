package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/alanbriolat/ezfetch/generic"
	"github.com/alanbriolat/ezfetch/internal/progress"
	"github.com/alanbriolat/ezfetch/internal/tools"
)

type TaskID string

func NewTaskID() TaskID {
	return TaskID(generic.Unwrap(uuid.NewRandom()).String())
}

type State string

const (
	StateIdle              State = "idle"
	StateResolvingMetadata State = "resolving_metadata"
	StateReadyToDownload   State = "ready_to_download"
	StateDownloading       State = "downloading"
	StateConverting        State = "converting"
	StateCompleted         State = "completed"
	StateCancelling        State = "cancelling"
	StateFailed            State = "failed"
)

var runningStates = generic.NewSet(
	StateDownloading,
	StateConverting,
	StateCancelling,
)

// IsRunning returns true if the state has a live child process.
func (s State) IsRunning() bool {
	return runningStates.Contains(s)
}

var controlStates = generic.NewSet(
	StateIdle,
	StateReadyToDownload,
	StateCompleted,
	StateFailed,
)

// ControlsEnabled returns true if the user may submit a new URL in this state.
func (s State) ControlsEnabled() bool {
	return controlStates.Contains(s)
}

// Snapshot is the observable state of the current task.
type Snapshot struct {
	TaskID    TaskID
	URL       string
	Title     string
	Thumbnail string
	Duration  time.Duration

	Mode        tools.Mode
	SavePath    string
	AutoConvert bool

	State    State
	Progress progress.Sample
	Error    string
	// Detail is the full diagnostic output of a failed tool, where Error only carries its most relevant line.
	Detail string

	ControlsEnabled bool
}

var idleSnapshot = Snapshot{State: StateIdle, ControlsEnabled: true}

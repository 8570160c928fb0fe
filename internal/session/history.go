package session

import (
	"time"

	"github.com/alanbriolat/ezfetch/internal/tools"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

type HistoryEntry struct {
	TaskID     TaskID
	URL        string
	Title      string
	Mode       tools.Mode
	Path       string
	Outcome    Outcome
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

type History interface {
	RecordTask(HistoryEntry) error
}

type NilHistory struct{}

func (NilHistory) RecordTask(HistoryEntry) error {
	return nil
}

package session

type Event interface {
	// The task this event relates to (empty if there was no task).
	TaskID() TaskID
}

// TaskUpdated is sent for every change to the Snapshot.
type TaskUpdated struct {
	OldState Snapshot
	NewState Snapshot
}

func (e TaskUpdated) TaskID() TaskID {
	if e.NewState.TaskID != "" {
		return e.NewState.TaskID
	}
	return e.OldState.TaskID
}

// TaskFinished is sent once a task has completed, failed or been cancelled.
type TaskFinished struct {
	Entry HistoryEntry
}

func (e TaskFinished) TaskID() TaskID {
	return e.Entry.TaskID
}

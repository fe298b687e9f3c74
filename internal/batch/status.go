package batch

// TaskStatus represents the lifecycle of a single fetch job.
type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskDownloading TaskStatus = "downloading"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
	// TaskSkipped is terminal but never assigned by the worker.
	TaskSkipped TaskStatus = "skipped"
)

var taskStatuses = map[TaskStatus]struct{}{
	TaskPending:     {},
	TaskDownloading: {},
	TaskCompleted:   {},
	TaskFailed:      {},
	TaskSkipped:     {},
}

// IsTerminal reports whether no further transition may occur.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskSkipped:
		return true
	default:
		return false
	}
}

// CanMoveTo reports whether a task in status s may move to next. Tasks go
// pending -> downloading -> completed|failed.
func (s TaskStatus) CanMoveTo(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskDownloading
	case TaskDownloading:
		return next == TaskCompleted || next == TaskFailed
	default:
		return false
	}
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	_, ok := taskStatuses[s]
	return ok
}

// Status represents the aggregate lifecycle of a batch.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// AllStatuses returns every batch status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// IsTerminal reports whether the batch can no longer change status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known batch status.
func (s Status) Valid() bool {
	for _, candidate := range allStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

package batch

import "time"

// TaskUpdate carries optional task field updates applied alongside a status
// change. Nil fields are left untouched.
type TaskUpdate struct {
	Title        *string
	Artist       *string
	Filename     *string
	Filepath     *string
	Duration     *int
	ErrorMessage *string
	Progress     *float64
}

// Completed builds the update recorded for a successful fetch.
func Completed(title, artist, filename, filepath string, duration int) TaskUpdate {
	return TaskUpdate{
		Title:    &title,
		Artist:   &artist,
		Filename: &filename,
		Filepath: &filepath,
		Duration: &duration,
	}
}

// Failed builds the update recorded for a failed fetch.
func Failed(message string) TaskUpdate {
	return TaskUpdate{ErrorMessage: &message}
}

func (u TaskUpdate) apply(task *Task) {
	if u.Title != nil {
		task.Title = *u.Title
	}
	if u.Artist != nil {
		task.Artist = *u.Artist
	}
	if u.Filename != nil {
		task.Filename = *u.Filename
	}
	if u.Filepath != nil {
		task.Filepath = *u.Filepath
	}
	if u.Duration != nil {
		task.Duration = *u.Duration
	}
	if u.ErrorMessage != nil {
		task.ErrorMessage = *u.ErrorMessage
	}
	if u.Progress != nil {
		task.Progress = clampProgress(*u.Progress)
	}
}

// UpdateTaskStatus is the single transition routine for task and batch state.
// It applies the field updates, moves the task to status, bumps the matching
// counter once, and re-evaluates the batch status.
func (b *Batch) UpdateTaskStatus(taskID string, status TaskStatus, update TaskUpdate) error {
	if !status.Valid() {
		return IllegalTransitionError(b.ID, "unknown task status %q", status)
	}
	task := b.Task(taskID)
	if task == nil {
		return &Error{Kind: KindNotFound, BatchID: b.ID, Message: "task " + taskID + " not found"}
	}
	if task.Status.IsTerminal() {
		return IllegalTransitionError(b.ID, "task %s already %s", taskID, task.Status)
	}
	if !task.Status.CanMoveTo(status) {
		return IllegalTransitionError(b.ID, "task %s cannot move from %s to %s", taskID, task.Status, status)
	}

	update.apply(task)
	task.Status = status

	ts := now()
	if status.IsTerminal() {
		task.CompletedAt = &ts
		task.Progress = 100
		switch status {
		case TaskCompleted:
			b.CompletedTasks++
		case TaskFailed:
			b.FailedTasks++
		}
	}

	b.evaluate(ts)
	return nil
}

// evaluate re-derives the batch status from its counters and task states.
// A cancelled batch is never resolved by the counter rule.
func (b *Batch) evaluate(ts time.Time) {
	if b.Status.IsTerminal() {
		return
	}
	if b.TotalTasks > 0 && b.CompletedTasks+b.FailedTasks >= b.TotalTasks {
		b.resolve(ts)
		return
	}
	if b.Status == StatusPending {
		for _, task := range b.Tasks {
			if task.Status == TaskDownloading {
				b.Status = StatusDownloading
				if b.StartedAt == nil {
					b.StartedAt = &ts
				}
				return
			}
		}
	}
}

func (b *Batch) resolve(ts time.Time) {
	switch {
	case b.FailedTasks == 0:
		b.Status = StatusCompleted
	case b.CompletedTasks == 0:
		b.Status = StatusFailed
	default:
		b.Status = StatusCompleted
	}
	if b.StartedAt == nil {
		b.StartedAt = &ts
	}
	if b.CompletedAt == nil {
		b.CompletedAt = &ts
	}
}

// MarkStarted moves a pending batch to downloading and stamps started_at once.
func (b *Batch) MarkStarted() error {
	if b.Status != StatusPending {
		return IllegalTransitionError(b.ID, "cannot start batch in status %s", b.Status)
	}
	ts := now()
	b.Status = StatusDownloading
	if b.StartedAt == nil {
		b.StartedAt = &ts
	}
	return nil
}

// Cancel marks a pending or downloading batch cancelled.
func (b *Batch) Cancel() error {
	if b.Status != StatusPending && b.Status != StatusDownloading {
		return IllegalTransitionError(b.ID, "cannot cancel batch in status %s", b.Status)
	}
	ts := now()
	b.Status = StatusCancelled
	b.CompletedAt = &ts
	return nil
}

// Resolve finalizes a downloading batch after its worker loop exits. Batches
// in any other status are left unchanged and Resolve reports false.
func (b *Batch) Resolve() bool {
	if b.Status != StatusDownloading {
		return false
	}
	b.resolve(now())
	return true
}

// Fail force-resolves a non-terminal batch as failed. Tasks already in flight
// are failed with reason; pending tasks stay pending.
func (b *Batch) Fail(reason string) error {
	if b.Status.IsTerminal() {
		return IllegalTransitionError(b.ID, "cannot fail batch in status %s", b.Status)
	}
	for _, task := range b.Tasks {
		if task.Status == TaskDownloading {
			if err := b.UpdateTaskStatus(task.ID, TaskFailed, Failed(reason)); err != nil {
				return err
			}
		}
	}
	if b.Status.IsTerminal() {
		return nil
	}
	ts := now()
	b.Status = StatusFailed
	if b.CompletedAt == nil {
		b.CompletedAt = &ts
	}
	return nil
}

func clampProgress(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"mixtape/internal/batch"
	"mixtape/internal/fetch"
	"mixtape/internal/logging"
	"mixtape/internal/tags"
)

var errManagerStopped = errors.New("workflow manager stopped")

// spawn attaches exactly one worker goroutine to h.
func (m *Manager) spawn(h *handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return errManagerStopped
	}
	ctx, cancel := context.WithCancel(m.runCtx)
	if !h.claim(cancel) {
		cancel()
		return nil
	}
	m.wg.Add(1)
	go m.runBatch(ctx, h)
	return nil
}

// stepResult tells the worker loop what to do after one task.
type stepResult int

const (
	stepNext stepResult = iota
	stepStop
	stepAbort
)

func (m *Manager) runBatch(ctx context.Context, h *handle) {
	defer m.wg.Done()
	defer h.release()

	snap := h.snapshot()
	ctx = logging.WithBatchID(ctx, snap.ID)
	logger := m.batchLogger(ctx, snap.ID)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "batch worker panicked", "worker_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this failure"),
				logging.String(logging.FieldImpact, "the batch is marked failed"),
			)
			m.settleAfterPanic(context.WithoutCancel(ctx), h, r)
		}
	}()

	started := time.Now()
	total := len(snap.Tasks)
tasks:
	for index := 0; index < total; index++ {
		switch m.runTask(ctx, h, index, logger) {
		case stepStop:
			break tasks
		case stepAbort:
			return
		}
	}

	if ctx.Err() != nil || h.isDeleted() {
		return
	}
	m.finish(ctx, h, logger, started)
}

// runTask processes the task at index. Cancelled or deleted batches stop the
// loop. A cancelled context aborts without recording the outcome.
func (m *Manager) runTask(ctx context.Context, h *handle, index int, logger *slog.Logger) stepResult {
	if ctx.Err() != nil {
		return stepAbort
	}

	var task batch.Task
	skip := false
	snap, rev, err := h.mutate(func(b *batch.Batch) error {
		if b.Status == batch.StatusCancelled {
			return errCancelled
		}
		if index >= len(b.Tasks) {
			skip = true
			return errSkip
		}
		current := b.Tasks[index]
		if current.Status.IsTerminal() {
			skip = true
			return errSkip
		}
		if err := b.UpdateTaskStatus(current.ID, batch.TaskDownloading, batch.TaskUpdate{}); err != nil {
			return err
		}
		task = *current
		return nil
	})
	switch {
	case skip:
		return stepNext
	case errors.Is(err, errCancelled):
		logger.Info("batch cancelled; worker stopping",
			logging.String(logging.FieldEventType, "worker_stopped"),
			logging.Int("next_task", index+1),
		)
		return stepStop
	case errors.Is(err, errDeleted):
		return stepAbort
	case err != nil:
		logging.ErrorWithContext(logger, "task transition rejected", "task_transition_failed",
			logging.Error(err),
			logging.Int("task_index", index),
		)
		return stepNext
	}
	m.persist(ctx, h, snap, rev)
	m.publish(snap)

	taskCtx := logging.WithTaskID(ctx, task.ID)
	taskLogger := logger.With(
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldTaskLabel, fmt.Sprintf("%d/%d", index+1, snap.TotalTasks)),
	)
	taskLogger.Info("downloading", logging.String("url", task.URL))

	began := time.Now()
	result, fetchErr := m.download(taskCtx, taskLogger, snap.Options, task.URL)
	if ctx.Err() != nil {
		taskLogger.Debug("worker interrupted during fetch; outcome not recorded")
		return stepAbort
	}

	var update batch.TaskUpdate
	status := batch.TaskCompleted
	if fetchErr != nil {
		status = batch.TaskFailed
		update = batch.Failed(failureMessage(fetchErr))
		logging.WarnWithContext(taskLogger, "download failed", "task_failed",
			logging.Error(fetchErr),
			logging.String(logging.FieldErrorHint, "check the link and the yt-dlp output"),
			logging.String(logging.FieldImpact, "the batch continues with the next task"),
		)
	} else {
		update = batch.Completed(result.Title, result.Artist, result.Filename, result.Filepath, result.Duration)
		taskLogger.Info("downloaded",
			logging.String(logging.FieldEventType, "task_completed"),
			logging.String("title", result.Title),
			logging.String("file", result.Filename),
			logging.Duration("elapsed", time.Since(began)),
		)
	}

	snap, rev, err = h.mutate(func(b *batch.Batch) error {
		return b.UpdateTaskStatus(task.ID, status, update)
	})
	if errors.Is(err, errDeleted) {
		return stepAbort
	}
	if err != nil {
		logging.ErrorWithContext(taskLogger, "task outcome rejected", "task_transition_failed", logging.Error(err))
		return stepNext
	}
	m.persist(ctx, h, snap, rev)
	m.publish(snap)
	return stepNext
}

var (
	errCancelled = errors.New("batch cancelled")
	errSkip      = errors.New("task already settled")
)

// download fetches url and, when auto tagging is on, tags the result. A panic
// in either step becomes that task's failure.
func (m *Manager) download(ctx context.Context, logger *slog.Logger, opts batch.Options, url string) (result fetch.Result, err error) {
	stage := "fetch"
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, stage+" panicked", "task_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%s panicked: %v", stage, r)
		}
	}()
	result, err = m.fetcher.Fetch(ctx, url)
	if err != nil || !opts.AutoTag || ctx.Err() != nil {
		return result, err
	}
	stage = "tagging"
	m.applyTags(ctx, logger, opts, result)
	return result, nil
}

// settleAfterPanic fails a batch whose worker died outside a task so it does
// not stay downloading with no worker attached.
func (m *Manager) settleAfterPanic(ctx context.Context, h *handle, cause any) {
	snap, rev, err := h.mutate(func(b *batch.Batch) error {
		return b.Fail(fmt.Sprintf("worker panicked: %v", cause))
	})
	if err != nil {
		return
	}
	m.persist(ctx, h, snap, rev)
	m.publish(snap)
}

func (m *Manager) applyTags(ctx context.Context, logger *slog.Logger, opts batch.Options, result fetch.Result) {
	meta := tags.Defaults(m.cfg.Tags, tags.Metadata{
		Genre:       opts.DefaultTags.Genre,
		Publisher:   opts.DefaultTags.Publisher,
		Album:       opts.DefaultTags.Album,
		AlbumArtist: opts.DefaultTags.AlbumArtist,
		Date:        opts.DefaultTags.Date,
	})
	meta.Title = result.Title
	meta.Artist = result.Artist
	if err := m.tagger.Apply(ctx, result.Filepath, meta); err != nil {
		if errors.Is(err, tags.ErrUnsupportedFormat) {
			logger.Debug("tagging skipped", logging.String("file", result.Filename))
			return
		}
		logging.WarnWithContext(logger, "tag write failed", "tag_write_failed",
			logging.Error(err),
			logging.String("file", result.Filename),
			logging.String(logging.FieldErrorHint, "edit the tags manually"),
			logging.String(logging.FieldImpact, "the file is kept without tags"),
		)
	}
}

// finish resolves a batch whose worker ran out of tasks and notifies when at
// least one task completed.
func (m *Manager) finish(ctx context.Context, h *handle, logger *slog.Logger, started time.Time) {
	snap, rev, err := h.mutate(func(b *batch.Batch) error {
		b.Resolve()
		return nil
	})
	if err != nil {
		return
	}
	m.persist(ctx, h, snap, rev)
	m.publish(snap)

	if snap.Status != batch.StatusCompleted && snap.Status != batch.StatusFailed {
		return
	}
	logger.Info("batch finished",
		logging.String(logging.FieldEventType, "batch_finished"),
		logging.String("status", string(snap.Status)),
		logging.Int("completed", snap.CompletedTasks),
		logging.Int("failed", snap.FailedTasks),
		logging.Duration("elapsed", time.Since(started)),
	)
	if snap.CompletedTasks > 0 {
		m.notifyFinished(ctx, snap)
	}
}

func failureMessage(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "download failed"
	}
	return msg
}

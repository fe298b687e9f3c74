package workflow

import (
	"context"

	"mixtape/internal/batch"
	"mixtape/internal/fetch"
	"mixtape/internal/notifications"
	"mixtape/internal/tags"
)

// Fetcher downloads one item. Implementations must be safe for concurrent use
// because every running batch calls it from its own goroutine.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Result, error)
}

// Tagger writes metadata into a fetched file.
type Tagger interface {
	Apply(ctx context.Context, path string, meta tags.Metadata) error
}

// Notifier is told about finished batches. Errors are logged and ignored.
type Notifier interface {
	BatchFinished(ctx context.Context, summary notifications.Summary) error
}

// Statistics aggregates every known batch.
type Statistics struct {
	TotalBatches     int     `json:"total_batches"`
	CompletedBatches int     `json:"completed_batches"`
	FailedBatches    int     `json:"failed_batches"`
	RunningBatches   int     `json:"running_batches"`
	CancelledBatches int     `json:"cancelled_batches"`
	PendingBatches   int     `json:"pending_batches"`
	TotalTasks       int     `json:"total_tasks"`
	CompletedTasks   int     `json:"completed_tasks"`
	FailedTasks      int     `json:"failed_tasks"`
	SuccessRate      float64 `json:"success_rate"`
}

// Progress is the polling view of one batch.
type Progress struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Status   batch.Status  `json:"status"`
	Progress float64       `json:"progress"`
	Summary  batch.Summary `json:"summary"`
	Tasks    []*batch.Task `json:"tasks"`
}

// RecoveryReport counts what startup recovery did.
type RecoveryReport struct {
	Mode      string `json:"mode"`
	Pending   int    `json:"pending"`
	Resumed   int    `json:"resumed"`
	Failed    int    `json:"failed"`
	Settled   int    `json:"settled"`
	Untouched int    `json:"untouched"`
}

func progressOf(b *batch.Batch) Progress {
	return Progress{
		ID:       b.ID,
		Name:     b.Name,
		Status:   b.Status,
		Progress: b.Progress(),
		Summary:  b.Summary(),
		Tasks:    b.Tasks,
	}
}

func computeStatistics(batches []*batch.Batch) Statistics {
	var stats Statistics
	for _, b := range batches {
		stats.TotalBatches++
		switch b.Status {
		case batch.StatusCompleted:
			stats.CompletedBatches++
		case batch.StatusFailed:
			stats.FailedBatches++
		case batch.StatusDownloading:
			stats.RunningBatches++
		case batch.StatusCancelled:
			stats.CancelledBatches++
		case batch.StatusPending:
			stats.PendingBatches++
		}
		stats.TotalTasks += b.TotalTasks
		stats.CompletedTasks += b.CompletedTasks
		stats.FailedTasks += b.FailedTasks
	}
	if stats.TotalTasks > 0 {
		stats.SuccessRate = float64(stats.CompletedTasks) / float64(stats.TotalTasks) * 100
	}
	return stats
}

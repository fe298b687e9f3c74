package workflow

import (
	"context"
	"errors"

	"mixtape/internal/batch"
	"mixtape/internal/logging"
	"mixtape/internal/notifications"
)

func (m *Manager) notifyFinished(ctx context.Context, b *batch.Batch) {
	if m.notifier == nil {
		return
	}
	summary := notifications.Summary{
		BatchID:   b.ID,
		Name:      b.Name,
		Status:    string(b.Status),
		Total:     b.TotalTasks,
		Completed: b.CompletedTasks,
		Failed:    b.FailedTasks,
	}
	if b.StartedAt != nil && b.CompletedAt != nil {
		summary.Elapsed = b.CompletedAt.Sub(*b.StartedAt)
	}
	if err := m.notifier.BatchFinished(ctx, summary); err != nil {
		logger := m.batchLogger(ctx, b.ID)
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send batch notification")
			return
		}
		logging.WarnWithContext(logger, "batch notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check navidrome and ntfy settings"),
			logging.String(logging.FieldImpact, "library scan or push message was not delivered"),
		)
	}
}

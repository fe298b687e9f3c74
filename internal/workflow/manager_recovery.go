package workflow

import (
	"context"
	"fmt"

	"mixtape/internal/batch"
	"mixtape/internal/config"
	"mixtape/internal/logging"
)

// interruptedMessage is recorded on tasks that were downloading when the
// previous process exited.
const interruptedMessage = "interrupted by restart"

// Recover registers every stored batch that is not terminal and settles
// batches left downloading by a previous process according to the configured
// recovery mode. It is called once at daemon startup before the API opens.
func (m *Manager) Recover(ctx context.Context) (RecoveryReport, error) {
	mode := m.cfg.Recovery.Mode
	if mode == "" {
		mode = config.RecoveryResume
	}
	report := RecoveryReport{Mode: mode}

	records, err := m.store.List(ctx)
	if err != nil && len(records) == 0 {
		return report, fmt.Errorf("list batches for recovery: %w", err)
	}

	for _, rec := range records {
		b := rec.Batch
		if b == nil || b.Status.IsTerminal() {
			continue
		}
		h := m.register(newHandle(b))
		if b.Status == batch.StatusPending {
			report.Pending++
			continue
		}

		logger := m.batchLogger(ctx, b.ID)
		switch mode {
		case config.RecoveryIgnore:
			report.Untouched++
			logging.WarnWithContext(logger, "interrupted batch left as is", "batch_recovery_ignored",
				logging.String(logging.FieldErrorHint, "cancel or delete the batch from the CLI"),
				logging.String(logging.FieldImpact, "the batch stays downloading with no worker"),
			)
		case config.RecoveryFail:
			snap, rev, err := h.mutate(func(b *batch.Batch) error { return b.Fail(interruptedMessage) })
			if err != nil {
				logging.ErrorWithContext(logger, "failed to settle interrupted batch", "batch_recovery_failed", logging.Error(err))
				continue
			}
			m.persist(ctx, h, snap, rev)
			report.Failed++
			logger.Info("interrupted batch marked failed",
				logging.String(logging.FieldEventType, "batch_recovered"),
				logging.String("status", string(snap.Status)),
			)
		default:
			snap, rev, err := h.mutate(failInFlight)
			if err != nil {
				logging.ErrorWithContext(logger, "failed to settle interrupted task", "batch_recovery_failed", logging.Error(err))
				continue
			}
			m.persist(ctx, h, snap, rev)
			if snap.Status.IsTerminal() {
				// The interrupted task was the last one left.
				report.Settled++
				m.publish(snap)
				logger.Info("interrupted batch settled",
					logging.String(logging.FieldEventType, "batch_finished"),
					logging.String("status", string(snap.Status)),
					logging.Int("completed", snap.CompletedTasks),
					logging.Int("failed", snap.FailedTasks),
				)
				if snap.CompletedTasks > 0 {
					m.notifyFinished(ctx, snap)
				}
				continue
			}
			if snap.Status != batch.StatusDownloading {
				continue
			}
			if err := m.spawn(h); err != nil {
				return report, err
			}
			report.Resumed++
			logger.Info("interrupted batch resumed",
				logging.String(logging.FieldEventType, "batch_recovered"),
				logging.Int("remaining", snap.Summary().Pending),
			)
		}
	}

	if err != nil {
		logging.WarnWithContext(m.logger, "some batch records could not be read during recovery", "batch_recovery_partial",
			logging.Error(err),
			logging.String(logging.FieldImpact, "unreadable batches were not recovered"),
		)
	}
	return report, nil
}

// failInFlight fails every task that was downloading when the process died.
// The attempt counts as used.
func failInFlight(b *batch.Batch) error {
	for _, task := range b.Tasks {
		if task.Status != batch.TaskDownloading {
			continue
		}
		if err := b.UpdateTaskStatus(task.ID, batch.TaskFailed, batch.Failed(interruptedMessage)); err != nil {
			return err
		}
	}
	return nil
}

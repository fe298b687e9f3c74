package workflow

import (
	"context"
	"log/slog"

	"mixtape/internal/logging"
)

// batchLogger returns the manager logger tagged with id and any request
// fields carried by ctx.
func (m *Manager) batchLogger(ctx context.Context, id string) *slog.Logger {
	return logging.WithContext(logging.WithBatchID(ctx, id), m.logger)
}

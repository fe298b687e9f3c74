package api

import (
	"context"
	"log/slog"
	"strings"

	"mixtape/internal/batch"
	"mixtape/internal/links"
	"mixtape/internal/logging"
	"mixtape/internal/workflow"
)

// BatchManager is the orchestrator surface the service wraps.
type BatchManager interface {
	Create(ctx context.Context, req batch.Request) (*batch.Batch, error)
	Start(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*batch.Batch, error)
	List(ctx context.Context) ([]*batch.Batch, error)
	Statistics(ctx context.Context) (workflow.Statistics, error)
	Progress(ctx context.Context, id string) (workflow.Progress, error)
	CleanupOlderThan(ctx context.Context, days int) (int, error)
}

// BatchService translates orchestrator calls into envelopes.
type BatchService struct {
	manager BatchManager
	logger  *slog.Logger
}

// NewBatchService constructs a BatchService around manager.
func NewBatchService(manager BatchManager, logger *slog.Logger) *BatchService {
	return &BatchService{manager: manager, logger: logging.NewComponentLogger(logger, "api")}
}

// Create validates and stores a new batch. It does not start it.
func (s *BatchService) Create(ctx context.Context, req CreateRequest) Envelope {
	r := req.Request
	if text := strings.TrimSpace(req.Text); text != "" {
		r.URLs = append(append([]string(nil), r.URLs...), links.ParseList(text)...)
	}
	b, err := s.manager.Create(ctx, r)
	if err != nil {
		return s.failure(ctx, "create", err)
	}
	return ok("Batch created", b)
}

// Start launches the worker of a pending batch and returns its snapshot.
func (s *BatchService) Start(ctx context.Context, id string) Envelope {
	if err := s.manager.Start(ctx, id); err != nil {
		return s.failure(ctx, "start", err)
	}
	b, err := s.manager.Get(ctx, id)
	if err != nil {
		return s.failure(ctx, "start", err)
	}
	return ok("Batch started", b)
}

// Cancel stops a pending or downloading batch at the next task boundary.
func (s *BatchService) Cancel(ctx context.Context, id string) Envelope {
	if err := s.manager.Cancel(ctx, id); err != nil {
		return s.failure(ctx, "cancel", err)
	}
	return ok("Batch cancelled", map[string]string{"id": id})
}

// Delete removes a batch whatever its status.
func (s *BatchService) Delete(ctx context.Context, id string) Envelope {
	if err := s.manager.Delete(ctx, id); err != nil {
		return s.failure(ctx, "delete", err)
	}
	return ok("Batch deleted", map[string]string{"id": id})
}

// Get returns one batch.
func (s *BatchService) Get(ctx context.Context, id string) Envelope {
	b, err := s.manager.Get(ctx, id)
	if err != nil {
		return s.failure(ctx, "get", err)
	}
	return ok("", b)
}

// List returns every batch, newest first. A non-empty status filters the
// result.
func (s *BatchService) List(ctx context.Context, status string) Envelope {
	filter := batch.Status(strings.ToLower(strings.TrimSpace(status)))
	if filter != "" && !filter.Valid() {
		return s.failure(ctx, "list", batch.ValidationError("unknown status %q", status))
	}
	batches, err := s.manager.List(ctx)
	if err != nil {
		return s.failure(ctx, "list", err)
	}
	if filter != "" {
		kept := batches[:0]
		for _, b := range batches {
			if b.Status == filter {
				kept = append(kept, b)
			}
		}
		batches = kept
	}
	return ok("", BatchList{Batches: batches, Count: len(batches)})
}

// Statistics returns aggregate counters.
func (s *BatchService) Statistics(ctx context.Context) Envelope {
	stats, err := s.manager.Statistics(ctx)
	if err != nil {
		return s.failure(ctx, "statistics", err)
	}
	return ok("", stats)
}

// Progress returns the polling view of one batch.
func (s *BatchService) Progress(ctx context.Context, id string) Envelope {
	progress, err := s.manager.Progress(ctx, id)
	if err != nil {
		return s.failure(ctx, "progress", err)
	}
	return ok("", progress)
}

// ValidateURLs reports which lines of a pasted list contain usable links.
func (s *BatchService) ValidateURLs(text string) Envelope {
	report := links.Validate(text)
	if report.TotalValid == 0 {
		return Envelope{
			Success: false,
			Error:   batch.KindValidation,
			Message: "no valid Bilibili URL found",
			Data:    report,
		}
	}
	return ok("", report)
}

// Cleanup removes batches older than days. days <= 0 uses the configured
// retention.
func (s *BatchService) Cleanup(ctx context.Context, days int) Envelope {
	removed, err := s.manager.CleanupOlderThan(ctx, days)
	if err != nil {
		return s.failure(ctx, "cleanup", err)
	}
	return ok("Cleanup finished", CleanupResult{Days: days, Removed: removed})
}

func ok(message string, data any) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

func (s *BatchService) failure(ctx context.Context, op string, err error) Envelope {
	kind := batch.KindOf(err)
	if kind == batch.KindInternal {
		logging.ErrorWithContext(logging.WithContext(ctx, s.logger), "batch operation failed", "api_operation_failed",
			logging.String("operation", op),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check daemon logs and the batch store"),
		)
	}
	return Envelope{Success: false, Error: kind, Message: err.Error()}
}

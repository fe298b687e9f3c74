package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"mixtape/internal/config"
)

const userAgent = "Mixtape-Go/0.1.0"

const defaultRequestTimeout = 10 * time.Second

// Summary describes a finished batch.
type Summary struct {
	BatchID   string
	Name      string
	Status    string
	Total     int
	Completed int
	Failed    int
	Elapsed   time.Duration
}

// Service defines the notification surface exposed to the workflow manager.
type Service interface {
	// BatchFinished is called once per batch that finished with at least one
	// completed task.
	BatchFinished(ctx context.Context, summary Summary) error
	TestNotification(ctx context.Context) error
}

// NewService builds the configured notifiers. Navidrome scans run when a
// server URL is set; ntfy pushes run when a topic is set. With neither, a
// noop implementation is returned.
func NewService(cfg *config.Config) Service {
	var services []Service
	if url := strings.TrimSpace(cfg.Navidrome.URL); url != "" {
		services = append(services, newNavidromeService(url, cfg.Navidrome.APIKey,
			timeoutOrDefault(cfg.Navidrome.RequestTimeout)))
	}
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		services = append(services, newNtfyService(topic,
			timeoutOrDefault(cfg.Notifications.RequestTimeout)))
	}
	switch len(services) {
	case 0:
		return noopService{}
	case 1:
		return services[0]
	default:
		return multiService(services)
	}
}

func timeoutOrDefault(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(seconds) * time.Second
}

// multiService fans out to every notifier and joins their errors.
type multiService []Service

func (m multiService) BatchFinished(ctx context.Context, summary Summary) error {
	var errs []error
	for _, svc := range m {
		if err := svc.BatchFinished(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiService) TestNotification(ctx context.Context) error {
	var errs []error
	for _, svc := range m {
		if err := svc.TestNotification(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) BatchFinished(context.Context, Summary) error { return nil }
func (noopService) TestNotification(context.Context) error       { return nil }

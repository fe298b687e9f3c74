package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mixtape/internal/api"
	"mixtape/internal/apiclient"
	"mixtape/internal/config"
	"mixtape/internal/logging"
	"mixtape/internal/preflight"
	"mixtape/internal/store"
	"mixtape/internal/workflow"
)

// StatusLine is one labelled row of `mixtape daemon status` output.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int
	Available       int
	MissingRequired int
	MissingOptional int
	Severity        string
	Detail          string
}

// Snapshot is everything `mixtape daemon status` renders.
type Snapshot struct {
	Running           bool
	PID               int
	APIBind           string
	StartedAt         string
	ActiveWorkers     int
	Storage           string
	Statistics        workflow.Statistics
	StatisticsSource  string
	Dependencies      []api.DependencyStatus
	DependencySummary DependencySummary
	SystemChecks      []StatusLine
	Paths             []StatusLine
}

// BuildStatusSnapshot asks the daemon for its status and falls back to
// reading the batch store directly when it is not running.
func BuildStatusSnapshot(ctx context.Context, client *apiclient.Client, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &Snapshot{APIBind: cfg.Paths.APIBind}

	status, err := client.Status(ctx)
	switch {
	case err == nil:
		snap.Running = status.Running
		snap.PID = status.PID
		snap.APIBind = status.APIBind
		snap.StartedAt = status.StartedAt
		snap.ActiveWorkers = status.ActiveWorkers
		snap.Storage = status.Storage
		snap.Statistics = status.Statistics
		snap.StatisticsSource = "daemon"
		snap.Dependencies = status.Dependencies
	case errors.Is(err, apiclient.ErrDaemonUnavailable):
		snap.Storage = storageLocation(cfg)
		if stats, statsErr := offlineStatistics(ctx, cfg); statsErr == nil {
			snap.Statistics = stats
			snap.StatisticsSource = "store"
		}
	default:
		return nil, err
	}

	if len(snap.Dependencies) == 0 {
		snap.Dependencies = ResolveDependencies(cfg)
	}
	snap.DependencySummary = BuildDependencySummary(snap.Dependencies)
	snap.SystemChecks = BuildSystemChecks(ctx, cfg, snap.Running)
	snap.Paths = BuildPathChecks(cfg)
	return snap, nil
}

func storageLocation(cfg *config.Config) string {
	if cfg.Storage.Backend == config.StorageBackendSQLite {
		return cfg.Storage.SQLitePath
	}
	return cfg.Storage.BatchDir
}

func offlineStatistics(ctx context.Context, cfg *config.Config) (workflow.Statistics, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st, err := store.Open(cfg)
	if err != nil {
		return workflow.Statistics{}, err
	}
	defer st.Close()
	return workflow.NewManager(cfg, st, logging.NewNop()).Statistics(queryCtx)
}

// ResolveDependencies returns current dependency availability for status
// output.
func ResolveDependencies(cfg *config.Config) []api.DependencyStatus {
	checks := preflight.CheckSystemDeps(cfg)
	statuses := make([]api.DependencyStatus, 0, len(checks))
	for _, check := range checks {
		statuses = append(statuses, api.DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Detail:      check.Detail,
		})
	}
	return statuses
}

// DependencySeverity grades one dependency row.
func DependencySeverity(dep api.DependencyStatus) string {
	switch {
	case dep.Available:
		return "ok"
	case dep.Optional:
		return "warn"
	default:
		return "error"
	}
}

// BuildSystemChecks resolves status lines that combine runtime state and
// config checks.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, daemonRunning bool) []StatusLine {
	lines := make([]StatusLine, 0, 5)
	if daemonRunning {
		lines = append(lines, StatusLine{Label: "Mixtape", Severity: "ok", Detail: "Running"})
	} else {
		lines = append(lines, StatusLine{Label: "Mixtape", Severity: "warn", Detail: "Not running (run `mixtape daemon start`)"})
	}

	lines = append(lines, StatusLine{
		Label:    "Storage",
		Severity: "info",
		Detail:   fmt.Sprintf("%s (%s)", cfg.Storage.Backend, storageLocation(cfg)),
	})
	lines = append(lines, StatusLine{Label: "Recovery", Severity: "info", Detail: cfg.Recovery.Mode})

	if strings.TrimSpace(cfg.Navidrome.URL) == "" {
		lines = append(lines, StatusLine{Label: "Navidrome", Severity: "info", Detail: "Not configured"})
	} else {
		result := preflight.CheckNavidrome(ctx, cfg.Navidrome.URL, cfg.Navidrome.APIKey)
		severity := "warn"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, StatusLine{Label: "Navidrome", Severity: severity, Detail: result.Detail})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "warn", Detail: "Not configured"})
	}
	return lines
}

// BuildPathChecks resolves configured directory readiness.
func BuildPathChecks(cfg *config.Config) []StatusLine {
	lines := make([]StatusLine, 0, 3)
	for _, dir := range []struct {
		label string
		path  string
	}{
		{label: "Downloads", path: cfg.Paths.DownloadDir},
		{label: "Data", path: cfg.Paths.DataDir},
		{label: "Logs", path: cfg.Paths.LogDir},
	} {
		result := preflight.CheckDirectoryAccess(dir.label, dir.path)
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, StatusLine{Label: dir.label, Severity: severity, Detail: result.Detail})
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []api.DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{Severity: "info", Detail: "No dependency checks configured"}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range deps {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(deps) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(deps))
	}

	return DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}

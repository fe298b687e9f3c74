package preflight

import (
	"context"
	"strings"

	"mixtape/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks for optional integrations only run when they are configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Storage.Backend == config.StorageBackendDir {
		results = append(results, CheckDirectoryAccess("Batch directory", cfg.Storage.BatchDir))
	}
	if strings.TrimSpace(cfg.Fetch.CookiesFile) != "" {
		results = append(results, CheckReadableFile("Cookies file", cfg.Fetch.CookiesFile))
	}
	if strings.TrimSpace(cfg.Navidrome.URL) != "" {
		results = append(results, CheckNavidrome(ctx, cfg.Navidrome.URL, cfg.Navidrome.APIKey))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

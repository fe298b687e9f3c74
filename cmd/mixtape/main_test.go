package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mixtape/internal/batch"
)

func TestCLIBatchLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"batch", "create", "Road Trip", testVideoURL, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("batch create: %v", err)
	}
	var created batch.Batch
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode created batch: %v\n%s", err, out)
	}
	if created.Status != batch.StatusPending || created.TotalTasks != 1 {
		t.Fatalf("unexpected batch: status=%s tasks=%d", created.Status, created.TotalTasks)
	}

	out, _, err = runCLI(t, []string{"batch", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("batch list: %v", err)
	}
	requireContains(t, out, "Road Trip")
	requireContains(t, out, "pending")

	short := created.ID[:8]
	out, _, err = runCLI(t, []string{"batch", "start", short}, env.configPath)
	if err != nil {
		t.Fatalf("batch start: %v", err)
	}
	requireContains(t, out, "Started batch "+created.ID)

	out, _, err = runCLI(t, []string{"batch", "watch", created.ID}, env.configPath)
	if err != nil {
		t.Fatalf("batch watch: %v", err)
	}
	requireContains(t, out, "Batch Road Trip completed")

	out, _, err = runCLI(t, []string{"batch", "show", created.ID}, env.configPath)
	if err != nil {
		t.Fatalf("batch show: %v", err)
	}
	requireContains(t, out, "Song.mp3")
	requireContains(t, out, "1:35")

	out, _, err = runCLI(t, []string{"stats"}, env.configPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	requireContains(t, out, "Success rate")
	requireContains(t, out, "100.0%")

	out, _, err = runCLI(t, []string{"batch", "delete", created.ID}, env.configPath)
	if err != nil {
		t.Fatalf("batch delete: %v", err)
	}
	requireContains(t, out, "Deleted batch")

	out, _, err = runCLI(t, []string{"batch", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("batch list after delete: %v", err)
	}
	requireContains(t, out, "No batches")
}

func TestCLIBatchCreateFromFileAndStart(t *testing.T) {
	env := setupCLITestEnv(t)
	listPath := filepath.Join(t.TempDir(), "links.txt")
	content := "【Some Title】 " + testVideoURL + "?spm_id_from=333\n\nnot a link\n"
	if err := os.WriteFile(listPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"batch", "create", "Pasted", "--file", listPath, "--watch", "--genre", "city pop"}, env.configPath)
	if err != nil {
		t.Fatalf("batch create --watch: %v", err)
	}
	requireContains(t, out, "Created and started batch")
	requireContains(t, out, "with 1 task(s)")
	requireContains(t, out, "Batch Pasted completed")
}

func TestCLIBatchErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"batch", "create", "Empty", "--file", filepath.Join(t.TempDir(), "missing.txt")}, env.configPath)
	if err == nil {
		t.Fatal("expected error for missing link file")
	}

	_, _, err = runCLI(t, []string{"batch", "create", "Bad", "https://example.com/video"}, env.configPath)
	if err == nil {
		t.Fatal("expected validation error for non-Bilibili link")
	}

	_, _, err = runCLI(t, []string{"batch", "show", "00000000-0000-0000-0000-000000000000"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}

	_, _, err = runCLI(t, []string{"batch", "list", "--status", "bogus"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "pending, downloading, completed, failed, cancelled") {
		t.Fatalf("expected status list in error, got %v", err)
	}

	_, _, err = runCLI(t, []string{"batch", "cleanup", "--days", "-1"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for negative --days")
	}
}

func TestCLIValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"batch", "validate", testVideoURL, "hello"}, env.configPath)
	if err != nil {
		t.Fatalf("batch validate: %v", err)
	}
	requireContains(t, out, "Valid:")
	requireContains(t, out, testVideoURL)
	requireContains(t, out, "line 2: hello")

	if _, _, err := runCLI(t, []string{"batch", "validate"}, env.configPath); err == nil {
		t.Fatal("expected error without input")
	}
}

func TestCLIDaemonStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"daemon", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Dependencies")
	requireContains(t, out, "Paths")
	requireContains(t, out, "No batches yet")
}

func TestCLIReportsUnavailableDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	api := "http://" + closedAddress(t)

	_, _, err := runCLI(t, []string{"batch", "list"}, env.configPath, "--api", api)
	if err == nil {
		t.Fatal("expected error when daemon is unreachable")
	}
	requireContains(t, err.Error(), "mixtape daemon start")

	fileCfg := *env.cfg
	fileCfg.Paths.APIBind = closedAddress(t)
	offlinePath := filepath.Join(t.TempDir(), "offline.toml")
	writeTestConfig(t, offlinePath, &fileCfg)

	out, _, err := runCLI(t, []string{"daemon", "stop"}, offlinePath)
	if err != nil {
		t.Fatalf("daemon stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"mixtape/internal/config"
	"mixtape/internal/daemon"
	"mixtape/internal/fetch"
	"mixtape/internal/logging"
	"mixtape/internal/notifications"
	"mixtape/internal/tags"
	"mixtape/internal/testsupport"
	"mixtape/internal/workflow"
)

const testVideoURL = "https://www.bilibili.com/video/BV1xx411c7mD"

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, url string) (fetch.Result, error) {
	return fetch.Result{
		Title:    "Song",
		Artist:   "Uploader",
		Duration: 95,
		Filename: "Song.mp3",
		Filepath: "/music/Song.mp3",
	}, nil
}

type stubTagger struct{}

func (stubTagger) Apply(context.Context, string, tags.Metadata) error { return nil }

type stubNotifier struct{}

func (stubNotifier) BatchFinished(context.Context, notifications.Summary) error { return nil }

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	daemon     *daemon.Daemon
}

// setupCLITestEnv starts an in-process daemon on a loopback port and writes a
// config file pointing the CLI at it.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, st, logger,
		workflow.WithFetcher(stubFetcher{}),
		workflow.WithTagger(stubTagger{}),
		workflow.WithNotifier(stubNotifier{}),
	)
	t.Cleanup(mgr.Stop)

	d, err := daemon.New(cfg, st, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(d.Stop)

	fileCfg := *cfg
	fileCfg.Paths.APIBind = d.APIAddress()
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, &fileCfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, daemon: d}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string, extra ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	flags := append([]string{}, extra...)
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func closedAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

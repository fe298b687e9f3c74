package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mixtape/internal/api"
	"mixtape/internal/apiclient"
	"mixtape/internal/daemonctl"
	"mixtape/internal/daemonrun"
	"mixtape/internal/workflow"
)

const (
	daemonStartTimeout = 10 * time.Second
	daemonStopGrace    = 5 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the mixtape daemon",
	}

	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the mixtape daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, daemonLaunchOptions(ctx, startLogLevel), daemonStartTimeout)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(stdout, "Daemon started (pid %d) at %s\n", result.PID, client.BaseURL())
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Log level for the daemon process")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the mixtape daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return stopDaemon(cmd, ctx, client)
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the mixtape daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := stopDaemon(cmd, ctx, client); err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, daemonLaunchOptions(ctx, restartLogLevel), daemonStartTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon restarted (pid %d)\n", result.PID)
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Log level for the daemon process")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and batch status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), client, ctx.configValue())
			if err != nil {
				return err
			}
			renderSnapshot(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}

	var runOpts daemonrun.Options
	runCmd := &cobra.Command{
		Use:    "run",
		Short:  "Run the daemon in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, runOpts)
		},
	}
	runCmd.Flags().StringVar(&runOpts.LogLevel, "log-level", "", "Override logging.level")
	runCmd.Flags().BoolVar(&runOpts.Development, "dev", false, "Use development logging (text, source locations)")

	daemonCmd.AddCommand(startCmd, stopCmd, restartCmd, statusCmd, runCmd)
	return daemonCmd
}

func stopDaemon(cmd *cobra.Command, ctx *commandContext, client *apiclient.Client) error {
	stdout := cmd.OutOrStdout()
	result, err := daemonctl.StopAndTerminate(cmd.Context(), client, ctx.configValue(), daemonStopGrace)
	if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		fmt.Fprintln(stdout, "Daemon is not running")
		return nil
	}
	if err != nil {
		return err
	}
	if result.ForcedKill {
		fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
	}
	fmt.Fprintln(stdout, "Daemon stopped")
	return nil
}

func renderSnapshot(stdout io.Writer, snapshot *daemonctl.Snapshot) {
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range snapshot.SystemChecks {
		fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range dependencyLines(snapshot.Dependencies, snapshot.DependencySummary, colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Paths", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range snapshot.Paths {
		fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	fmt.Fprintln(stdout)

	header := "Batch Statistics"
	if snapshot.StatisticsSource != "" {
		header = fmt.Sprintf("Batch Statistics (%s)", snapshot.StatisticsSource)
	}
	for _, line := range renderSectionHeader(header, colorize) {
		fmt.Fprintln(stdout, line)
	}
	if snapshot.Statistics.TotalBatches == 0 {
		fmt.Fprintln(stdout, "No batches yet")
		return
	}
	fmt.Fprint(stdout, renderStatistics(snapshot.Statistics))
}

func renderStatistics(stats workflow.Statistics) string {
	rows := [][]string{
		{"Batches", fmt.Sprintf("%d", stats.TotalBatches)},
		{"  pending", fmt.Sprintf("%d", stats.PendingBatches)},
		{"  running", fmt.Sprintf("%d", stats.RunningBatches)},
		{"  completed", fmt.Sprintf("%d", stats.CompletedBatches)},
		{"  failed", fmt.Sprintf("%d", stats.FailedBatches)},
		{"  cancelled", fmt.Sprintf("%d", stats.CancelledBatches)},
		{"Tasks", fmt.Sprintf("%d", stats.TotalTasks)},
		{"  completed", fmt.Sprintf("%d", stats.CompletedTasks)},
		{"  failed", fmt.Sprintf("%d", stats.FailedTasks)},
		{"Success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate)},
	}
	return renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

func dependencyLines(deps []api.DependencyStatus, summary daemonctl.DependencySummary, colorize bool) []string {
	lines := make([]string, 0, len(deps)+2)
	lines = append(lines, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
	missing := make([]string, 0)
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		lines = append(lines, renderStatusLine(dep.Name, statusKindFromSeverity(daemonctl.DependencySeverity(dep)), detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		ConfigPath: ctx.configPath(),
		LogLevel:   strings.TrimSpace(logLevel),
	}
}

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"mixtape/internal/batch"
	"mixtape/internal/logging"
	"mixtape/internal/textutil"
	"mixtape/internal/workflow"
)

const (
	progressBarWidth = 24
	titleColumnWidth = 40
	timestampLayout  = "2006-01-02 15:04"
)

func buildBatchRows(batches []*batch.Batch) [][]string {
	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, []string{
			logging.ShortID(b.ID),
			textutil.SanitizeText(b.Name, titleColumnWidth),
			string(b.Status),
			fmt.Sprintf("%.0f%%", b.Progress()),
			fmt.Sprintf("%d/%d", b.CompletedTasks, b.TotalTasks),
			strconv.Itoa(b.FailedTasks),
			formatTimestamp(&b.CreatedAt),
		})
	}
	return rows
}

func buildTaskRows(tasks []*batch.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for i, task := range tasks {
		detail := task.Filename
		if task.Status == batch.TaskFailed {
			detail = task.ErrorMessage
		}
		if detail == "" {
			detail = task.URL
		}
		title := task.Title
		if title == "" {
			title = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(task.Status),
			textutil.SanitizeText(title, titleColumnWidth),
			task.Artist,
			formatSeconds(task.Duration),
			textutil.SanitizeText(detail, 60),
		})
	}
	return rows
}

func renderBatchDetail(w io.Writer, b *batch.Batch, colorize bool) {
	for _, line := range renderSectionHeader("Batch "+b.Name, colorize) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, renderStatusLine("ID", statusInfo, b.ID, colorize))
	fmt.Fprintln(w, renderStatusLine("Status", batchStatusKind(b.Status), string(b.Status), colorize))
	fmt.Fprintln(w, renderStatusLine("Progress", statusInfo, summaryText(b.Summary()), colorize))
	fmt.Fprintln(w, renderStatusLine("Created", statusInfo, formatTimestamp(&b.CreatedAt), colorize))
	if b.StartedAt != nil {
		fmt.Fprintln(w, renderStatusLine("Started", statusInfo, formatTimestamp(b.StartedAt), colorize))
	}
	if b.CompletedAt != nil {
		fmt.Fprintln(w, renderStatusLine("Finished", statusInfo, formatTimestamp(b.CompletedAt), colorize))
	}
	fmt.Fprintln(w, renderStatusLine("Auto tags", statusInfo, yesNo(b.Options.AutoTag), colorize))
	fmt.Fprintln(w)

	if len(b.Tasks) == 0 {
		fmt.Fprintln(w, "No tasks")
		return
	}
	fmt.Fprint(w, renderTable(
		[]string{"#", "Status", "Title", "Artist", "Length", "File / Error"},
		buildTaskRows(b.Tasks),
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func summaryText(s batch.Summary) string {
	text := fmt.Sprintf("%.1f%% (%d/%d completed", s.Progress, s.Completed, s.Total)
	if s.Failed > 0 {
		text += fmt.Sprintf(", %d failed", s.Failed)
	}
	if s.Pending > 0 {
		text += fmt.Sprintf(", %d pending", s.Pending)
	}
	return text + ")"
}

// progressLine renders a one-line progress bar for watch output.
func progressLine(p workflow.Progress, colorize bool) string {
	filled := int(p.Progress / 100 * progressBarWidth)
	filled = max(0, min(progressBarWidth, filled))
	bar := strings.Repeat("#", filled) + strings.Repeat(".", progressBarWidth-filled)
	line := fmt.Sprintf("[%s] %5.1f%%  %s  %s", bar, p.Progress, summaryText(p.Summary), p.Status)
	if current := currentTask(p.Tasks); current != nil {
		line += "  -> " + textutil.SanitizeText(current.URL, 60)
	}
	return paint(line, statusKindColor(batchStatusKind(p.Status)), colorize)
}

func currentTask(tasks []*batch.Task) *batch.Task {
	for _, task := range tasks {
		if task.Status == batch.TaskDownloading {
			return task
		}
	}
	return nil
}

func formatSeconds(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, seconds%60)
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), seconds%60)
}

func formatTimestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timestampLayout)
}

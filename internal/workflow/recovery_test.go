package workflow_test

import (
	"context"
	"testing"

	"mixtape/internal/batch"
	"mixtape/internal/config"
	"mixtape/internal/testsupport"
)

// saveInterrupted stores a batch as a crashed daemon would leave it: first
// task completed, second downloading, third pending.
func saveInterrupted(t *testing.T, h *harness) *batch.Batch {
	t.Helper()
	b := batch.New("", "Interrupted", []string{urlOne, urlTwo, urlThree}, batch.Options{})
	steps := []struct {
		index  int
		status batch.TaskStatus
		update batch.TaskUpdate
	}{
		{0, batch.TaskDownloading, batch.TaskUpdate{}},
		{0, batch.TaskCompleted, batch.Completed("one", "a", "one.mp3", "/music/one.mp3", 1)},
		{1, batch.TaskDownloading, batch.TaskUpdate{}},
	}
	for _, step := range steps {
		if err := b.UpdateTaskStatus(b.Tasks[step.index].ID, step.status, step.update); err != nil {
			t.Fatalf("UpdateTaskStatus: %v", err)
		}
	}
	if err := h.store.Save(context.Background(), b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return b
}

func TestRecoverResumesInterruptedBatch(t *testing.T) {
	h := newHarness(t)
	b := saveInterrupted(t, h)
	pending := testsupport.SaveBatch(t, h.store, "Queued", "https://b23.tv/queued")

	report, err := h.mgr.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.Mode != config.RecoveryResume || report.Resumed != 1 || report.Pending != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	waitIdle(t, h.mgr)

	got := mustGet(t, h.mgr, b.ID)
	checkCounters(t, got)
	if got.Tasks[1].Status != batch.TaskFailed || got.Tasks[1].ErrorMessage != "interrupted by restart" {
		t.Fatalf("in-flight task = %s %q", got.Tasks[1].Status, got.Tasks[1].ErrorMessage)
	}
	if got.Tasks[2].Status != batch.TaskCompleted {
		t.Fatalf("remaining task = %s", got.Tasks[2].Status)
	}
	if got.Status != batch.StatusCompleted || got.CompletedTasks != 2 || got.FailedTasks != 1 {
		t.Fatalf("batch = %s %d/%d", got.Status, got.CompletedTasks, got.FailedTasks)
	}
	if calls := h.fetcher.Calls(); len(calls) != 1 || calls[0] != urlThree {
		t.Fatalf("only the pending task should be fetched, got %v", calls)
	}
	if queued := mustGet(t, h.mgr, pending.ID); queued.Status != batch.StatusPending {
		t.Fatalf("pending batch should stay pending, got %s", queued.Status)
	}
}

func TestRecoverSettlesBatchWhoseLastTaskWasInterrupted(t *testing.T) {
	h := newHarness(t)
	b := batch.New("", "Almost done", []string{urlOne, urlTwo}, batch.Options{})
	for _, step := range []struct {
		index  int
		status batch.TaskStatus
		update batch.TaskUpdate
	}{
		{0, batch.TaskDownloading, batch.TaskUpdate{}},
		{0, batch.TaskCompleted, batch.Completed("one", "a", "one.mp3", "/music/one.mp3", 1)},
		{1, batch.TaskDownloading, batch.TaskUpdate{}},
	} {
		if err := b.UpdateTaskStatus(b.Tasks[step.index].ID, step.status, step.update); err != nil {
			t.Fatalf("UpdateTaskStatus: %v", err)
		}
	}
	if err := h.store.Save(context.Background(), b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	report, err := h.mgr.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.Settled != 1 || report.Resumed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if h.mgr.ActiveWorkers() != 0 {
		t.Fatal("no worker should start for a settled batch")
	}

	stored, err := h.store.Load(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stored.Status != batch.StatusCompleted || stored.CompletedTasks != 1 || stored.FailedTasks != 1 {
		t.Fatalf("stored batch = %s %d/%d", stored.Status, stored.CompletedTasks, stored.FailedTasks)
	}
	summaries := h.notifier.Summaries()
	if len(summaries) != 1 || summaries[0].BatchID != b.ID || summaries[0].Status != string(batch.StatusCompleted) {
		t.Fatalf("expected one completion notification, got %+v", summaries)
	}
	if calls := h.fetcher.Calls(); len(calls) != 0 {
		t.Fatalf("settled batch must not fetch, got %v", calls)
	}
}

func TestRecoverFailMode(t *testing.T) {
	h := newHarness(t, testsupport.WithRecoveryMode(config.RecoveryFail))
	b := saveInterrupted(t, h)

	report, err := h.mgr.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.Failed != 1 || report.Resumed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	stored, err := h.store.Load(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stored.Status != batch.StatusFailed || stored.CompletedAt == nil {
		t.Fatalf("stored batch = %s", stored.Status)
	}
	if stored.Tasks[1].Status != batch.TaskFailed || stored.Tasks[2].Status != batch.TaskPending {
		t.Fatalf("tasks = %s / %s", stored.Tasks[1].Status, stored.Tasks[2].Status)
	}
	if calls := h.fetcher.Calls(); len(calls) != 0 {
		t.Fatalf("fail mode must not fetch, got %v", calls)
	}
}

func TestRecoverIgnoreMode(t *testing.T) {
	h := newHarness(t, testsupport.WithRecoveryMode(config.RecoveryIgnore))
	b := saveInterrupted(t, h)

	report, err := h.mgr.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.Untouched != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	got := mustGet(t, h.mgr, b.ID)
	if got.Status != batch.StatusDownloading || got.Tasks[1].Status != batch.TaskDownloading {
		t.Fatalf("ignore mode changed state: %s / %s", got.Status, got.Tasks[1].Status)
	}
	if h.mgr.ActiveWorkers() != 0 {
		t.Fatal("ignore mode must not start workers")
	}
}

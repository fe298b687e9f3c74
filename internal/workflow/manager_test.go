package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mixtape/internal/batch"
	"mixtape/internal/store"
	"mixtape/internal/testsupport"
	"mixtape/internal/workflow"
)

const (
	urlOne   = "https://b23.tv/one"
	urlTwo   = "https://b23.tv/two"
	urlThree = "https://b23.tv/three"
)

func TestManagerPartialSuccessCompletes(t *testing.T) {
	backends := map[string][]testsupport.ConfigOption{
		"dir":    nil,
		"sqlite": {testsupport.WithSQLite()},
	}
	for name, opts := range backends {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, opts...)
			h.fetcher.fail[urlTwo] = "yt-dlp failed: Video unavailable"
			b := h.create(t, "Road Trip", urlOne, urlTwo, urlThree)

			if err := h.mgr.Start(context.Background(), b.ID); err != nil {
				t.Fatalf("Start: %v", err)
			}
			waitIdle(t, h.mgr)

			got := mustGet(t, h.mgr, b.ID)
			checkCounters(t, got)
			if got.Status != batch.StatusCompleted {
				t.Fatalf("status = %s, want completed", got.Status)
			}
			if got.CompletedTasks != 2 || got.FailedTasks != 1 {
				t.Fatalf("counters = %d/%d, want 2/1", got.CompletedTasks, got.FailedTasks)
			}
			if got.Progress() != 100 {
				t.Fatalf("progress = %v", got.Progress())
			}
			if got.StartedAt == nil || got.CompletedAt == nil {
				t.Fatal("expected started_at and completed_at")
			}
			failed := got.Tasks[1]
			if failed.Status != batch.TaskFailed || !strings.Contains(failed.ErrorMessage, "Video unavailable") {
				t.Fatalf("unexpected failed task: %+v", failed)
			}
			done := got.Tasks[0]
			if done.Title != "Title one" || done.Artist != "Uploader" || done.Filename != "one.mp3" || done.Duration != 60 {
				t.Fatalf("unexpected completed task: %+v", done)
			}

			stored, err := h.store.Load(context.Background(), b.ID)
			if err != nil {
				t.Fatalf("store.Load: %v", err)
			}
			if stored.Status != batch.StatusCompleted || stored.CompletedTasks != 2 || stored.FailedTasks != 1 {
				t.Fatalf("stored state lags behind: %s %d/%d", stored.Status, stored.CompletedTasks, stored.FailedTasks)
			}

			summaries := h.notifier.Summaries()
			if len(summaries) != 1 {
				t.Fatalf("expected 1 notification, got %d", len(summaries))
			}
			if summaries[0].Completed != 2 || summaries[0].Failed != 1 || summaries[0].Name != "Road Trip" {
				t.Fatalf("unexpected summary: %+v", summaries[0])
			}

			metas := h.tagger.Metas()
			if len(metas) != 2 {
				t.Fatalf("expected 2 tag writes, got %d", len(metas))
			}
			if metas[0].Title != "Title one" || metas[0].Genre != "Bilibili" || metas[0].Publisher != "Bilibili" {
				t.Fatalf("unexpected tag metadata: %+v", metas[0])
			}
		})
	}
}

func TestManagerAllFailuresFail(t *testing.T) {
	h := newHarness(t)
	h.fetcher.fail[urlOne] = "boom"
	h.fetcher.fail[urlTwo] = "boom"
	b := h.create(t, "Broken", urlOne, urlTwo)

	if err := h.mgr.Start(context.Background(), b.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, h.mgr)

	got := mustGet(t, h.mgr, b.ID)
	if got.Status != batch.StatusFailed || got.FailedTasks != 2 || got.Progress() != 100 {
		t.Fatalf("unexpected batch: status=%s failed=%d progress=%v", got.Status, got.FailedTasks, got.Progress())
	}
	if n := len(h.notifier.Summaries()); n != 0 {
		t.Fatalf("expected no notification for an all-failed batch, got %d", n)
	}
	if n := len(h.tagger.Metas()); n != 0 {
		t.Fatalf("expected no tag writes, got %d", n)
	}
}

func TestManagerSkipsTaggingWhenDisabled(t *testing.T) {
	h := newHarness(t)
	off := false
	b, err := h.mgr.Create(context.Background(), batch.Request{Name: "Raw", URLs: []string{urlOne}, AutoTag: &off})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.mgr.Start(context.Background(), b.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, h.mgr)
	if n := len(h.tagger.Metas()); n != 0 {
		t.Fatalf("expected tagging to be skipped, got %d writes", n)
	}
}

func TestManagerCancelStopsAtTaskBoundary(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.fetcher.gates[urlOne] = gate
	b := h.create(t, "Cancel me", urlOne, urlTwo)

	if err := h.mgr.Start(context.Background(), b.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, h.fetcher, urlOne)
	if err := h.mgr.Cancel(context.Background(), b.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(gate)
	waitIdle(t, h.mgr)

	got := mustGet(t, h.mgr, b.ID)
	checkCounters(t, got)
	if got.Status != batch.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if got.Tasks[0].Status != batch.TaskCompleted {
		t.Fatalf("in-flight task should finish, got %s", got.Tasks[0].Status)
	}
	if got.Tasks[1].Status != batch.TaskPending || got.Tasks[1].CompletedAt != nil {
		t.Fatalf("second task should stay pending, got %s", got.Tasks[1].Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("cancelled batch should carry completed_at")
	}
	if calls := h.fetcher.Calls(); len(calls) != 1 {
		t.Fatalf("expected a single fetch, got %v", calls)
	}
	if n := len(h.notifier.Summaries()); n != 0 {
		t.Fatalf("cancelled batch should not notify, got %d", n)
	}

	stored, err := h.store.Load(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	if stored.Status != batch.StatusCancelled || stored.Tasks[1].Status != batch.TaskPending {
		t.Fatalf("stored batch = %s with second task %s", stored.Status, stored.Tasks[1].Status)
	}
}

func TestManagerCancelRules(t *testing.T) {
	h := newHarness(t)
	b := h.create(t, "Pending", urlOne)

	if err := h.mgr.Cancel(context.Background(), "missing"); !errors.Is(err, batch.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := h.mgr.Cancel(context.Background(), b.ID); err != nil {
		t.Fatalf("Cancel pending: %v", err)
	}
	if err := h.mgr.Cancel(context.Background(), b.ID); !errors.Is(err, batch.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition on second cancel, got %v", err)
	}
	if err := h.mgr.Start(context.Background(), b.ID); !errors.Is(err, batch.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition starting a cancelled batch, got %v", err)
	}
}

func TestManagerStartRules(t *testing.T) {
	h := newHarness(t)
	if err := h.mgr.Start(context.Background(), "missing"); !errors.Is(err, batch.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	b := h.create(t, "Once", urlOne)
	if err := h.mgr.Start(context.Background(), b.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.mgr.Start(context.Background(), b.ID); !errors.Is(err, batch.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	waitIdle(t, h.mgr)
	if calls := h.fetcher.Calls(); len(calls) != 1 {
		t.Fatalf("each task must be attempted once, got %v", calls)
	}
}

func TestManagerCreateRejectsTooManyURLs(t *testing.T) {
	h := newHarness(t)
	urls := make([]string, 51)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://b23.tv/item%d", i)
	}
	_, err := h.mgr.Create(context.Background(), batch.Request{Name: "Too big", URLs: urls})
	if !errors.Is(err, batch.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	records, err := h.store.List(context.Background())
	if err != nil {
		t.Fatalf("store.List: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("nothing should be persisted, found %d records", len(records))
	}
}

func TestManagerDeleteRemovesBatch(t *testing.T) {
	h := newHarness(t)
	b := h.create(t, "Gone", urlOne)

	if err := h.mgr.Delete(context.Background(), b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := h.mgr.Get(context.Background(), b.ID); !errors.Is(err, batch.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := h.store.Load(context.Background(), b.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store record removed, got %v", err)
	}
	if err := h.mgr.Delete(context.Background(), b.ID); !errors.Is(err, batch.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestManagerDeleteRunningBatchStopsWorker(t *testing.T) {
	h := newHarness(t)
	h.fetcher.gates[urlOne] = make(chan struct{})
	b := h.create(t, "Running", urlOne, urlTwo)

	if err := h.mgr.Start(context.Background(), b.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, h.fetcher, urlOne)
	if err := h.mgr.Delete(context.Background(), b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	h.mgr.Stop()

	if _, err := h.store.Load(context.Background(), b.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("worker re-persisted a deleted batch: %v", err)
	}
	if calls := h.fetcher.Calls(); len(calls) != 1 {
		t.Fatalf("worker continued after delete: %v", calls)
	}
}

func TestManagerPanicInFetchFailsTask(t *testing.T) {
	h := newHarness(t)
	h.fetcher.panics[urlOne] = true
	b := h.create(t, "Panics", urlOne, urlTwo)

	if err := h.mgr.Start(context.Background(), b.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, h.mgr)

	got := mustGet(t, h.mgr, b.ID)
	if got.Tasks[0].Status != batch.TaskFailed || !strings.Contains(got.Tasks[0].ErrorMessage, "panicked") {
		t.Fatalf("panicking task = %+v", got.Tasks[0])
	}
	if got.Tasks[1].Status != batch.TaskCompleted || got.Status != batch.StatusCompleted {
		t.Fatalf("batch should continue after a panic: %s / %s", got.Status, got.Tasks[1].Status)
	}
}

func TestManagerPanicInTaggerFailsTask(t *testing.T) {
	h := newHarness(t)
	h.tagger.panics["/music/one.mp3"] = true
	b := h.create(t, "Bad tags", urlOne, urlTwo)

	if err := h.mgr.Start(context.Background(), b.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, h.mgr)

	got := mustGet(t, h.mgr, b.ID)
	checkCounters(t, got)
	if got.Tasks[0].Status != batch.TaskFailed || !strings.Contains(got.Tasks[0].ErrorMessage, "tagging panicked") {
		t.Fatalf("panicking task = %+v", got.Tasks[0])
	}
	if got.Tasks[1].Status != batch.TaskCompleted || got.Status != batch.StatusCompleted {
		t.Fatalf("batch should continue after a tagging panic: %s / %s", got.Status, got.Tasks[1].Status)
	}
	if n := len(h.tagger.Metas()); n != 1 {
		t.Fatalf("expected one successful tag write, got %d", n)
	}
	if h.mgr.ActiveWorkers() != 0 {
		t.Fatal("worker still attached")
	}
}

func TestManagerWorkerPanicFailsBatch(t *testing.T) {
	h := newHarness(t)
	mgr := h.managerOver(t, &flakyStore{Store: h.store})
	b, err := mgr.Create(context.Background(), batch.Request{Name: "Crashes", URLs: []string{urlOne, urlTwo}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	updates, unsubscribe := mgr.Subscribe(b.ID)
	defer unsubscribe()

	if err := mgr.Start(context.Background(), b.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, mgr)

	stored, err := h.store.Load(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stored.Status != batch.StatusFailed || stored.CompletedAt == nil {
		t.Fatalf("stored batch = %s, want failed", stored.Status)
	}
	if stored.Tasks[0].Status != batch.TaskCompleted || stored.Tasks[1].Status != batch.TaskPending {
		t.Fatalf("tasks = %s / %s", stored.Tasks[0].Status, stored.Tasks[1].Status)
	}

	var last workflow.Progress
	for drained := false; !drained; {
		select {
		case p := <-updates:
			last = p
		default:
			drained = true
		}
	}
	if last.Status != batch.StatusFailed {
		t.Fatalf("last published status = %s, want failed", last.Status)
	}
}

func TestManagerNotifierErrorDoesNotFailBatch(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("ntfy unreachable")
	b := h.create(t, "Quiet", urlOne)

	if err := h.mgr.Start(context.Background(), b.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, h.mgr)

	got := mustGet(t, h.mgr, b.ID)
	if got.Status != batch.StatusCompleted || got.CompletedTasks != 1 {
		t.Fatalf("batch = %s %d, want completed", got.Status, got.CompletedTasks)
	}
	if n := len(h.notifier.Summaries()); n != 1 {
		t.Fatalf("expected one notification attempt, got %d", n)
	}
	stored, err := h.store.Load(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stored.Status != batch.StatusCompleted {
		t.Fatalf("stored batch = %s", stored.Status)
	}
}

func TestManagerGetListFromStore(t *testing.T) {
	h := newHarness(t)
	older := testsupport.SaveBatch(t, h.store, "Older", urlOne)
	older.CreatedAt = time.Now().Add(-time.Hour).UTC()
	if err := h.store.Save(context.Background(), older); err != nil {
		t.Fatalf("Save: %v", err)
	}
	newer := h.create(t, "Newer", urlTwo)

	got := mustGet(t, h.mgr, older.ID)
	if got.Name != "Older" || len(got.Tasks) != 1 {
		t.Fatalf("unexpected loaded batch: %+v", got)
	}
	got.Name = "mutated"
	if again := mustGet(t, h.mgr, older.ID); again.Name != "Older" {
		t.Fatal("Get must return a copy")
	}

	list, err := h.mgr.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("expected newest first, got %d entries", len(list))
	}
}

func TestManagerStatistics(t *testing.T) {
	h := newHarness(t)
	stats, err := h.mgr.Statistics(context.Background())
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalBatches != 0 || stats.SuccessRate != 0 {
		t.Fatalf("unexpected empty stats: %+v", stats)
	}

	h.fetcher.fail[urlTwo] = "nope"
	done := h.create(t, "Done", urlOne, urlTwo, urlThree)
	if err := h.mgr.Start(context.Background(), done.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, h.mgr)
	h.create(t, "Waiting", "https://b23.tv/four")

	stats, err = h.mgr.Statistics(context.Background())
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalBatches != 2 || stats.CompletedBatches != 1 || stats.PendingBatches != 1 {
		t.Fatalf("unexpected batch counts: %+v", stats)
	}
	if stats.TotalTasks != 4 || stats.CompletedTasks != 2 || stats.FailedTasks != 1 {
		t.Fatalf("unexpected task counts: %+v", stats)
	}
	if math.Abs(stats.SuccessRate-50) > 1e-9 {
		t.Fatalf("success rate = %v, want 50", stats.SuccessRate)
	}
}

func TestManagerCleanupOlderThan(t *testing.T) {
	h := newHarness(t)
	old := h.create(t, "Old", urlOne)
	fresh := h.create(t, "Fresh", urlTwo)

	stale := time.Now().Add(-10 * 24 * time.Hour)
	path := filepath.Join(h.cfg.Storage.BatchDir, old.ID+".json")
	if err := os.Chtimes(path, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := h.mgr.CleanupOlderThan(context.Background(), 0)
	if err != nil {
		t.Fatalf("CleanupOlderThan: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := h.mgr.Get(context.Background(), old.ID); !errors.Is(err, batch.ErrNotFound) {
		t.Fatalf("expected old batch gone, got %v", err)
	}
	mustGet(t, h.mgr, fresh.ID)
}

func TestManagerProgressAndSubscribe(t *testing.T) {
	h := newHarness(t)
	b := h.create(t, "Watched", urlOne, urlTwo)

	updates, unsubscribe := h.mgr.Subscribe(b.ID)
	defer unsubscribe()
	if err := h.mgr.Start(context.Background(), b.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case p := <-updates:
			if p.ID != b.ID || len(p.Tasks) != 2 {
				t.Fatalf("unexpected progress: %+v", p)
			}
			if p.Status.IsTerminal() {
				if p.Progress != 100 || p.Summary.Completed != 2 {
					t.Fatalf("unexpected final progress: %+v", p)
				}
				progress, err := h.mgr.Progress(context.Background(), b.ID)
				if err != nil {
					t.Fatalf("Progress: %v", err)
				}
				if progress.Status != batch.StatusCompleted || progress.Summary.Pending != 0 {
					t.Fatalf("unexpected polled progress: %+v", progress)
				}
				return
			}
		case <-timeout:
			t.Fatal("no terminal progress update received")
		}
	}
}

func TestManagerSlowSubscriberGetsTerminalUpdate(t *testing.T) {
	h := newHarness(t)
	urls := make([]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://b23.tv/item%d", i)
	}
	b := h.create(t, "Backlog", urls...)

	updates, unsubscribe := h.mgr.Subscribe(b.ID)
	defer unsubscribe()
	if err := h.mgr.Start(context.Background(), b.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitIdle(t, h.mgr)

	var received []workflow.Progress
	for drained := false; !drained; {
		select {
		case p := <-updates:
			received = append(received, p)
		default:
			drained = true
		}
	}
	if len(received) == 0 {
		t.Fatal("no updates buffered")
	}
	last := received[len(received)-1]
	if last.Status != batch.StatusCompleted || last.Summary.Completed != len(urls) {
		t.Fatalf("last update = %s %d, want completed %d", last.Status, last.Summary.Completed, len(urls))
	}
}

func TestManagerStopLeavesInFlightTask(t *testing.T) {
	h := newHarness(t)
	h.fetcher.gates[urlOne] = make(chan struct{})
	b := h.create(t, "Interrupted", urlOne, urlTwo)

	if err := h.mgr.Start(context.Background(), b.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStarted(t, h.fetcher, urlOne)
	h.mgr.Stop()

	stored, err := h.store.Load(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	if stored.Status != batch.StatusDownloading || stored.Tasks[0].Status != batch.TaskDownloading {
		t.Fatalf("expected in-flight state to survive, got %s / %s", stored.Status, stored.Tasks[0].Status)
	}
	if err := h.mgr.Start(context.Background(), h.create(t, "Late", urlThree).ID); err == nil {
		t.Fatal("expected Start to fail after Stop")
	}
}

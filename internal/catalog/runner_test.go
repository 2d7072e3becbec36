package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeExecutor struct {
	called      atomic.Int32
	artifactDir string
	err         error
}

func (f *fakeExecutor) Execute(ctx context.Context, run *Run) (string, error) {
	f.called.Add(1)
	return f.artifactDir, f.err
}

func enqueueTestRun(t *testing.T, repo Repository) *Run {
	t.Helper()
	svc := NewService(repo, nil)
	ctx := context.Background()

	if _, err := svc.ImportDefinition(ctx, "demo", testDefinition); err != nil {
		t.Fatalf("import definition: %v", err)
	}
	run, err := svc.EnqueueRun(ctx, "demo")
	if err != nil {
		t.Fatalf("enqueue run: %v", err)
	}
	return run
}

func TestProcessNextRun_Completes(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	exec := &fakeExecutor{artifactDir: "/tmp/runs/abc"}
	runner := NewRunner(repo, exec, testLogger())
	run := enqueueTestRun(t, repo)

	runner.processNextRun(context.Background())

	if exec.called.Load() != 1 {
		t.Errorf("executor called %d times, want 1", exec.called.Load())
	}

	updated, _ := repo.GetRun(context.Background(), run.ID)
	if updated.Status != RunStatusCompleted {
		t.Errorf("run status = %s, want %s", updated.Status, RunStatusCompleted)
	}
	if updated.ArtifactDir != "/tmp/runs/abc" {
		t.Errorf("artifact dir = %s", updated.ArtifactDir)
	}
	if updated.StartedAt == nil || updated.FinishedAt == nil {
		t.Error("expected started_at and finished_at to be stamped")
	}

	events, _ := repo.ListEvents(context.Background(), run.ID)
	if len(events) != 2 {
		t.Fatalf("event count = %d, want 2", len(events))
	}
	if events[0].Message != "run started" || events[1].Message != "run completed" {
		t.Errorf("events = %q, %q", events[0].Message, events[1].Message)
	}
}

func TestProcessNextRun_Failure(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	exec := &fakeExecutor{artifactDir: "/tmp/runs/abc", err: fmt.Errorf("render exited 1")}
	runner := NewRunner(repo, exec, testLogger())
	run := enqueueTestRun(t, repo)

	runner.processNextRun(context.Background())

	updated, _ := repo.GetRun(context.Background(), run.ID)
	if updated.Status != RunStatusFailed {
		t.Errorf("run status = %s, want %s", updated.Status, RunStatusFailed)
	}
	if updated.Error != "render exited 1" {
		t.Errorf("run error = %s", updated.Error)
	}
	// A failed run keeps its artifact dir so partial output stays findable.
	if updated.ArtifactDir != "/tmp/runs/abc" {
		t.Errorf("artifact dir = %s", updated.ArtifactDir)
	}

	events, _ := repo.ListEvents(context.Background(), run.ID)
	if len(events) != 2 {
		t.Fatalf("event count = %d, want 2", len(events))
	}
	if events[1].Level != "error" {
		t.Errorf("failure event level = %s, want error", events[1].Level)
	}
}

func TestProcessNextRun_NoExecutor(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	runner := NewRunner(repo, nil, testLogger())
	run := enqueueTestRun(t, repo)

	runner.processNextRun(context.Background())

	updated, _ := repo.GetRun(context.Background(), run.ID)
	if updated.Status != RunStatusFailed {
		t.Errorf("run status = %s, want %s", updated.Status, RunStatusFailed)
	}
}

func TestProcessNextRun_EmptyQueue(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	exec := &fakeExecutor{}
	runner := NewRunner(repo, exec, testLogger())

	runner.processNextRun(context.Background())

	if exec.called.Load() != 0 {
		t.Errorf("executor called %d times, want 0", exec.called.Load())
	}
}

func TestProcessNextRun_OldestFirst(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	ctx := context.Background()
	if _, err := svc.ImportDefinition(ctx, "demo", testDefinition); err != nil {
		t.Fatalf("import definition: %v", err)
	}

	// CreateRun directly so the two runs get distinct created_at values.
	early := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	first := &Run{ID: "run-1", Definition: "demo", Status: RunStatusQueued, CreatedAt: early, UpdatedAt: early}
	second := &Run{ID: "run-2", Definition: "demo", Status: RunStatusQueued, CreatedAt: late, UpdatedAt: late}
	if err := repo.CreateRun(ctx, first); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := repo.CreateRun(ctx, second); err != nil {
		t.Fatalf("create run: %v", err)
	}

	exec := &fakeExecutor{}
	runner := NewRunner(repo, exec, testLogger())
	runner.processNextRun(ctx)

	r1, _ := repo.GetRun(ctx, "run-1")
	r2, _ := repo.GetRun(ctx, "run-2")
	if r1.Status != RunStatusCompleted {
		t.Errorf("oldest run status = %s, want completed", r1.Status)
	}
	if r2.Status != RunStatusQueued {
		t.Errorf("newer run status = %s, want still queued", r2.Status)
	}
}

func TestRunner_PauseResume(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	runner := NewRunner(repo, &fakeExecutor{}, testLogger())

	if runner.IsPaused() {
		t.Error("runner should start unpaused")
	}
	runner.Pause()
	if !runner.IsPaused() {
		t.Error("runner should be paused after Pause()")
	}
	runner.Resume()
	if runner.IsPaused() {
		t.Error("runner should be unpaused after Resume()")
	}
}

func TestRunner_ActiveRunCount(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	runner := NewRunner(repo, &fakeExecutor{}, testLogger())
	ctx := context.Background()

	run := enqueueTestRun(t, repo)
	if got := runner.ActiveRunCount(ctx); got != 0 {
		t.Errorf("ActiveRunCount = %d, want 0", got)
	}

	repo.UpdateRunStatus(ctx, run.ID, RunStatusRunning, "")
	if got := runner.ActiveRunCount(ctx); got != 1 {
		t.Errorf("ActiveRunCount = %d, want 1", got)
	}
}

package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kirinuki/kirinuki-agent/internal/logging"
)

// Executor runs one claimed run to completion and returns the directory
// its artifacts were written to. The pipeline orchestrator implements it.
type Executor interface {
	Execute(ctx context.Context, run *Run) (string, error)
}

// Runner is the queue loop: it polls for queued runs, claims the oldest
// and drives it through the executor, recording status transitions and
// events as it goes. Runs are executed one at a time.
type Runner struct {
	repo         Repository
	executor     Executor
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

func NewRunner(repo Repository, executor Executor, logger *slog.Logger) *Runner {
	return &Runner{
		repo:         repo,
		executor:     executor,
		logger:       logger,
		pollInterval: 5 * time.Second,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("run queue started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("run queue stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextRun(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("run queue paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("run queue resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) processNextRun(ctx context.Context) {
	runs, err := r.repo.ListQueuedRuns(ctx)
	if err != nil {
		r.logger.Error("failed to list queued runs", "error", err)
		return
	}

	if len(runs) == 0 {
		return
	}

	run := runs[0]
	log := logging.WithRunID(r.logger, run.ID)
	log.Info("processing run", "definition", run.Definition)

	if r.executor == nil {
		r.repo.UpdateRunStatus(ctx, run.ID, RunStatusFailed, "executor not configured")
		return
	}

	r.repo.UpdateRunStatus(ctx, run.ID, RunStatusRunning, "")
	r.repo.AppendEvent(ctx, run.ID, "info", "run started")

	artifactDir, err := r.executor.Execute(ctx, run)
	if artifactDir != "" {
		r.repo.SetRunArtifactDir(ctx, run.ID, artifactDir)
	}

	if err != nil {
		log.Error("run failed", "error", err)
		r.repo.UpdateRunStatus(ctx, run.ID, RunStatusFailed, err.Error())
		r.repo.AppendEvent(ctx, run.ID, "error", "run failed: "+err.Error())
		return
	}

	r.repo.UpdateRunStatus(ctx, run.ID, RunStatusCompleted, "")
	r.repo.AppendEvent(ctx, run.ID, "info", "run completed")
	log.Info("run completed")
}

// ActiveRunCount reports how many runs are currently executing. The tray
// uses it for its status line.
func (r *Runner) ActiveRunCount(ctx context.Context) int {
	runs, err := r.repo.ListRuns(ctx, 100)
	if err != nil {
		return 0
	}
	count := 0
	for _, run := range runs {
		if run.Status == RunStatusRunning {
			count++
		}
	}
	return count
}

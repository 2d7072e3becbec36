package pipeline

import (
	"context"
	"path/filepath"

	"github.com/kirinuki/kirinuki-agent/internal/catalog"
)

// CatalogExecutor adapts the Orchestrator to the run queue. Each run gets
// its own directory under RunsDir, used for both scratch and output, and
// every pipeline event is mirrored into the run's event log.
type CatalogExecutor struct {
	Orch    *Orchestrator
	Repo    catalog.Repository
	RunsDir string

	// Skip applies to every queued run; empty means full runs.
	Skip map[string]bool
}

func (e *CatalogExecutor) Execute(ctx context.Context, run *catalog.Run) (string, error) {
	dir := filepath.Join(e.RunsDir, run.ID)
	opts := Options{
		Skip:      e.Skip,
		OutputDir: dir,
		WorkDir:   dir,
		// Queued runs keep their intermediates so the artifact endpoint
		// can serve them later.
		KeepTemp: true,
		Events: func(level, message string) {
			e.Repo.AppendEvent(ctx, run.ID, level, message)
		},
	}
	if _, err := e.Orch.Run(ctx, run.Definition, opts); err != nil {
		return dir, err
	}
	return dir, nil
}

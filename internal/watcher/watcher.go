// Package watcher feeds a drop directory into the run queue. Definition
// files appearing in the watched directory are imported into the catalog,
// enqueued as runs, and moved into a processed subdirectory so they are
// picked up exactly once.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kirinuki/kirinuki-agent/internal/catalog"
	"github.com/kirinuki/kirinuki-agent/internal/clipdef"
	"github.com/kirinuki/kirinuki-agent/internal/logging"
)

// ProcessedDirName is the subdirectory picked-up files are moved into.
const ProcessedDirName = "processed"

// Catalog is the slice of the catalog service the watcher needs.
type Catalog interface {
	ImportDefinitionFile(ctx context.Context, path string) (string, *clipdef.Definition, error)
	EnqueueRun(ctx context.Context, ref string) (*catalog.Run, error)
}

var _ Catalog = (catalog.CatalogService)(nil)

// Watcher polls a drop directory for definition files. A file is claimed
// once its size holds steady across two scans, which keeps half-written
// drops from being parsed.
type Watcher struct {
	dir          string
	processedDir string
	interval     time.Duration
	catalog      Catalog
	logger       *slog.Logger

	// sizes remembers each candidate's size at the previous scan.
	sizes map[string]int64
}

// New builds a watcher over dir polling at the given interval; zero or
// negative intervals fall back to 2s.
func New(dir string, interval time.Duration, cat Catalog, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		dir:          dir,
		processedDir: filepath.Join(dir, ProcessedDirName),
		interval:     interval,
		catalog:      cat,
		logger:       logging.WithComponent(logger, "watcher"),
		sizes:        make(map[string]int64),
	}
}

// Watch scans the drop directory until ctx is cancelled. The directory and
// its processed subdirectory are created if missing.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := os.MkdirAll(w.processedDir, 0755); err != nil {
		return fmt.Errorf("create processed dir: %w", err)
	}

	w.logger.Info("watching drop directory", "dir", w.dir)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			return nil
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Error("drop directory scan failed", "error", err)
		return
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !catalog.IsDefinitionFile(entry.Name()) {
			continue
		}
		name := entry.Name()
		seen[name] = true

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if last, ok := w.sizes[name]; !ok || last != info.Size() {
			w.sizes[name] = info.Size()
			continue
		}

		w.process(ctx, name)
		delete(w.sizes, name)
	}

	// Forget candidates that disappeared before they settled.
	for name := range w.sizes {
		if !seen[name] {
			delete(w.sizes, name)
		}
	}
}

// process imports one settled file, queues a run for it, and moves it
// aside. A file the catalog rejects is still moved so it is not re-parsed
// every scan; the log line is its only trace.
func (w *Watcher) process(ctx context.Context, name string) {
	path := filepath.Join(w.dir, name)

	defName, _, err := w.catalog.ImportDefinitionFile(ctx, path)
	if err != nil {
		w.logger.Warn("dropped file rejected", "file", name, "error", err)
		w.moveProcessed(name)
		return
	}

	run, err := w.catalog.EnqueueRun(ctx, defName)
	if err != nil {
		w.logger.Error("enqueue failed for dropped file", "file", name, "error", err)
		w.moveProcessed(name)
		return
	}

	w.logger.Info("dropped definition enqueued", "file", name, "definition", defName, "run_id", run.ID)
	w.moveProcessed(name)
}

func (w *Watcher) moveProcessed(name string) {
	src := filepath.Join(w.dir, name)
	dst := filepath.Join(w.processedDir, name)
	if err := os.Rename(src, dst); err != nil {
		w.logger.Error("failed to move processed file", "file", name, "error", err)
	}
}

package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirinuki/kirinuki-agent/internal/catalog"
	"github.com/kirinuki/kirinuki-agent/internal/db"
)

const droppedDefinition = "VIDEO_URL=https://www.youtube.com/watch?v=abc123\n" +
	"START_TIME=0:00:05\n" +
	"END_TIME=0:00:15\n" +
	"TITLE=Dropped\n"

func newTestWatcher(t *testing.T) (*Watcher, *catalog.Service, string) {
	t.Helper()
	tmp := t.TempDir()

	database, err := db.New(filepath.Join(tmp, "agent.db"), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	svc := catalog.NewService(catalog.NewRepository(database.Conn()), nil)

	drop := filepath.Join(tmp, "drop")
	w := New(drop, 0, svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := os.MkdirAll(w.processedDir, 0755); err != nil {
		t.Fatal(err)
	}
	return w, svc, drop
}

func TestScan_ClaimsSettledFile(t *testing.T) {
	w, svc, drop := newTestWatcher(t)
	ctx := context.Background()

	path := filepath.Join(drop, "myclip.txt")
	if err := os.WriteFile(path, []byte(droppedDefinition), 0644); err != nil {
		t.Fatal(err)
	}

	// First scan only records the size, second scan claims.
	w.scan(ctx)
	if runs, _ := svc.ListRuns(ctx, 10); len(runs) != 0 {
		t.Fatalf("runs after first scan = %d, want 0", len(runs))
	}
	w.scan(ctx)

	def, err := svc.GetDefinition(ctx, "myclip")
	if err != nil || def == nil {
		t.Fatalf("GetDefinition = %v, %v; want stored definition", def, err)
	}
	if def.Title != "Dropped" {
		t.Errorf("title = %q", def.Title)
	}

	runs, err := svc.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].Definition != "myclip" || runs[0].Status != catalog.RunStatusQueued {
		t.Errorf("run = %+v", runs[0])
	}

	if _, err := os.Stat(filepath.Join(drop, ProcessedDirName, "myclip.txt")); err != nil {
		t.Errorf("file was not moved to processed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still in drop dir: %v", err)
	}
}

func TestScan_WaitsForGrowingFile(t *testing.T) {
	w, svc, drop := newTestWatcher(t)
	ctx := context.Background()

	path := filepath.Join(drop, "myclip.txt")
	partial := "VIDEO_URL=https://www.youtube.com/watch?v=abc123\n"
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}
	w.scan(ctx)

	// The file grows between scans, so the next scan must not claim it.
	if err := os.WriteFile(path, []byte(droppedDefinition), 0644); err != nil {
		t.Fatal(err)
	}
	w.scan(ctx)
	if runs, _ := svc.ListRuns(ctx, 10); len(runs) != 0 {
		t.Fatalf("growing file was claimed, runs = %d", len(runs))
	}

	w.scan(ctx)
	runs, err := svc.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs after settling = %d, want 1", len(runs))
	}
}

func TestScan_IgnoresOtherEntries(t *testing.T) {
	w, svc, drop := newTestWatcher(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(drop, "notes.md"), []byte("not a definition"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(drop, "archive.txt"), 0755); err != nil {
		t.Fatal(err)
	}

	w.scan(ctx)
	w.scan(ctx)

	if runs, _ := svc.ListRuns(ctx, 10); len(runs) != 0 {
		t.Fatalf("runs = %d, want 0", len(runs))
	}
	if _, err := os.Stat(filepath.Join(drop, "notes.md")); err != nil {
		t.Errorf("unrelated file was touched: %v", err)
	}
}

func TestScan_RejectedFileMovedAside(t *testing.T) {
	w, svc, drop := newTestWatcher(t)
	ctx := context.Background()

	path := filepath.Join(drop, "broken.txt")
	if err := os.WriteFile(path, []byte("START_TIME=oops\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w.scan(ctx)
	w.scan(ctx)

	if def, _ := svc.GetDefinition(ctx, "broken"); def != nil {
		t.Errorf("invalid definition was stored: %+v", def)
	}
	if runs, _ := svc.ListRuns(ctx, 10); len(runs) != 0 {
		t.Fatalf("runs = %d, want 0", len(runs))
	}
	if _, err := os.Stat(filepath.Join(drop, ProcessedDirName, "broken.txt")); err != nil {
		t.Errorf("rejected file was not moved aside: %v", err)
	}
}

func TestWatch_DropToQueue(t *testing.T) {
	w, svc, drop := newTestWatcher(t)
	w.interval = 10 * time.Millisecond // poll fast so the test settles quickly

	if err := os.WriteFile(filepath.Join(drop, "solo.txt"), []byte(droppedDefinition), 0644); err != nil {
		t.Fatal(err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(watchCtx) }()

	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for {
		runs, err := svc.ListRuns(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) == 1 {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("timed out waiting for the dropped file to be enqueued")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch returned %v", err)
	}

	if _, err := os.Stat(filepath.Join(drop, ProcessedDirName, "solo.txt")); err != nil {
		t.Errorf("file was not moved to processed: %v", err)
	}
}

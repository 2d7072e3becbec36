// Package ui is the agent's system tray: a status line for the run queue,
// a pause toggle, and a shortcut into the output directory. It only runs
// in serve mode, and only when asked for; a headless host has no tray.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/kirinuki/kirinuki-agent/internal/catalog"
	"github.com/kirinuki/kirinuki-agent/internal/logging"
)

type Tray struct {
	runner    *catalog.Runner
	outputDir string
	logger    *slog.Logger

	statusItem *systray.MenuItem
	queueItem  *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu     sync.Mutex
	onQuit func()
}

type TrayConfig struct {
	// Runner is the queue loop the pause toggle acts on.
	Runner *catalog.Runner
	// OutputDir is where "Open Output Folder" points.
	OutputDir string
	Logger    *slog.Logger
	OnQuit    func()
}

func NewTray(cfg TrayConfig) *Tray {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tray{
		runner:    cfg.Runner,
		outputDir: cfg.OutputDir,
		logger:    logging.WithComponent(logger, "tray"),
		onQuit:    cfg.OnQuit,
	}
}

// Run hands the main thread to the tray loop. It blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Kirinuki")
	systray.SetTooltip("Kirinuki Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.queueItem = systray.AddMenuItem("Active runs: 0", "Runs currently executing")
	t.queueItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause Queue", "Stop claiming queued runs")
	openItem := systray.AddMenuItem("Open Output Folder", "Show rendered clips")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Kirinuki Agent")

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-openItem.ClickedCh:
				t.openOutputDir()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			case <-ticker.C:
				t.refresh()
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause Queue")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume Queue")
		t.statusItem.SetTitle("Status: Paused")
	}
}

// refresh updates the status line from the queue. A paused queue keeps the
// title the pause toggle set.
func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil || t.runner.IsPaused() {
		return
	}

	active := t.runner.ActiveRunCount(context.Background())
	t.queueItem.SetTitle(fmt.Sprintf("Active runs: %d", active))
	if active > 0 {
		t.statusItem.SetTitle("Status: Rendering")
	} else {
		t.statusItem.SetTitle("Status: Idle")
	}
}

func (t *Tray) openOutputDir() {
	if t.outputDir == "" {
		return
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", t.outputDir)
	case "windows":
		cmd = exec.Command("explorer", t.outputDir)
	default:
		cmd = exec.Command("xdg-open", t.outputDir)
	}
	if err := cmd.Start(); err != nil {
		t.logger.Error("failed to open output directory", "dir", t.outputDir, "error", err)
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

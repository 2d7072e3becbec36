package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kirinuki/kirinuki-agent/internal/api"
	"github.com/kirinuki/kirinuki-agent/internal/catalog"
	"github.com/kirinuki/kirinuki-agent/internal/config"
	"github.com/kirinuki/kirinuki-agent/internal/db"
	"github.com/kirinuki/kirinuki-agent/internal/logging"
	"github.com/kirinuki/kirinuki-agent/internal/pipeline"
	"github.com/kirinuki/kirinuki-agent/internal/pipelines"
	"github.com/kirinuki/kirinuki-agent/internal/ui"
	"github.com/kirinuki/kirinuki-agent/internal/watcher"
	"github.com/spf13/cobra"
)

var serveTray bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent: HTTP API, run queue and drop directory watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(rootCtx context.Context) error {
	startTime := time.Now()

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.RunsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create runs dir: %w", err)
	}

	logger.Info("starting kirinuki agent", "version", config.Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())
	svc := catalog.NewService(repo, logger)

	runner := buildRunner()
	doctor := pipelines.NewCachedDoctor(runner, logger)

	probeCtx, probeCancel := context.WithTimeout(rootCtx, 30*time.Second)
	defer probeCancel()
	if caps, err := doctor.Refresh(probeCtx); err != nil {
		logger.Warn("initial tool probe failed", "error", err)
	} else {
		logger.Info("tool capabilities detected",
			"download", caps.HasDownload,
			"render", caps.HasRender,
			"transcribe", caps.HasTranscribe,
			"tools", fmt.Sprintf("%d/%d", caps.Summary.Available, caps.Summary.Total),
		)
	}

	orch, err := buildOrchestrator(svc.Source())
	if err != nil {
		return err
	}
	executor := &pipeline.CatalogExecutor{
		Orch:    orch,
		Repo:    repo,
		RunsDir: cfg.RunsDir(),
	}
	queue := catalog.NewRunner(repo, executor, logger)

	ctx, cancel := context.WithCancel(rootCtx)
	defer cancel()

	go queue.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Token:     cfg.APIToken(),
		Catalog:   svc,
		Runner:    queue,
		Doctor:    doctor,
		RunsDir:   cfg.RunsDir(),
		Version:   config.Version,
		Logger:    logger,
		StartTime: startTime,
	})
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	if dir := cfg.WatchDir(); dir != "" {
		w := watcher.New(dir, cfg.WatchInterval(), svc, logger)
		go func() {
			if err := w.Watch(ctx); err != nil {
				logger.Error("watcher stopped", "error", err)
			}
		}()
		logger.Info("watching drop directory", "dir", dir)
	}

	printBanner()

	quitCh := make(chan struct{})
	var tray *ui.Tray
	if serveTray {
		tray = ui.NewTray(ui.TrayConfig{
			Runner:    queue,
			OutputDir: cfg.RunsDir(),
			Logger:    logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
		if tray != nil {
			tray.Quit()
		}
	case <-quitCh:
		logger.Info("quit requested from tray")
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func printBanner() {
	token := "disabled"
	if cfg.APIToken() != "" {
		token = "required"
	}

	bar := strings.Repeat("═", 59)
	fmt.Println()
	fmt.Println("╔" + bar + "╗")
	fmt.Printf("║  %-57s║\n", "KIRINUKI AGENT v"+config.Version)
	fmt.Println("╠" + bar + "╣")
	fmt.Printf("║  %-57s║\n", fmt.Sprintf("API URL:    http://127.0.0.1:%d", cfg.Port()))
	fmt.Printf("║  %-57s║\n", "API Token:  "+token)
	fmt.Printf("║  %-57s║\n", "Data Dir:   "+fit(cfg.DataDir(), 45))
	fmt.Println("╚" + bar + "╝")
	fmt.Println()
}

// fit truncates s for banner display.
func fit(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

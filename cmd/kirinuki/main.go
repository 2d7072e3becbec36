package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/kirinuki/kirinuki-agent/internal/chat"
	"github.com/kirinuki/kirinuki-agent/internal/clipdef"
	"github.com/kirinuki/kirinuki-agent/internal/config"
	"github.com/kirinuki/kirinuki-agent/internal/describe"
	"github.com/kirinuki/kirinuki-agent/internal/export"
	"github.com/kirinuki/kirinuki-agent/internal/logging"
	"github.com/kirinuki/kirinuki-agent/internal/media"
	"github.com/kirinuki/kirinuki-agent/internal/overlay"
	"github.com/kirinuki/kirinuki-agent/internal/pipeline"
	"github.com/kirinuki/kirinuki-agent/internal/pipelines"
	"github.com/kirinuki/kirinuki-agent/internal/timecode"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	cfg    *config.FileConfig
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "kirinuki",
	Short:        "kirinuki - clip cutting and comment overlay toolkit",
	Long:         "Cuts sections out of YouTube live archives, overlays the chat replay\nas scrolling comment lanes and renders shareable clips.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		level := cfg.LogLevel()
		if logLevel != "" {
			level = logLevel
		}
		logger = logging.NewLogger(level, cfg.LogFormat())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default: <data dir>/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	runCmd.Flags().StringSliceVar(&runSkip, "skip", nil, "steps to skip: download, subtitles, chat, render, describe")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "override the definition's OUTPUT_DIR")
	runCmd.Flags().StringVar(&runWorkDir, "work-dir", "", "override the definition's TEMP_DIR")
	runCmd.Flags().BoolVar(&runKeepTemp, "keep-temp", false, "keep scratch files after a successful run")

	overlayCmd.Flags().StringVarP(&overlayInput, "input", "i", "", "chat file (JSON array or JSONL replay)")
	overlayCmd.Flags().StringVarP(&overlayOutput, "output", "o", "", "ASS output path (default: input with .ass)")
	overlayCmd.Flags().BoolVar(&overlayScroll, "scroll", true, "scroll comments across the screen")
	overlayCmd.MarkFlagRequired("input")

	shortsCmd.Flags().StringVarP(&shortsStart, "start", "s", "", "window start, hh:mm:ss or mm:ss")
	shortsCmd.Flags().StringVarP(&shortsEnd, "end", "e", "", "window end, hh:mm:ss or mm:ss")
	shortsCmd.Flags().StringVarP(&shortsOutput, "output", "o", "", "output path (default: <video>_shorts.mp4)")
	shortsCmd.Flags().IntVar(&shortsWidth, "width", 1080, "output width")
	shortsCmd.Flags().IntVar(&shortsHeight, "height", 1920, "output height")
	shortsCmd.MarkFlagRequired("start")
	shortsCmd.MarkFlagRequired("end")

	exportCmd.Flags().StringVarP(&exportOutputDir, "output-dir", "o", ".", "directory the EDL is written into")
	exportCmd.Flags().Float64Var(&exportFPS, "fps", 30, "timeline frame rate")
	exportCmd.Flags().StringVar(&exportTitle, "title", "", "EDL title (default: first clip's TITLE)")

	initCmd.Flags().StringVarP(&initOutput, "output", "o", "clip.txt", "where to write the sample definition")

	serveCmd.Flags().BoolVar(&serveTray, "tray", false, "show a system tray icon")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(overlayCmd)
	rootCmd.AddCommand(shortsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var (
	runSkip      []string
	runOutputDir string
	runWorkDir   string
	runKeepTemp  bool
)

var runCmd = &cobra.Command{
	Use:   "run [definition]",
	Short: "Run a clip definition chain end to end",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skip, err := pipeline.ParseSkip(runSkip)
		if err != nil {
			return err
		}

		orch, err := buildOrchestrator(nil)
		if err != nil {
			return err
		}
		res, err := orch.Run(cmd.Context(), args[0], pipeline.Options{
			Skip:      skip,
			OutputDir: runOutputDir,
			WorkDir:   runWorkDir,
			KeepTemp:  runKeepTemp,
		})
		if err != nil {
			return err
		}

		logger.Info("run finished",
			"clips", len(res.Clips),
			"subtitle_cues", res.SubtitleCues,
			"chat_events", res.ChatEvents,
			"output_dir", res.OutputDir,
		)
		if res.FinalPath != "" {
			fmt.Println(res.FinalPath)
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [definition]",
	Short: "Resolve a definition chain and print the cut windows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clips, err := clipdef.ResolveChain(cmd.Context(), clipdef.FileSource{}, args[0])
		if err != nil {
			return err
		}

		for _, clip := range clips {
			end, dur := "open", "-"
			if clip.HasEnd {
				end = timecode.FormatClock(clip.EndSec, false)
				dur = timecode.FormatClock(clip.EndSec-clip.StartSec, false)
			}
			title := clip.Title
			if title == "" {
				title = "-"
			}
			fmt.Printf("%3d  %s - %-8s  %-8s  %-30s %s\n",
				clip.Index+1, timecode.FormatClock(clip.StartSec, false), end, dur, title, clip.VideoURL)
		}
		return nil
	},
}

var (
	overlayInput  string
	overlayOutput string
	overlayScroll bool
)

var overlayCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Build a scrolling comment overlay from a chat file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !overlayScroll {
			logger.Warn("fixed-position comments are no longer supported, rendering scrolling lanes")
		}

		out := overlayOutput
		if out == "" {
			out = strings.TrimSuffix(overlayInput, filepath.Ext(overlayInput)) + ".ass"
		}

		msgs, err := loadChat(overlayInput)
		if err != nil {
			return err
		}
		n, err := overlay.WriteChatDocument(out, msgs, cfg.Overlay())
		if err != nil {
			return err
		}

		logger.Info("overlay written", "events", n, "path", out)
		fmt.Println(out)
		return nil
	},
}

// loadChat accepts both chat artifact formats: the normalized JSON array
// and the raw JSONL replay dump.
func loadChat(path string) ([]chat.Message, error) {
	msgs, err := chat.LoadMessages(path)
	if err == nil {
		return msgs, nil
	}
	if jsonl, jerr := chat.LoadJSONLFile(path); jerr == nil {
		return jsonl, nil
	}
	return nil, err
}

var (
	shortsStart  string
	shortsEnd    string
	shortsOutput string
	shortsWidth  int
	shortsHeight int
)

var shortsCmd = &cobra.Command{
	Use:   "shorts [video]",
	Short: "Cut a vertical shorts clip out of a rendered video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := timecode.ParseClock(shortsStart)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		end, err := timecode.ParseClock(shortsEnd)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		if end <= start {
			return fmt.Errorf("--end must be after --start")
		}

		src := args[0]
		out := shortsOutput
		if out == "" {
			out = strings.TrimSuffix(src, filepath.Ext(src)) + "_shorts.mp4"
		}

		runner := buildRunner()
		if _, err := runner.RenderShorts(cmd.Context(), src, out, start, end, shortsWidth, shortsHeight); err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var (
	exportOutputDir string
	exportFPS       float64
	exportTitle     string
)

var exportCmd = &cobra.Command{
	Use:   "export [definition]",
	Short: "Export a definition chain as a CMX 3600 edit decision list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clips, err := clipdef.ResolveChain(cmd.Context(), clipdef.FileSource{}, args[0])
		if err != nil {
			return err
		}

		title := exportTitle
		if title == "" {
			title = clips[0].Title
		}
		edl, err := export.FromChain(clips, title, exportFPS)
		if err != nil {
			return err
		}

		if err := export.ValidateOutputDir(exportOutputDir); err != nil {
			return err
		}
		path := filepath.Join(exportOutputDir, export.FileName(title))
		if err := os.WriteFile(path, []byte(edl), 0644); err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var initOutput string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample clip definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(initOutput); err == nil {
			return fmt.Errorf("%s already exists, not overwriting", initOutput)
		}
		if err := clipdef.WriteSample(initOutput); err != nil {
			return err
		}
		fmt.Println(initOutput)
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the external tools are installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner := buildRunner()
		caps, err := runner.RunDoctor(cmd.Context())
		if err != nil {
			return err
		}

		names := make([]string, 0, len(caps.Tools))
		for name := range caps.Tools {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			info := caps.Tools[name]
			status, detail := "ok", info.Version
			if !info.Available {
				status, detail = "missing", info.Error
			}
			fmt.Printf("%-10s %-8s %s\n", name, status, detail)
		}
		fmt.Printf("\n%d/%d tools available\n", caps.Summary.Available, caps.Summary.Total)

		if !caps.Summary.AllOK {
			return fmt.Errorf("%d tool(s) missing", caps.Summary.Total-caps.Summary.Available)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kirinuki %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildTime)
	},
}

// buildRunner makes the subprocess runner, with configured tool paths
// layered over the defaults.
func buildRunner() *pipelines.SubprocessRunner {
	pc := pipelines.DefaultConfig(logger)
	pc.YtDlpPath = cfg.YtDlpPath()
	pc.FFmpegPath = cfg.FFmpegPath()
	pc.FFprobePath = cfg.FFprobePath()
	pc.WhisperPath = cfg.WhisperPath()
	pc.VideoFormat = cfg.VideoFormat()
	pc.SubtitleLang = cfg.SubtitleLang()
	pc.WhisperModel = cfg.WhisperModel()
	return pipelines.NewRunner(pc)
}

// buildOrchestrator assembles the run pipeline. store may be nil, which
// limits definition references to the filesystem.
func buildOrchestrator(store clipdef.Source) (*pipeline.Orchestrator, error) {
	pcfg := pipeline.Config{
		Runner:   buildRunner(),
		Prober:   media.NewFFProber(logger),
		Store:    store,
		Overlay:  cfg.Overlay(),
		LogoPath: cfg.LogoPath(),
		Logger:   logger,
	}

	// Leave Describer nil unless a key is configured: a typed nil client
	// would make the interface non-nil and break the orchestrator's check.
	if key := cfg.GroqAPIKey(); key != "" {
		pcfg.Describer = describe.NewClient("", key, cfg.DescribeModel(), logger)
	}
	if path := cfg.DescribeTemplatePath(); path != "" {
		tmpl, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read describe template: %w", err)
		}
		pcfg.DescribeTemplate = string(tmpl)
	}
	return pipeline.New(pcfg), nil
}

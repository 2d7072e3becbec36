package pipelines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirinuki/kirinuki-agent/internal/media"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

var (
	// ErrNoSubtitles reports that the video carries no subtitle track in
	// the requested language. yt-dlp exits cleanly in that case, so the
	// absent file is the only signal.
	ErrNoSubtitles = errors.New("no subtitle track available")

	// ErrNoChat reports that the video has no live chat replay.
	ErrNoChat = errors.New("no live chat replay available")
)

// Runner executes the external media tools as subprocesses. It is the
// single implementation of the tool execution contract used throughout
// the agent.
type Runner interface {
	// DownloadSections downloads only [start, end] of the source video,
	// re-keyframed at the cut points. end <= 0 means "to the end".
	DownloadSections(ctx context.Context, url string, start, end float64, dest string) (RunResult, error)

	// DownloadFull downloads the whole source video.
	DownloadFull(ctx context.Context, url, dest string) (RunResult, error)

	// FetchSubtitles downloads the uploaded or auto-generated subtitle
	// track converted to SRT. Returns ErrNoSubtitles when the video has
	// no track in the configured language.
	FetchSubtitles(ctx context.Context, url, dest string) (RunResult, error)

	// FetchLiveChat downloads the live chat replay JSON. Returns ErrNoChat
	// when the video has no replay.
	FetchLiveChat(ctx context.Context, url, dest string) (RunResult, error)

	// Transcribe extracts the audio track of mediaPath and runs whisper
	// over it, writing an SRT transcript to dest.
	Transcribe(ctx context.Context, mediaPath, dest string) (RunResult, error)

	// CutClip stream-copies [start, end] out of a local file. end <= 0
	// keeps everything after start.
	CutClip(ctx context.Context, src, dest string, start, end float64) (RunResult, error)

	// Concat stream-copies the sources, in order, into one file.
	Concat(ctx context.Context, sources []string, dest string) (RunResult, error)

	// Render runs the final overlay encode described by spec.
	Render(ctx context.Context, spec media.RenderSpec) (RunResult, error)

	// RenderShorts cuts [start, end] out of a finished video and
	// re-frames it vertically on a 1080x1920 canvas.
	RenderShorts(ctx context.Context, src, dest string, start, end float64, width, height int) (RunResult, error)

	// RunDoctor probes the installed tools and reports capabilities.
	RunDoctor(ctx context.Context) (*Capabilities, error)

	// ValidateArtifact checks that a produced file exists and is non-empty.
	ValidateArtifact(path string) error
}

// Config holds the runner's configuration.
type Config struct {
	YtDlpPath   string // path to yt-dlp binary; empty = find on PATH
	FFmpegPath  string
	FFprobePath string
	WhisperPath string

	VideoFormat  string // yt-dlp format selector
	SubtitleLang string // preferred subtitle and transcription language
	WhisperModel string // whisper model size

	DownloadTimeout   time.Duration
	SubtitleTimeout   time.Duration
	ChatTimeout       time.Duration
	TranscribeTimeout time.Duration
	RenderTimeout     time.Duration
	ProbeTimeout      time.Duration // timeout for doctor version probes

	Logger     *slog.Logger
	DebugPaths bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		VideoFormat:       "bestvideo[ext=webm]+bestaudio[ext=webm]/best[ext=webm]/best",
		SubtitleLang:      "ja",
		WhisperModel:      "large",
		DownloadTimeout:   60 * time.Minute,
		SubtitleTimeout:   5 * time.Minute,
		ChatTimeout:       15 * time.Minute,
		TranscribeTimeout: 60 * time.Minute,
		RenderTimeout:     45 * time.Minute,
		ProbeTimeout:      15 * time.Second,
		Logger:            logger,
		DebugPaths:        false,
	}
}

func (c Config) ytdlp() string   { return orTool(c.YtDlpPath, "yt-dlp") }
func (c Config) ffmpeg() string  { return orTool(c.FFmpegPath, "ffmpeg") }
func (c Config) ffprobe() string { return orTool(c.FFprobePath, "ffprobe") }
func (c Config) whisper() string { return orTool(c.WhisperPath, "whisper") }

func orTool(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg Config
}

// NewRunner creates a SubprocessRunner. Missing binaries are not an error
// at construction; individual commands fail with a clear message and
// RunDoctor reports what is actually installed.
func NewRunner(cfg Config) *SubprocessRunner {
	def := DefaultConfig(nil)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.VideoFormat == "" {
		cfg.VideoFormat = def.VideoFormat
	}
	if cfg.SubtitleLang == "" {
		cfg.SubtitleLang = def.SubtitleLang
	}
	if cfg.WhisperModel == "" {
		cfg.WhisperModel = def.WhisperModel
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = def.DownloadTimeout
	}
	if cfg.SubtitleTimeout <= 0 {
		cfg.SubtitleTimeout = def.SubtitleTimeout
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = def.ChatTimeout
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = def.TranscribeTimeout
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = def.RenderTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}

	cfg.Logger.Info("tool runner initialised",
		"yt_dlp", cfg.ytdlp(),
		"ffmpeg", cfg.ffmpeg(),
		"whisper_model", cfg.WhisperModel,
		"subtitle_lang", cfg.SubtitleLang,
	)

	return &SubprocessRunner{cfg: cfg}
}

// DownloadSections downloads only the requested section of the video.
func (r *SubprocessRunner) DownloadSections(ctx context.Context, url string, start, end float64, dest string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DownloadTimeout)
	defer cancel()

	base := trimExt(dest)
	result := r.exec(ctx, r.cfg.ytdlp(), dest,
		"-f", r.cfg.VideoFormat,
		"--download-sections", formatSection(start, end),
		"--force-keyframes-at-cuts",
		"-o", base+".%(ext)s",
		url,
	)
	if !result.IsSuccess() {
		return result, fmt.Errorf("yt-dlp exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	if _, err := renameFirst(downloadCandidates(base), dest); err != nil {
		return result, fmt.Errorf("yt-dlp reported success but produced no video file for %s", r.safePath(base))
	}
	return result, nil
}

// DownloadFull downloads the whole video.
func (r *SubprocessRunner) DownloadFull(ctx context.Context, url, dest string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DownloadTimeout)
	defer cancel()

	base := trimExt(dest)
	result := r.exec(ctx, r.cfg.ytdlp(), dest,
		"-f", r.cfg.VideoFormat,
		"-o", base+".%(ext)s",
		url,
	)
	if !result.IsSuccess() {
		return result, fmt.Errorf("yt-dlp exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	if _, err := renameFirst(downloadCandidates(base), dest); err != nil {
		return result, fmt.Errorf("yt-dlp reported success but produced no video file for %s", r.safePath(base))
	}
	return result, nil
}

// FetchSubtitles downloads the subtitle track as SRT. yt-dlp names the
// file after the language it found, so the result is renamed to dest.
func (r *SubprocessRunner) FetchSubtitles(ctx context.Context, url, dest string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SubtitleTimeout)
	defer cancel()

	base := trimExt(dest)
	result := r.exec(ctx, r.cfg.ytdlp(), dest,
		"--skip-download",
		"--write-subs",
		"--write-auto-subs",
		"--sub-lang", r.cfg.SubtitleLang,
		"--sub-format", "srt",
		"--convert-subs", "srt",
		"-o", base,
		url,
	)
	if !result.IsSuccess() {
		return result, fmt.Errorf("yt-dlp exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	matched, err := renameFirst(subtitleCandidates(base, r.cfg.SubtitleLang), dest)
	if err != nil {
		return result, ErrNoSubtitles
	}
	r.cfg.Logger.Debug("subtitle track fetched", "matched", r.safePath(matched))
	return result, nil
}

// FetchLiveChat downloads the live chat replay that yt-dlp exposes as the
// pseudo-subtitle language live_chat.
func (r *SubprocessRunner) FetchLiveChat(ctx context.Context, url, dest string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ChatTimeout)
	defer cancel()

	base := trimExt(dest)
	result := r.exec(ctx, r.cfg.ytdlp(), dest,
		"--skip-download",
		"--write-subs",
		"--sub-langs", "live_chat",
		"-o", base,
		url,
	)
	if !result.IsSuccess() {
		return result, fmt.Errorf("yt-dlp exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	if _, err := renameFirst([]string{base + ".live_chat.json"}, dest); err != nil {
		return result, ErrNoChat
	}
	return result, nil
}

// Transcribe extracts a 16 kHz mono WAV from mediaPath and runs whisper
// over it. The intermediate WAV is removed afterwards.
func (r *SubprocessRunner) Transcribe(ctx context.Context, mediaPath, dest string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.TranscribeTimeout)
	defer cancel()

	base := trimExt(dest)
	audioPath := base + ".wav"
	extract := r.exec(ctx, r.cfg.ffmpeg(), audioPath, media.AudioExtractArgs(mediaPath, audioPath)...)
	if !extract.IsSuccess() {
		return extract, fmt.Errorf("audio extraction exited %d: %s", extract.ExitCode, truncate(extract.StderrTail, 512))
	}
	defer os.Remove(audioPath)

	// whisper writes <audio base>.srt into --output_dir, which resolves
	// to dest when dest carries the .srt extension.
	result := r.exec(ctx, r.cfg.whisper(), dest,
		audioPath,
		"--model", r.cfg.WhisperModel,
		"--language", r.cfg.SubtitleLang,
		"--output_format", "srt",
		"--output_dir", filepath.Dir(dest),
		"--fp16", "False",
	)
	if !result.IsSuccess() {
		return result, fmt.Errorf("whisper exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	if _, err := renameFirst([]string{base + ".srt"}, dest); err != nil {
		return result, fmt.Errorf("whisper reported success but wrote no transcript for %s", r.safePath(audioPath))
	}
	return result, nil
}

// CutClip stream-copies a time range out of a local source file.
func (r *SubprocessRunner) CutClip(ctx context.Context, src, dest string, start, end float64) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RenderTimeout)
	defer cancel()

	endArg := ""
	if end > 0 {
		endArg = secondsArg(end)
	}
	result := r.exec(ctx, r.cfg.ffmpeg(), dest, media.ExtractArgs(src, dest, secondsArg(start), endArg)...)
	if !result.IsSuccess() {
		return result, fmt.Errorf("ffmpeg exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	return result, nil
}

// Concat joins the sources into one file through the concat demuxer. The
// list file is written next to dest and removed afterwards.
func (r *SubprocessRunner) Concat(ctx context.Context, sources []string, dest string) (RunResult, error) {
	if len(sources) == 0 {
		return RunResult{ExitCode: -1}, fmt.Errorf("concat needs at least one source")
	}

	listFile := trimExt(dest) + "_concat.txt"
	if err := media.WriteConcatList(listFile, sources); err != nil {
		return RunResult{ExitCode: -1}, fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listFile)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RenderTimeout)
	defer cancel()

	result := r.exec(ctx, r.cfg.ffmpeg(), dest, media.ConcatArgs(listFile, dest)...)
	if !result.IsSuccess() {
		return result, fmt.Errorf("ffmpeg exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	return result, nil
}

// Render runs the final overlay encode.
func (r *SubprocessRunner) Render(ctx context.Context, spec media.RenderSpec) (RunResult, error) {
	args, err := media.RenderArgs(spec)
	if err != nil {
		return RunResult{ExitCode: -1}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RenderTimeout)
	defer cancel()

	result := r.exec(ctx, r.cfg.ffmpeg(), spec.Output, args...)
	if !result.IsSuccess() {
		return result, fmt.Errorf("ffmpeg exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	return result, nil
}

// RenderShorts re-frames a finished video vertically for shorts.
func (r *SubprocessRunner) RenderShorts(ctx context.Context, src, dest string, start, end float64, width, height int) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RenderTimeout)
	defer cancel()

	args := media.ShortsArgs(src, dest, secondsArg(start), secondsArg(end), width, height)
	result := r.exec(ctx, r.cfg.ffmpeg(), dest, args...)
	if !result.IsSuccess() {
		return result, fmt.Errorf("ffmpeg exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	return result, nil
}

// RunDoctor probes the installed tools.
func (r *SubprocessRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{Tools: make(map[string]ToolInfo)}

	probes := []struct {
		name        string
		bin         string
		versionArgs []string
	}{
		{"yt-dlp", r.cfg.ytdlp(), []string{"--version"}},
		{"ffmpeg", r.cfg.ffmpeg(), []string{"-version"}},
		{"ffprobe", r.cfg.ffprobe(), []string{"-version"}},
		{"whisper", r.cfg.whisper(), nil}, // whisper has no fast version flag
	}
	for _, probe := range probes {
		info := ToolInfo{}
		path, err := exec.LookPath(probe.bin)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Available = true
			info.Path = path
			if probe.versionArgs != nil {
				info.Version = r.toolVersion(ctx, path, probe.versionArgs...)
			}
		}
		caps.Tools[probe.name] = info
		caps.Summary.Total++
		if info.Available {
			caps.Summary.Available++
		}
	}
	caps.Summary.AllOK = caps.Summary.Available == caps.Summary.Total

	// Derive capability flags
	caps.HasDownload = caps.Available("yt-dlp")
	caps.HasRender = caps.Available("ffmpeg")
	caps.HasProbe = caps.Available("ffprobe")
	caps.HasTranscribe = caps.Available("whisper") && caps.Available("ffmpeg")
	caps.ProbedAt = time.Now()

	r.cfg.Logger.Info("doctor probe complete",
		"download", caps.HasDownload,
		"render", caps.HasRender,
		"probe", caps.HasProbe,
		"transcribe", caps.HasTranscribe,
		"tools_available", caps.Summary.Available,
		"tools_total", caps.Summary.Total,
	)

	return caps, nil
}

// ValidateArtifact checks that a produced file exists and is non-empty.
func (r *SubprocessRunner) ValidateArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", r.safePath(path), err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("artifact %s is empty", r.safePath(path))
	}
	return nil
}

// toolVersion runs a binary's version command and returns the version
// token from the first output line.
func (r *SubprocessRunner) toolVersion(ctx context.Context, bin string, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, bin, args...).Output()
	if err != nil {
		return ""
	}
	return parseVersionLine(filepath.Base(bin), string(out))
}

// parseVersionLine extracts the bare version from outputs like
// "ffmpeg version 6.1.1 Copyright ..." or the single-line yt-dlp form.
func parseVersionLine(tool, out string) string {
	line := out
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, tool+" version ")
	if i := strings.IndexByte(line, ' '); i >= 0 {
		line = line[:i]
	}
	return line
}

// exec is the core subprocess execution helper.
func (r *SubprocessRunner) exec(ctx context.Context, bin, outPath string, args ...string) RunResult {
	start := time.Now()

	// Ensure output directory exists
	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			r.cfg.Logger.Error("cannot create output dir", "error", err)
			return RunResult{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	cmd := exec.CommandContext(ctx, bin, args...)

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	cmd.Stdout = io.Discard // every tool writes its artifact to a file

	r.cfg.Logger.Info("executing tool",
		"tool", filepath.Base(bin),
		"args", args,
	)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		r.cfg.Logger.Warn("tool command failed",
			"tool", filepath.Base(bin),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		r.cfg.Logger.Info("tool command succeeded",
			"tool", filepath.Base(bin),
			"duration_ms", elapsed.Milliseconds(),
			"output", r.safePath(outPath),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (r *SubprocessRunner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

// downloadCandidates lists the files yt-dlp may have produced for an
// output template, in preference order.
func downloadCandidates(base string) []string {
	return []string{base + ".webm", base + ".mp4"}
}

// subtitleCandidates lists the names yt-dlp uses for a fetched subtitle
// track, in preference order.
func subtitleCandidates(base, lang string) []string {
	return []string{
		base + "." + lang + ".srt",
		base + ".ja.srt",
		base + ".srt",
	}
}

// renameFirst moves the first existing candidate file to dest and returns
// the candidate that matched. A candidate already at dest is left alone.
func renameFirst(candidates []string, dest string) (string, error) {
	for _, c := range candidates {
		if _, err := os.Stat(c); err != nil {
			continue
		}
		if c == dest {
			return c, nil
		}
		if err := os.Rename(c, dest); err != nil {
			return "", err
		}
		return c, nil
	}
	return "", os.ErrNotExist
}

// formatSection renders the yt-dlp --download-sections selector.
// end <= 0 downloads from start to the end of the video.
func formatSection(start, end float64) string {
	if end <= 0 {
		return "*" + secondsArg(start) + "-inf"
	}
	return "*" + secondsArg(start) + "-" + secondsArg(end)
}

func secondsArg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func trimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}

// Package pipeline drives a clip definition chain end to end: acquire each
// clip's footage, gather subtitles and chat, compose the global timeline,
// emit the overlay documents and render the final video.
//
// Fetch-side failures degrade: a clip without subtitles or chat still
// renders. Definition errors, an uncomposable timeline and render failures
// abort the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirinuki/kirinuki-agent/internal/chat"
	"github.com/kirinuki/kirinuki-agent/internal/clipdef"
	"github.com/kirinuki/kirinuki-agent/internal/describe"
	"github.com/kirinuki/kirinuki-agent/internal/logging"
	"github.com/kirinuki/kirinuki-agent/internal/media"
	"github.com/kirinuki/kirinuki-agent/internal/overlay"
	"github.com/kirinuki/kirinuki-agent/internal/pipelines"
	"github.com/kirinuki/kirinuki-agent/internal/subtitles"
	"github.com/kirinuki/kirinuki-agent/internal/timeline"
)

// Step names accepted by Options.Skip and the run command's --skip flag.
const (
	StepDownload  = "download"
	StepSubtitles = "subtitles"
	StepChat      = "chat"
	StepRender    = "render"
	StepDescribe  = "describe"
)

var stepNames = map[string]bool{
	StepDownload:  true,
	StepSubtitles: true,
	StepChat:      true,
	StepRender:    true,
	StepDescribe:  true,
}

// ParseSkip normalizes a list of step names, each possibly comma separated,
// into a skip set. Unknown names are rejected.
func ParseSkip(names []string) (map[string]bool, error) {
	skip := make(map[string]bool)
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			if !stepNames[name] {
				return nil, fmt.Errorf("unknown step %q (valid: download, subtitles, chat, render, describe)", name)
			}
			skip[name] = true
		}
	}
	return skip, nil
}

// fallbackDuration stands in for a clip whose probe failed. The composer
// rejects non-positive durations, and 90 seconds keeps the rest of the
// chain usable while the warning points at the real problem.
const fallbackDuration = 90.0

// Describer is the LLM-backed half of the pipeline: post-processing
// subtitle text and writing the upload description. *describe.Client
// satisfies it; a nil Describer disables both.
type Describer interface {
	GenerateDescription(ctx context.Context, template, transcript string) (string, error)
	FixSubtitles(ctx context.Context, cues []subtitles.Cue) ([]subtitles.Cue, error)
}

var _ Describer = (*describe.Client)(nil)

// Config wires an Orchestrator. Runner and Prober are required; everything
// else is optional.
type Config struct {
	Runner pipelines.Runner
	Prober media.Prober

	// Store resolves bare definition names against the catalog. Path-like
	// references always resolve from disk regardless.
	Store clipdef.Source

	Describer        Describer
	DescribeTemplate string

	Overlay  overlay.Config
	LogoPath string

	// Filter trims chat messages between extraction and scheduling. The
	// zero value keeps every message.
	Filter chat.FilterOptions

	Logger *slog.Logger
}

// Orchestrator runs clip definition chains.
type Orchestrator struct {
	runner    pipelines.Runner
	prober    media.Prober
	store     clipdef.Source
	describer Describer
	template  string
	overlay   overlay.Config
	logoPath  string
	filter    chat.FilterOptions
	logger    *slog.Logger
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Overlay.LaneCount == 0 {
		cfg.Overlay = overlay.DefaultConfig()
	}
	return &Orchestrator{
		runner:    cfg.Runner,
		prober:    cfg.Prober,
		store:     cfg.Store,
		describer: cfg.Describer,
		template:  cfg.DescribeTemplate,
		overlay:   cfg.Overlay,
		logoPath:  cfg.LogoPath,
		filter:    cfg.Filter,
		logger:    logging.WithComponent(logger, "pipeline"),
	}
}

// Options tune a single run.
type Options struct {
	// Skip names steps to leave out; see the Step constants. A skipped
	// step reuses whatever artifact is already on disk, if any.
	Skip map[string]bool

	// OutputDir and WorkDir override the definition's OUTPUT_DIR and
	// TEMP_DIR when non-empty. The run directory layout puts both in the
	// same place.
	OutputDir string
	WorkDir   string

	// KeepTemp retains scratch files (raw chat, full downloads, the
	// concat intermediate) after a successful run.
	KeepTemp bool

	// Events receives run progress lines, mirrored from the log. Level is
	// "info" or "warn".
	Events func(level, message string)
}

// Result summarizes a finished run.
type Result struct {
	Clips     []clipdef.ResolvedClip
	Timeline  *timeline.Timeline
	OutputDir string
	WorkDir   string

	// FinalPath is empty when rendering was skipped.
	FinalPath       string
	DescriptionPath string
	ManifestPath    string

	SubtitleCues int
	ChatEvents   int
}

// Run resolves ref into a clip chain and executes it. The returned error is
// nil whenever a final video (or, with render skipped, its artifacts) was
// produced; degraded steps surface as warn events instead.
func (o *Orchestrator) Run(ctx context.Context, ref string, opts Options) (*Result, error) {
	clips, err := clipdef.ResolveChain(ctx, o.sourceFor(ref), ref)
	if err != nil {
		return nil, fmt.Errorf("resolve chain: %w", err)
	}
	o.event(opts, "info", fmt.Sprintf("resolved %s into %d clip(s)", ref, len(clips)))

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = clips[0].OutputDir
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = clips[0].TempDir
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	res := &Result{Clips: clips, OutputDir: outDir, WorkDir: workDir}
	var scratch []string

	clipPaths := make([]string, len(clips))
	arts := make([]timeline.ClipArtifacts, len(clips))
	var inputWidth, inputHeight int
	var anyTranscribed bool
	for i, clip := range clips {
		clipPath := filepath.Join(workDir, "clip"+clip.Suffix()+".webm")
		if err := o.acquire(ctx, clip, clipPath, workDir, opts, &scratch); err != nil {
			return nil, err
		}
		clipPaths[i] = clipPath

		dur, w, h := o.probeClip(ctx, clipPath, opts)
		if i == 0 {
			inputWidth, inputHeight = w, h
		}

		cues, transcribed := o.gatherSubtitles(ctx, clip, clipPath, dur, workDir, opts)
		anyTranscribed = anyTranscribed || transcribed

		window := o.gatherChat(ctx, clip, dur, workDir, opts, &scratch)
		filtered := chat.Filter(window, o.filter)
		if dropped := len(window) - len(filtered); dropped > 0 {
			o.event(opts, "info", fmt.Sprintf("chat filter dropped %d message(s) in clip %d", dropped, clip.Index))
		}

		arts[i] = timeline.ClipArtifacts{
			Duration:  dur,
			ChatDelay: clip.ChatDelay,
			Subtitles: cues,
			Chat:      filtered,
		}
	}

	comp, err := timeline.Compose(arts)
	if err != nil {
		return nil, fmt.Errorf("compose timeline: %w", err)
	}
	res.Timeline = comp.Timeline
	res.SubtitleCues = len(comp.Subtitles)
	o.event(opts, "info", fmt.Sprintf("timeline composed: %d clip(s), %.1fs total, %d cue(s), %d chat message(s)",
		len(clips), comp.Timeline.Total, len(comp.Subtitles), len(comp.Chat)))

	artifacts := o.clipArtifactNames(clips, workDir)

	subsPath := ""
	if len(comp.Subtitles) > 0 {
		subsPath = filepath.Join(workDir, "subs_merged.srt")
		if err := subtitles.WriteSRTFile(subsPath, comp.Subtitles); err != nil {
			return nil, fmt.Errorf("write merged subtitles: %w", err)
		}
		artifacts["subs_merged"] = filepath.Base(subsPath)

		// Whisper output has no styling of its own. Burn it as the big
		// bottom-centered track; published tracks keep the plain SRT look.
		if anyTranscribed {
			styled := filepath.Join(workDir, "subs_styled.ass")
			if err := subtitles.WriteStyledTrack(styled, comp.Subtitles); err != nil {
				return nil, fmt.Errorf("write styled subtitles: %w", err)
			}
			artifacts["subs_styled"] = filepath.Base(styled)
			subsPath = styled
		}
	}

	overlayPath := ""
	if len(comp.Chat) > 0 {
		overlayPath = filepath.Join(workDir, "chat_overlay.ass")
		count, err := overlay.WriteChatDocument(overlayPath, comp.Chat, o.overlay)
		if err != nil {
			return nil, fmt.Errorf("write chat overlay: %w", err)
		}
		res.ChatEvents = count
		if count == 0 {
			overlayPath = ""
		} else {
			artifacts["chat_overlay"] = filepath.Base(overlayPath)
			o.event(opts, "info", fmt.Sprintf("chat overlay scheduled %d event(s)", count))
		}
	}

	titlePath := ""
	if title := clips[0].Title; title != "" {
		titlePath = filepath.Join(workDir, "title_bar.ass")
		if err := overlay.DefaultTitleBar(title).WriteDocument(titlePath); err != nil {
			return nil, fmt.Errorf("write title bar: %w", err)
		}
		artifacts["title_bar"] = filepath.Base(titlePath)
	}

	if opts.Skip[StepRender] {
		o.event(opts, "info", "render skipped")
	} else {
		input := clipPaths[0]
		if len(clipPaths) > 1 {
			input = filepath.Join(workDir, "merged.webm")
			if _, err := o.runner.Concat(ctx, clipPaths, input); err != nil {
				return nil, fmt.Errorf("concat %d clips: %w", len(clipPaths), err)
			}
			scratch = append(scratch, input)
			o.event(opts, "info", fmt.Sprintf("concatenated %d clips", len(clipPaths)))
		}

		finalPath := filepath.Join(outDir, "final.mp4")
		spec := media.RenderSpec{
			Input:            input,
			Output:           finalPath,
			SubtitlePath:     subsPath,
			ChatOverlayPath:  overlayPath,
			TitleOverlayPath: titlePath,
			Crop:             clips[0].Crop,
			InputWidth:       inputWidth,
			InputHeight:      inputHeight,
		}
		if titlePath != "" && o.logoPath != "" {
			if _, err := os.Stat(o.logoPath); err == nil {
				spec.LogoPath = o.logoPath
			} else {
				o.event(opts, "warn", "logo not found at "+o.logoPath+", rendering without it")
			}
		}
		if _, err := o.runner.Render(ctx, spec); err != nil {
			return nil, fmt.Errorf("render final video: %w", err)
		}
		res.FinalPath = finalPath
		artifacts["final"] = filepath.Base(finalPath)
		o.event(opts, "info", "rendered "+finalPath)
	}

	if o.describer != nil && !opts.Skip[StepDescribe] {
		if path := o.describeRun(ctx, comp, outDir, opts); path != "" {
			res.DescriptionPath = path
			artifacts["description"] = filepath.Base(path)
		}
	}

	manifestPath := filepath.Join(outDir, "manifest.json")
	if err := writeManifest(manifestPath, buildManifest(ref, res, arts, artifacts)); err != nil {
		o.event(opts, "warn", "failed to write manifest: "+err.Error())
	} else {
		res.ManifestPath = manifestPath
	}

	if !opts.KeepTemp {
		for _, p := range scratch {
			os.Remove(p)
		}
	}
	return res, nil
}

// sourceFor picks where the chain head resolves from. Path-shaped
// references and existing files come from disk; bare names go to the
// catalog store when one is configured.
func (o *Orchestrator) sourceFor(ref string) clipdef.Source {
	if o.store == nil {
		return clipdef.FileSource{}
	}
	if strings.ContainsRune(ref, '/') || strings.ContainsRune(ref, os.PathSeparator) {
		return clipdef.FileSource{}
	}
	if _, err := os.Stat(ref); err == nil {
		return clipdef.FileSource{}
	}
	return o.store
}

// acquire puts the clip's footage at clipPath. An existing non-empty file
// is reused as-is, so re-running a failed chain does not re-download.
func (o *Orchestrator) acquire(ctx context.Context, clip clipdef.ResolvedClip, clipPath, workDir string, opts Options, scratch *[]string) error {
	name := filepath.Base(clipPath)
	if err := o.runner.ValidateArtifact(clipPath); err == nil {
		o.event(opts, "info", "reusing existing "+name)
		return nil
	}
	if opts.Skip[StepDownload] {
		return fmt.Errorf("download skipped but %s is missing", clipPath)
	}

	end := 0.0
	if clip.HasEnd {
		end = clip.EndSec
	}

	if clip.WebmPath != "" {
		o.event(opts, "info", fmt.Sprintf("cutting %s from local source", name))
		if _, err := o.runner.CutClip(ctx, clip.WebmPath, clipPath, clip.StartSec, end); err != nil {
			return fmt.Errorf("cut clip %d from %s: %w", clip.Index, clip.WebmPath, err)
		}
		return nil
	}
	if !clip.AutoDownload {
		return fmt.Errorf("clip %d: downloading is disabled and neither WEBM_PATH nor %s exists", clip.Index, clipPath)
	}

	o.event(opts, "info", "downloading section for "+name)
	if _, err := o.runner.DownloadSections(ctx, clip.VideoURL, clip.StartSec, end, clipPath); err != nil {
		o.event(opts, "warn", "sectioned download failed, falling back to full video: "+err.Error())
		fullPath := filepath.Join(workDir, "full"+clip.Suffix()+".webm")
		if _, err := o.runner.DownloadFull(ctx, clip.VideoURL, fullPath); err != nil {
			return fmt.Errorf("download clip %d: %w", clip.Index, err)
		}
		*scratch = append(*scratch, fullPath)
		if _, err := o.runner.CutClip(ctx, fullPath, clipPath, clip.StartSec, end); err != nil {
			return fmt.Errorf("cut clip %d from full download: %w", clip.Index, err)
		}
	}
	return nil
}

// probeClip measures the acquired clip. Probe failures fall back to
// fallbackDuration rather than aborting the chain.
func (o *Orchestrator) probeClip(ctx context.Context, clipPath string, opts Options) (dur float64, width, height int) {
	info, err := o.prober.Probe(ctx, clipPath)
	if err != nil {
		o.event(opts, "warn", fmt.Sprintf("probe failed for %s, assuming %.0fs: %v",
			filepath.Base(clipPath), fallbackDuration, err))
		return fallbackDuration, 0, 0
	}
	if info.Duration <= 0 {
		o.event(opts, "warn", fmt.Sprintf("probe reported no duration for %s, assuming %.0fs",
			filepath.Base(clipPath), fallbackDuration))
		return fallbackDuration, info.Width, info.Height
	}
	return info.Duration, info.Width, info.Height
}

// gatherSubtitles produces the clip-local cue list. The fetched track is
// windowed from the source axis; a missing track falls back to whisper
// transcription of the clip itself, which is already clip-local. Both
// failing just means no subtitles. transcribed reports whether the cues
// came from whisper rather than a published track.
func (o *Orchestrator) gatherSubtitles(ctx context.Context, clip clipdef.ResolvedClip, clipPath string, dur float64, workDir string, opts Options) (_ []subtitles.Cue, transcribed bool) {
	subsClip := filepath.Join(workDir, "subs_clip"+clip.Suffix()+".srt")
	if opts.Skip[StepSubtitles] {
		cues, err := subtitles.ParseSRTFile(subsClip)
		if err != nil {
			o.event(opts, "info", "subtitles skipped")
			return nil, false
		}
		o.event(opts, "info", fmt.Sprintf("subtitles skipped, reusing %d cue(s) from %s", len(cues), filepath.Base(subsClip)))
		return cues, false
	}

	end := clip.StartSec + dur
	if clip.HasEnd {
		end = clip.EndSec
	}

	var cues []subtitles.Cue
	subsFull := filepath.Join(workDir, "subs_full"+clip.Suffix()+".srt")
	if _, err := o.runner.FetchSubtitles(ctx, clip.VideoURL, subsFull); err != nil {
		if errors.Is(err, pipelines.ErrNoSubtitles) {
			o.event(opts, "warn", "no subtitle track published, transcribing audio")
		} else {
			o.event(opts, "warn", "subtitle fetch failed, transcribing audio: "+err.Error())
		}
		if _, err := o.runner.Transcribe(ctx, clipPath, subsClip); err != nil {
			o.event(opts, "warn", "transcription failed, continuing without subtitles: "+err.Error())
			return nil, false
		}
		cues, err = subtitles.ParseSRTFile(subsClip)
		if err != nil {
			o.event(opts, "warn", "transcript unreadable, continuing without subtitles: "+err.Error())
			return nil, false
		}
		transcribed = true
	} else {
		full, err := subtitles.ParseSRTFile(subsFull)
		if err != nil {
			o.event(opts, "warn", "fetched subtitles unreadable, continuing without: "+err.Error())
			return nil, false
		}
		cues = subtitles.ExtractWindow(full, clip.StartSec, end, clip.HasEnd)
	}

	cues = subtitles.FixCues(cues)
	if o.describer != nil && len(cues) > 0 {
		fixed, err := o.describer.FixSubtitles(ctx, cues)
		if err != nil {
			o.event(opts, "warn", "subtitle repair failed, keeping rule-based text: "+err.Error())
		} else {
			cues = fixed
		}
	}

	if len(cues) > 0 {
		if err := subtitles.WriteSRTFile(subsClip, cues); err != nil {
			o.event(opts, "warn", "failed to write "+filepath.Base(subsClip)+": "+err.Error())
		}
	}
	o.event(opts, "info", fmt.Sprintf("%d subtitle cue(s) for clip %d", len(cues), clip.Index))
	return cues, transcribed
}

// gatherChat produces the clip-local chat window. Any failure along the
// fetch, normalize, window path degrades to an empty stream.
func (o *Orchestrator) gatherChat(ctx context.Context, clip clipdef.ResolvedClip, dur float64, workDir string, opts Options, scratch *[]string) []chat.Message {
	chatClip := filepath.Join(workDir, "chat_clip"+clip.Suffix()+".json")
	if opts.Skip[StepChat] {
		msgs, err := chat.LoadMessages(chatClip)
		if err != nil {
			o.event(opts, "info", "chat skipped")
			return nil
		}
		o.event(opts, "info", fmt.Sprintf("chat skipped, reusing %d message(s) from %s", len(msgs), filepath.Base(chatClip)))
		return msgs
	}

	raw := filepath.Join(workDir, "chat_raw"+clip.Suffix()+".json")
	if _, err := o.runner.FetchLiveChat(ctx, clip.VideoURL, raw); err != nil {
		if errors.Is(err, pipelines.ErrNoChat) {
			o.event(opts, "warn", "no live chat replay, continuing without chat")
		} else {
			o.event(opts, "warn", "chat fetch failed, continuing without chat: "+err.Error())
		}
		return nil
	}
	*scratch = append(*scratch, raw)

	chatFull := filepath.Join(workDir, "chat_full"+clip.Suffix()+".json")
	total, err := chat.NormalizeReplayFile(raw, chatFull)
	if err != nil {
		o.event(opts, "warn", "chat replay unreadable, continuing without chat: "+err.Error())
		return nil
	}
	msgs, err := chat.LoadJSONLFile(chatFull)
	if err != nil {
		o.event(opts, "warn", "normalized chat unreadable, continuing without chat: "+err.Error())
		return nil
	}

	end := clip.StartSec + dur
	if clip.HasEnd {
		end = clip.EndSec
	}
	window := chat.ExtractWindow(msgs, clip.StartSec, end, clip.HasEnd)
	if err := chat.SaveMessages(chatClip, window); err != nil {
		o.event(opts, "warn", "failed to write "+filepath.Base(chatClip)+": "+err.Error())
	}
	o.event(opts, "info", fmt.Sprintf("chat: %d of %d message(s) in clip %d window", len(window), total, clip.Index))
	return window
}

// describeRun writes description.txt from the merged transcript. Failures
// only warn: by this point the video has already rendered.
func (o *Orchestrator) describeRun(ctx context.Context, comp *timeline.Composition, outDir string, opts Options) string {
	if len(comp.Subtitles) == 0 {
		o.event(opts, "info", "no subtitles, skipping description")
		return ""
	}
	transcript := describe.ExtractTranscript(comp.Subtitles)
	text, err := o.describer.GenerateDescription(ctx, o.template, transcript)
	if err != nil {
		o.event(opts, "warn", "description generation failed, continuing without: "+err.Error())
		return ""
	}
	path := filepath.Join(outDir, "description.txt")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		o.event(opts, "warn", "failed to write description: "+err.Error())
		return ""
	}
	o.event(opts, "info", "description written")
	return path
}

// clipArtifactNames records the per-clip files that exist after the gather
// phase, keyed by logical name.
func (o *Orchestrator) clipArtifactNames(clips []clipdef.ResolvedClip, workDir string) map[string]string {
	artifacts := make(map[string]string)
	for _, clip := range clips {
		for _, base := range []string{
			"clip" + clip.Suffix() + ".webm",
			"subs_full" + clip.Suffix() + ".srt",
			"subs_clip" + clip.Suffix() + ".srt",
			"chat_full" + clip.Suffix() + ".json",
			"chat_clip" + clip.Suffix() + ".json",
		} {
			if info, err := os.Stat(filepath.Join(workDir, base)); err == nil && info.Size() > 0 {
				key := strings.TrimSuffix(base, filepath.Ext(base))
				artifacts[key] = base
			}
		}
	}
	return artifacts
}

func (o *Orchestrator) event(opts Options, level, message string) {
	switch level {
	case "warn":
		o.logger.Warn(message)
	case "error":
		o.logger.Error(message)
	default:
		o.logger.Info(message)
	}
	if opts.Events != nil {
		opts.Events(level, message)
	}
}

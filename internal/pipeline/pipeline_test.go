package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirinuki/kirinuki-agent/internal/catalog"
	"github.com/kirinuki/kirinuki-agent/internal/chat"
	"github.com/kirinuki/kirinuki-agent/internal/db"
	"github.com/kirinuki/kirinuki-agent/internal/media"
	"github.com/kirinuki/kirinuki-agent/internal/pipelines"
	"github.com/kirinuki/kirinuki-agent/internal/subtitles"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeDef(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// Source-axis fixtures for a 1:25:05 to 1:30:20 window. Two cues and two
// chat messages land inside, one of each falls past the end.
const fullSRT = `1
01:25:10,000 --> 01:25:12,000
こんにちは

2
01:26:00,000 --> 01:26:03,500
つづきです

3
01:31:00,000 --> 01:31:02,000
窓の外
`

const rawReplay = `{"replayChatItemAction":{"videoOffsetTimeMsec":"5110000","actions":[{"addChatItemAction":{"item":{"liveChatTextMessageRenderer":{"message":{"runs":[{"text":"草"}]},"authorName":{"simpleText":"viewer1"},"timestampUsec":"1700000000000000"}}}}]}}
{"replayChatItemAction":{"videoOffsetTimeMsec":"5200000","actions":[{"addChatItemAction":{"item":{}}}]}}
{"replayChatItemAction":{"videoOffsetTimeMsec":"5400000","actions":[{"addChatItemAction":{"item":{"liveChatTextMessageRenderer":{"message":{"runs":[{"text":"それな"}]},"authorName":{"simpleText":"viewer2"},"timestampUsec":"1700000290000000"}}}}]}}
{"replayChatItemAction":{"videoOffsetTimeMsec":"5500000","actions":[{"addChatItemAction":{"item":{"liveChatTextMessageRenderer":{"message":{"runs":[{"text":"おそい"}]},"authorName":{"simpleText":"viewer3"},"timestampUsec":"1700000390000000"}}}}]}}
`

const singleDef = `VIDEO_URL=https://www.youtube.com/watch?v=abc123
START_TIME=1:25:05
END_TIME=1:30:20
TITLE=Test Clip
`

// Whisper output is already clip-local. The first line is long enough to
// pick up a forced break in the styled track.
const transcriptSRT = `1
00:00:05,000 --> 00:00:08,000
はい、どうもこんにちは今日はですね皆さんにお話があります

2
00:01:00,000 --> 00:01:04,000
短い行
`

func happyStub() *pipelines.StubRunner {
	return &pipelines.StubRunner{
		Outputs: map[string][]byte{
			"FetchSubtitles": []byte(fullSRT),
			"FetchLiveChat":  []byte(rawReplay),
		},
	}
}

// quietStub degrades every fetch so runs exercise the render path alone.
func quietStub() *pipelines.StubRunner {
	return &pipelines.StubRunner{
		Fail: map[string]error{
			"FetchSubtitles": pipelines.ErrNoSubtitles,
			"Transcribe":     errors.New("whisper unavailable"),
			"FetchLiveChat":  pipelines.ErrNoChat,
		},
	}
}

func prober1080(duration float64) *media.StubProber {
	return &media.StubProber{Result: media.ProbeResult{Duration: duration, Width: 1920, Height: 1080}}
}

func TestParseSkip(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr bool
	}{
		{name: "empty", in: nil, want: nil},
		{name: "single", in: []string{"render"}, want: []string{"render"}},
		{name: "comma separated", in: []string{"render,chat"}, want: []string{"render", "chat"}},
		{name: "mixed case and spaces", in: []string{" Download ", "DESCRIBE"}, want: []string{"download", "describe"}},
		{name: "unknown step", in: []string{"upload"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skip, err := ParseSkip(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(skip) != len(tt.want) {
				t.Fatalf("skip = %v, want %v", skip, tt.want)
			}
			for _, name := range tt.want {
				if !skip[name] {
					t.Errorf("missing %q in %v", name, skip)
				}
			}
		})
	}
}

func TestRun_SingleClip(t *testing.T) {
	tmp := t.TempDir()
	defPath := writeDef(t, tmp, "clip.txt", singleDef)
	outDir := filepath.Join(tmp, "out")
	workDir := filepath.Join(tmp, "work")

	stub := happyStub()
	orch := New(Config{Runner: stub, Prober: prober1080(315), Logger: testLogger()})

	res, err := orch.Run(context.Background(), defPath, Options{OutputDir: outDir, WorkDir: workDir})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if res.Timeline.Total != 315 {
		t.Errorf("timeline total = %v, want 315", res.Timeline.Total)
	}
	if res.SubtitleCues != 2 {
		t.Errorf("subtitle cues = %d, want 2", res.SubtitleCues)
	}
	if res.ChatEvents != 2 {
		t.Errorf("chat events = %d, want 2", res.ChatEvents)
	}
	if res.FinalPath != filepath.Join(outDir, "final.mp4") {
		t.Errorf("final path = %q", res.FinalPath)
	}

	for _, name := range []string{
		"clip.webm", "subs_full.srt", "subs_clip.srt",
		"chat_full.json", "chat_clip.json",
		"subs_merged.srt", "chat_overlay.ass", "title_bar.ass",
	} {
		if _, err := os.Stat(filepath.Join(workDir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "final.mp4")); err != nil {
		t.Errorf("missing final.mp4: %v", err)
	}

	// Raw chat is scratch and should be cleaned up without KeepTemp.
	if _, err := os.Stat(filepath.Join(workDir, "chat_raw.json")); !os.IsNotExist(err) {
		t.Errorf("chat_raw.json should have been removed, stat err = %v", err)
	}

	// The windowed subtitles are clip-local and renumbered.
	cues, err := subtitles.ParseSRTFile(filepath.Join(workDir, "subs_clip.srt"))
	if err != nil {
		t.Fatalf("parse subs_clip.srt: %v", err)
	}
	if len(cues) != 2 || cues[0].Start != 5 || cues[1].Start != 55 {
		t.Errorf("windowed cues = %+v", cues)
	}

	var manifest Manifest
	data, err := os.ReadFile(filepath.Join(outDir, "manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.Definition != defPath {
		t.Errorf("manifest definition = %q, want %q", manifest.Definition, defPath)
	}
	if len(manifest.Clips) != 1 || manifest.Clips[0].Duration != 315 {
		t.Errorf("manifest clips = %+v", manifest.Clips)
	}
	if manifest.Artifacts["final"] != "final.mp4" {
		t.Errorf("manifest artifacts = %v", manifest.Artifacts)
	}
	if manifest.Artifacts["chat_overlay"] != "chat_overlay.ass" {
		t.Errorf("manifest missing chat_overlay: %v", manifest.Artifacts)
	}
	if manifest.GeneratedAt.IsZero() {
		t.Error("manifest generated_at is zero")
	}

	for _, call := range stub.Calls {
		if call == "DownloadFull" {
			t.Error("full download should not run when the sectioned download works")
		}
	}
}

func TestRun_ChatFilterTrimsBeforeScheduling(t *testing.T) {
	tmp := t.TempDir()
	defPath := writeDef(t, tmp, "clip.txt", singleDef)
	workDir := filepath.Join(tmp, "work")

	orch := New(Config{
		Runner: happyStub(),
		Prober: prober1080(315),
		Filter: chat.FilterOptions{MinLength: 2},
		Logger: testLogger(),
	})

	res, err := orch.Run(context.Background(), defPath, Options{OutputDir: filepath.Join(tmp, "out"), WorkDir: workDir})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.ChatEvents != 1 {
		t.Errorf("chat events = %d, want 1 after dropping the single-rune message", res.ChatEvents)
	}

	// The window artifact keeps everything; only the scheduling input is
	// trimmed.
	msgs, err := chat.LoadMessages(filepath.Join(workDir, "chat_clip.json"))
	if err != nil {
		t.Fatalf("load chat_clip.json: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("chat_clip.json has %d message(s), want 2", len(msgs))
	}
}

func TestRun_TranscribedSubtitlesBurnStyledTrack(t *testing.T) {
	tmp := t.TempDir()
	defPath := writeDef(t, tmp, "clip.txt", singleDef)
	workDir := filepath.Join(tmp, "work")

	stub := &pipelines.StubRunner{
		Fail: map[string]error{
			"FetchSubtitles": pipelines.ErrNoSubtitles,
			"FetchLiveChat":  pipelines.ErrNoChat,
		},
		Outputs: map[string][]byte{"Transcribe": []byte(transcriptSRT)},
	}
	orch := New(Config{Runner: stub, Prober: prober1080(315), Logger: testLogger()})

	res, err := orch.Run(context.Background(), defPath, Options{OutputDir: filepath.Join(tmp, "out"), WorkDir: workDir})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.SubtitleCues != 2 {
		t.Errorf("subtitle cues = %d, want 2", res.SubtitleCues)
	}

	styled := filepath.Join(workDir, "subs_styled.ass")
	data, err := os.ReadFile(styled)
	if err != nil {
		t.Fatalf("read styled track: %v", err)
	}
	if !strings.Contains(string(data), "Style: Default,Hiragino Sans,110") {
		t.Error("styled track missing the dialogue style")
	}
	if !strings.Contains(string(data), `\N`) {
		t.Error("overlong transcript line should carry a forced break")
	}

	// The merged SRT is still written, but the render burns the styled
	// track.
	if _, err := os.Stat(filepath.Join(workDir, "subs_merged.srt")); err != nil {
		t.Errorf("missing subs_merged.srt: %v", err)
	}
	if len(stub.RenderSpecs) != 1 {
		t.Fatalf("render calls = %d, want 1", len(stub.RenderSpecs))
	}
	if got := stub.RenderSpecs[0].SubtitlePath; got != styled {
		t.Errorf("render subtitle path = %q, want %q", got, styled)
	}
}

func TestRun_ChainConcatsClips(t *testing.T) {
	tmp := t.TempDir()
	writeDef(t, tmp, "second.txt", "VIDEO_URL=https://www.youtube.com/watch?v=def456\nSTART_TIME=0:01:00\nEND_TIME=0:01:45\n")
	first := writeDef(t, tmp, "first.txt", "VIDEO_URL=https://www.youtube.com/watch?v=abc123\nSTART_TIME=0:00:10\nEND_TIME=0:00:40\nTITLE=Chain\nNEXT=second.txt\n")
	runDir := filepath.Join(tmp, "run")

	stub := quietStub()
	orch := New(Config{Runner: stub, Prober: prober1080(30), Logger: testLogger()})

	res, err := orch.Run(context.Background(), first, Options{OutputDir: runDir, WorkDir: runDir, KeepTemp: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(res.Clips) != 2 {
		t.Fatalf("clips = %d, want 2", len(res.Clips))
	}
	// The probed duration drives the timeline, not the nominal cut window.
	if res.Timeline.Total != 60 {
		t.Errorf("timeline total = %v, want 60", res.Timeline.Total)
	}
	if res.Timeline.Segments[1].Offset != 30 {
		t.Errorf("second segment offset = %v, want 30", res.Timeline.Segments[1].Offset)
	}
	if res.SubtitleCues != 0 {
		t.Errorf("subtitle cues = %d, want 0", res.SubtitleCues)
	}

	for _, name := range []string{"clip.webm", "clip_1.webm", "merged.webm", "title_bar.ass", "final.mp4"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	for _, name := range []string{"subs_merged.srt", "chat_overlay.ass"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); !os.IsNotExist(err) {
			t.Errorf("%s should not exist without cues or chat", name)
		}
	}

	concats := 0
	for _, call := range stub.Calls {
		if call == "Concat" {
			concats++
		}
	}
	if concats != 1 {
		t.Errorf("Concat called %d times, want 1", concats)
	}
}

func TestRun_FallbackFullDownload(t *testing.T) {
	tmp := t.TempDir()
	defPath := writeDef(t, tmp, "clip.txt", singleDef)
	runDir := filepath.Join(tmp, "run")

	stub := quietStub()
	stub.Fail["DownloadSections"] = errors.New("HTTP 403")
	orch := New(Config{Runner: stub, Prober: prober1080(315), Logger: testLogger()})

	res, err := orch.Run(context.Background(), defPath, Options{OutputDir: runDir, WorkDir: runDir})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.FinalPath == "" {
		t.Error("expected a rendered final path")
	}

	var sawFull, sawCut bool
	for _, call := range stub.Calls {
		switch call {
		case "DownloadFull":
			sawFull = true
		case "CutClip":
			sawCut = true
		}
	}
	if !sawFull || !sawCut {
		t.Errorf("calls = %v, want DownloadFull then CutClip", stub.Calls)
	}

	if _, err := os.Stat(filepath.Join(runDir, "clip.webm")); err != nil {
		t.Errorf("missing clip.webm: %v", err)
	}
	// The full download is scratch and is removed after a successful run.
	if _, err := os.Stat(filepath.Join(runDir, "full.webm")); !os.IsNotExist(err) {
		t.Errorf("full.webm should have been removed, stat err = %v", err)
	}
}

func TestRun_RenderFailureFatal(t *testing.T) {
	tmp := t.TempDir()
	defPath := writeDef(t, tmp, "clip.txt", singleDef)
	runDir := filepath.Join(tmp, "run")

	stub := quietStub()
	stub.Fail["Render"] = errors.New("filter graph error")
	orch := New(Config{Runner: stub, Prober: prober1080(315), Logger: testLogger()})

	_, err := orch.Run(context.Background(), defPath, Options{OutputDir: runDir, WorkDir: runDir})
	if err == nil {
		t.Fatal("expected render failure to be fatal")
	}
	if !strings.Contains(err.Error(), "render final video") {
		t.Errorf("error = %v", err)
	}
}

func TestRun_SkipStepsReusesDisk(t *testing.T) {
	tmp := t.TempDir()
	defPath := writeDef(t, tmp, "clip.txt", singleDef)
	runDir := filepath.Join(tmp, "run")
	if err := os.MkdirAll(runDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "clip.webm"), []byte("existing"), 0644); err != nil {
		t.Fatal(err)
	}

	stub := &pipelines.StubRunner{}
	orch := New(Config{Runner: stub, Prober: prober1080(315), Logger: testLogger()})

	skip := map[string]bool{StepDownload: true, StepSubtitles: true, StepChat: true, StepRender: true}
	res, err := orch.Run(context.Background(), defPath, Options{Skip: skip, OutputDir: runDir, WorkDir: runDir})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if res.FinalPath != "" {
		t.Errorf("final path = %q, want empty with render skipped", res.FinalPath)
	}
	if res.Timeline.Total != 315 {
		t.Errorf("timeline total = %v, want 315", res.Timeline.Total)
	}
	if len(stub.Calls) != 0 {
		t.Errorf("unexpected runner calls %v", stub.Calls)
	}
	if _, err := os.Stat(filepath.Join(runDir, "manifest.json")); err != nil {
		t.Errorf("manifest should be written even with render skipped: %v", err)
	}
}

func TestRun_SkipDownloadMissingClip(t *testing.T) {
	tmp := t.TempDir()
	defPath := writeDef(t, tmp, "clip.txt", singleDef)
	runDir := filepath.Join(tmp, "run")

	orch := New(Config{Runner: &pipelines.StubRunner{}, Prober: prober1080(315), Logger: testLogger()})

	_, err := orch.Run(context.Background(), defPath, Options{
		Skip:      map[string]bool{StepDownload: true},
		OutputDir: runDir, WorkDir: runDir,
	})
	if err == nil {
		t.Fatal("expected missing clip to fail when download is skipped")
	}
	if !strings.Contains(err.Error(), "download skipped") {
		t.Errorf("error = %v", err)
	}
}

func TestRun_ProbeFailureFallsBack(t *testing.T) {
	tmp := t.TempDir()
	defPath := writeDef(t, tmp, "clip.txt", singleDef)
	runDir := filepath.Join(tmp, "run")

	var warns []string
	orch := New(Config{
		Runner: quietStub(),
		Prober: &media.StubProber{Err: errors.New("ffprobe missing")},
		Logger: testLogger(),
	})

	res, err := orch.Run(context.Background(), defPath, Options{
		OutputDir: runDir, WorkDir: runDir,
		Events: func(level, message string) {
			if level == "warn" {
				warns = append(warns, message)
			}
		},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Timeline.Total != fallbackDuration {
		t.Errorf("timeline total = %v, want %v", res.Timeline.Total, fallbackDuration)
	}

	found := false
	for _, w := range warns {
		if strings.Contains(w, "probe failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("no probe warning in %v", warns)
	}
}

func TestRun_AutoDownloadOffRequiresSource(t *testing.T) {
	tmp := t.TempDir()
	defPath := writeDef(t, tmp, "clip.txt",
		"VIDEO_URL=https://www.youtube.com/watch?v=abc123\nSTART_TIME=0:00:05\nAUTO_DOWNLOAD=false\n")
	runDir := filepath.Join(tmp, "run")

	orch := New(Config{Runner: &pipelines.StubRunner{}, Prober: prober1080(10), Logger: testLogger()})

	_, err := orch.Run(context.Background(), defPath, Options{OutputDir: runDir, WorkDir: runDir})
	if err == nil {
		t.Fatal("expected failure without a source")
	}
	if !strings.Contains(err.Error(), "downloading is disabled") {
		t.Errorf("error = %v", err)
	}
}

func TestRun_WebmPathCutsLocalSource(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "source.webm")
	if err := os.WriteFile(src, []byte("source"), 0644); err != nil {
		t.Fatal(err)
	}
	defPath := writeDef(t, tmp, "clip.txt",
		"VIDEO_URL=https://www.youtube.com/watch?v=abc123\nSTART_TIME=0:00:05\nEND_TIME=0:00:15\nWEBM_PATH="+src+"\n")
	runDir := filepath.Join(tmp, "run")

	stub := quietStub()
	orch := New(Config{Runner: stub, Prober: prober1080(10), Logger: testLogger()})

	if _, err := orch.Run(context.Background(), defPath, Options{OutputDir: runDir, WorkDir: runDir}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var sawCut bool
	for _, call := range stub.Calls {
		if call == "DownloadSections" || call == "DownloadFull" {
			t.Errorf("unexpected download call with WEBM_PATH set: %v", stub.Calls)
		}
		if call == "CutClip" {
			sawCut = true
		}
	}
	if !sawCut {
		t.Errorf("calls = %v, want CutClip", stub.Calls)
	}
}

type fakeDescriber struct {
	desc     string
	genErr   error
	fixErr   error
	genCalls atomic.Int32
	fixCalls atomic.Int32
}

func (f *fakeDescriber) GenerateDescription(ctx context.Context, template, transcript string) (string, error) {
	f.genCalls.Add(1)
	if f.genErr != nil {
		return "", f.genErr
	}
	return f.desc, nil
}

func (f *fakeDescriber) FixSubtitles(ctx context.Context, cues []subtitles.Cue) ([]subtitles.Cue, error) {
	f.fixCalls.Add(1)
	if f.fixErr != nil {
		return nil, f.fixErr
	}
	return cues, nil
}

func TestRun_DescriberWritesDescription(t *testing.T) {
	tmp := t.TempDir()
	defPath := writeDef(t, tmp, "clip.txt", singleDef)
	runDir := filepath.Join(tmp, "run")

	desc := &fakeDescriber{desc: "切り抜きです。\n#Vtuber"}
	orch := New(Config{
		Runner:    happyStub(),
		Prober:    prober1080(315),
		Describer: desc,
		Logger:    testLogger(),
	})

	res, err := orch.Run(context.Background(), defPath, Options{OutputDir: runDir, WorkDir: runDir})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if desc.fixCalls.Load() != 1 {
		t.Errorf("FixSubtitles calls = %d, want 1", desc.fixCalls.Load())
	}
	if desc.genCalls.Load() != 1 {
		t.Errorf("GenerateDescription calls = %d, want 1", desc.genCalls.Load())
	}
	data, err := os.ReadFile(res.DescriptionPath)
	if err != nil {
		t.Fatalf("read description: %v", err)
	}
	if string(data) != desc.desc {
		t.Errorf("description = %q", data)
	}
}

func TestRun_DescribeFailureNonFatal(t *testing.T) {
	tmp := t.TempDir()
	defPath := writeDef(t, tmp, "clip.txt", singleDef)
	runDir := filepath.Join(tmp, "run")

	desc := &fakeDescriber{genErr: errors.New("rate limited"), fixErr: errors.New("rate limited")}
	orch := New(Config{
		Runner:    happyStub(),
		Prober:    prober1080(315),
		Describer: desc,
		Logger:    testLogger(),
	})

	res, err := orch.Run(context.Background(), defPath, Options{OutputDir: runDir, WorkDir: runDir})
	if err != nil {
		t.Fatalf("describe failures must not fail the run: %v", err)
	}
	if res.DescriptionPath != "" {
		t.Errorf("description path = %q, want empty", res.DescriptionPath)
	}
	// Repair failed, so the rule-fixed cues survive untouched.
	if res.SubtitleCues != 2 {
		t.Errorf("subtitle cues = %d, want 2", res.SubtitleCues)
	}
	if _, err := os.Stat(filepath.Join(runDir, "final.mp4")); err != nil {
		t.Errorf("missing final.mp4: %v", err)
	}
}

func TestCatalogExecutor_RunsFromCatalog(t *testing.T) {
	tmp := t.TempDir()
	database, err := db.New(filepath.Join(tmp, "agent.db"), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()
	repo := catalog.NewRepository(database.Conn())
	svc := catalog.NewService(repo, nil)
	ctx := context.Background()

	if _, err := svc.ImportDefinition(ctx, "myclip",
		"VIDEO_URL=https://www.youtube.com/watch?v=abc123\nSTART_TIME=0:00:05\nEND_TIME=0:00:15\nTITLE=Exec\n"); err != nil {
		t.Fatalf("import definition: %v", err)
	}
	run := &catalog.Run{ID: "run-1", Definition: "myclip", Status: catalog.RunStatusQueued}
	if err := repo.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	orch := New(Config{
		Runner: quietStub(),
		Prober: prober1080(10),
		Store:  svc.Source(),
		Logger: testLogger(),
	})
	exec := &CatalogExecutor{Orch: orch, Repo: repo, RunsDir: filepath.Join(tmp, "runs")}

	dir, err := exec.Execute(ctx, run)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if dir != filepath.Join(tmp, "runs", "run-1") {
		t.Errorf("artifact dir = %q", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "final.mp4")); err != nil {
		t.Errorf("missing final.mp4: %v", err)
	}
	// Queued runs keep their scratch files for the artifact endpoint.
	if _, err := os.Stat(filepath.Join(dir, "clip.webm")); err != nil {
		t.Errorf("missing clip.webm: %v", err)
	}

	events, err := repo.ListEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("no events recorded")
	}
	var sawResolve, sawWarn bool
	for _, ev := range events {
		if strings.Contains(ev.Message, "resolved myclip") {
			sawResolve = true
		}
		if ev.Level == "warn" {
			sawWarn = true
		}
	}
	if !sawResolve {
		t.Error("missing resolve event")
	}
	if !sawWarn {
		t.Error("expected warn events from degraded fetches")
	}
}

package pipelines

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kirinuki/kirinuki-agent/internal/media"
)

// StubRunner is a Runner implementation for tests. Every call records its
// method name and, unless the method is listed in Fail, writes the
// configured (or placeholder) content to the destination path.
type StubRunner struct {
	Fail    map[string]error  // method name -> error to return
	Outputs map[string][]byte // method name -> content written to dest
	Caps    *Capabilities     // RunDoctor result; nil = everything available
	Calls   []string          // method names in invocation order

	RenderSpecs []media.RenderSpec // every spec passed to Render
}

func (s *StubRunner) call(method, dest string) (RunResult, error) {
	s.Calls = append(s.Calls, method)
	if err, ok := s.Fail[method]; ok {
		return RunResult{ExitCode: 1, OutputPath: dest, StderrTail: err.Error()}, err
	}
	if dest != "" {
		content, ok := s.Outputs[method]
		if !ok {
			content = []byte("stub")
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return RunResult{ExitCode: -1}, err
		}
		if err := os.WriteFile(dest, content, 0644); err != nil {
			return RunResult{ExitCode: -1}, err
		}
	}
	return RunResult{ExitCode: 0, OutputPath: dest}, nil
}

func (s *StubRunner) DownloadSections(ctx context.Context, url string, start, end float64, dest string) (RunResult, error) {
	return s.call("DownloadSections", dest)
}

func (s *StubRunner) DownloadFull(ctx context.Context, url, dest string) (RunResult, error) {
	return s.call("DownloadFull", dest)
}

func (s *StubRunner) FetchSubtitles(ctx context.Context, url, dest string) (RunResult, error) {
	return s.call("FetchSubtitles", dest)
}

func (s *StubRunner) FetchLiveChat(ctx context.Context, url, dest string) (RunResult, error) {
	return s.call("FetchLiveChat", dest)
}

func (s *StubRunner) Transcribe(ctx context.Context, mediaPath, dest string) (RunResult, error) {
	return s.call("Transcribe", dest)
}

func (s *StubRunner) CutClip(ctx context.Context, src, dest string, start, end float64) (RunResult, error) {
	return s.call("CutClip", dest)
}

func (s *StubRunner) Concat(ctx context.Context, sources []string, dest string) (RunResult, error) {
	return s.call("Concat", dest)
}

func (s *StubRunner) Render(ctx context.Context, spec media.RenderSpec) (RunResult, error) {
	s.RenderSpecs = append(s.RenderSpecs, spec)
	return s.call("Render", spec.Output)
}

func (s *StubRunner) RenderShorts(ctx context.Context, src, dest string, start, end float64, width, height int) (RunResult, error) {
	return s.call("RenderShorts", dest)
}

func (s *StubRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	s.Calls = append(s.Calls, "RunDoctor")
	if err, ok := s.Fail["RunDoctor"]; ok {
		return nil, err
	}
	if s.Caps != nil {
		caps := *s.Caps
		caps.ProbedAt = time.Now()
		return &caps, nil
	}
	return &Capabilities{
		Tools: map[string]ToolInfo{
			"yt-dlp":  {Available: true},
			"ffmpeg":  {Available: true},
			"ffprobe": {Available: true},
			"whisper": {Available: true},
		},
		Summary:       SummaryInfo{Available: 4, Total: 4, AllOK: true},
		HasDownload:   true,
		HasRender:     true,
		HasProbe:      true,
		HasTranscribe: true,
		ProbedAt:      time.Now(),
	}, nil
}

func (s *StubRunner) ValidateArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("artifact %s is empty", path)
	}
	return nil
}

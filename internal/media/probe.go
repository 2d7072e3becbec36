// Package media wraps the ffprobe/ffmpeg collaborators: probing container
// metadata and building the argument lists for rendering, extraction and the
// vertical shorts re-frame. Nothing here runs ffmpeg itself; the pipelines
// runner does that.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
)

// ProbeResult is the container metadata the pipeline needs.
type ProbeResult struct {
	Duration   float64
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
}

// Prober reports media metadata for a local file.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// FFProber shells out to ffprobe.
type FFProber struct {
	Binary string // ffprobe when empty
	logger *slog.Logger
}

func NewFFProber(logger *slog.Logger) *FFProber {
	return &FFProber{logger: logger}
}

func (p *FFProber) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	result, err := parseProbePayload(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	p.logger.Debug("probed media",
		"path", path,
		"duration", result.Duration,
		"width", result.Width,
		"height", result.Height)
	return result, nil
}

// probePayload mirrors the parts of ffprobe's JSON output we read. ffprobe
// reports numbers like duration as strings.
type probePayload struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// parseProbePayload extracts duration and stream info. A missing or
// unparsable duration yields zero, not an error; the orchestrator decides
// what to substitute.
func parseProbePayload(data []byte) (*ProbeResult, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse probe output: %w", err)
	}

	result := &ProbeResult{}
	if d, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil {
		result.Duration = d
	}
	for _, s := range payload.Streams {
		switch s.CodecType {
		case "video":
			if result.Width == 0 {
				result.Width = s.Width
				result.Height = s.Height
				result.VideoCodec = s.CodecName
			}
		case "audio":
			if result.AudioCodec == "" {
				result.AudioCodec = s.CodecName
			}
		}
	}
	return result, nil
}

// StubProber returns a fixed result, for tests and dry runs.
type StubProber struct {
	Result ProbeResult
	Err    error
}

func (s *StubProber) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	r := s.Result
	return &r, nil
}

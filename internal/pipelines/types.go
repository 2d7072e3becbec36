// Package pipelines provides subprocess-based execution of the external
// media tools (yt-dlp, ffmpeg, ffprobe, whisper) with bounded stderr
// capture, per-tool timeouts and structured results.
package pipelines

import "time"

// Capabilities reports which external tools are installed and, derived
// from that, what the agent can do on this machine.
type Capabilities struct {
	Tools   map[string]ToolInfo `json:"tools"`
	Summary SummaryInfo         `json:"summary"`

	HasDownload   bool      `json:"-"`
	HasRender     bool      `json:"-"`
	HasProbe      bool      `json:"-"`
	HasTranscribe bool      `json:"-"`
	ProbedAt      time.Time `json:"-"`
}

// Available reports whether the named tool was found during the probe.
func (c *Capabilities) Available(name string) bool {
	t, ok := c.Tools[name]
	return ok && t.Available
}

// ToolInfo represents the availability status of a single external binary.
type ToolInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SummaryInfo summarises overall tool status.
type SummaryInfo struct {
	Available int  `json:"available"`
	Total     int  `json:"total"`
	AllOK     bool `json:"all_ok"`
}

// RunResult is the structured outcome of executing a tool subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

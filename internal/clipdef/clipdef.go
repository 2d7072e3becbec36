// Package clipdef reads clip definitions and resolves definition chains.
//
// A definition is a small KEY=VALUE text file (or a catalog record with the
// same shape) describing one clip: where the source video lives, the cut
// window, and presentation parameters. Definitions link to each other through
// the NEXT key, forming a chain that is resolved into an ordered list before
// a pipeline run starts.
package clipdef

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kirinuki/kirinuki-agent/internal/timecode"
)

var (
	// ErrMissingField is returned when a required definition key is absent.
	ErrMissingField = errors.New("missing required field")

	// ErrCycleDetected is returned when a definition chain revisits a
	// reference. No partial chain is ever returned alongside it.
	ErrCycleDetected = errors.New("definition chain contains a cycle")
)

const (
	DefaultOutputDir = "data/output"
	DefaultTempDir   = "data/temp"
)

// Definition is one clip definition, as parsed from a KEY=VALUE file or
// loaded from the catalog.
type Definition struct {
	VideoURL     string  `json:"video_url"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time,omitempty"`
	Title        string  `json:"title,omitempty"`
	WebmPath     string  `json:"webm_path,omitempty"`
	OutputDir    string  `json:"output_dir"`
	TempDir      string  `json:"temp_dir"`
	AutoDownload bool    `json:"auto_download"`
	ChatDelay    float64 `json:"chat_delay,omitempty"`
	Crop         Crop    `json:"crop,omitempty"`
	Next         string  `json:"next,omitempty"`
}

// Crop holds edge crop percentages applied before rendering.
type Crop struct {
	Top    float64 `json:"top,omitempty"`
	Bottom float64 `json:"bottom,omitempty"`
	Left   float64 `json:"left,omitempty"`
	Right  float64 `json:"right,omitempty"`
}

// IsZero reports whether no cropping was requested.
func (c Crop) IsZero() bool {
	return c.Top == 0 && c.Bottom == 0 && c.Left == 0 && c.Right == 0
}

func (c Crop) String() string {
	if c.IsZero() {
		return ""
	}
	return fmt.Sprintf("%g,%g,%g,%g", c.Top, c.Bottom, c.Left, c.Right)
}

// ParseCrop parses "top,bottom,left,right" percentages.
func ParseCrop(s string) (Crop, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Crop{}, fmt.Errorf("crop must be four comma-separated percentages, got %q", s)
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Crop{}, fmt.Errorf("invalid crop value %q: %w", p, err)
		}
		if v < 0 || v >= 100 {
			return Crop{}, fmt.Errorf("crop percentage %g out of range [0, 100)", v)
		}
		vals[i] = v
	}
	return Crop{Top: vals[0], Bottom: vals[1], Left: vals[2], Right: vals[3]}, nil
}

// Validate checks the fields required of every chain element. Time fields
// must parse as clock strings; END_TIME, when present, must come after
// START_TIME.
func (d *Definition) Validate() error {
	if d.VideoURL == "" {
		return fmt.Errorf("%w: VIDEO_URL", ErrMissingField)
	}
	if d.StartTime == "" {
		return fmt.Errorf("%w: START_TIME", ErrMissingField)
	}
	start, err := timecode.ParseClock(d.StartTime)
	if err != nil {
		return fmt.Errorf("START_TIME: %w", err)
	}
	if d.EndTime != "" {
		end, err := timecode.ParseClock(d.EndTime)
		if err != nil {
			return fmt.Errorf("END_TIME: %w", err)
		}
		if end <= start {
			return fmt.Errorf("END_TIME %s is not after START_TIME %s", d.EndTime, d.StartTime)
		}
	}
	if d.WebmPath != "" {
		if _, err := os.Stat(d.WebmPath); err != nil {
			return fmt.Errorf("webm file not found: %s", d.WebmPath)
		}
	}
	return nil
}

// Parse reads a KEY=VALUE definition. Blank lines and lines starting with
// '#' are skipped; every other line must be KEY=VALUE with a non-empty key
// and value. Unknown keys are ignored. Parse does not validate required
// fields; validation happens during chain resolution.
func Parse(r io.Reader) (*Definition, error) {
	def := &Definition{
		OutputDir:    DefaultOutputDir,
		TempDir:      DefaultTempDir,
		AutoDownload: true,
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		eq := strings.Index(line, "=")
		if eq < 0 {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE, got %q", lineNum, line)
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if key == "" || value == "" {
			return nil, fmt.Errorf("line %d: empty key or value in %q", lineNum, line)
		}

		if err := def.set(key, value); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return def, nil
}

func (d *Definition) set(key, value string) error {
	switch key {
	case "VIDEO_URL":
		d.VideoURL = value
	case "START_TIME":
		d.StartTime = value
	case "END_TIME":
		d.EndTime = value
	case "TITLE":
		d.Title = value
	case "WEBM_PATH":
		d.WebmPath = value
	case "OUTPUT_DIR":
		d.OutputDir = value
	case "TEMP_DIR":
		d.TempDir = value
	case "AUTO_DOWNLOAD":
		d.AutoDownload = parseBool(value)
	case "CHAT_DELAY":
		delay, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid CHAT_DELAY %q: %w", value, err)
		}
		d.ChatDelay = delay
	case "CROP":
		crop, err := ParseCrop(value)
		if err != nil {
			return err
		}
		d.Crop = crop
	case "NEXT":
		d.Next = value
	}
	return nil
}

// ParseFile reads and parses a definition file.
func ParseFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	def, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "1":
		return true
	}
	return false
}

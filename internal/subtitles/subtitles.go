// Package subtitles parses, windows and writes subtitle tracks. Full-video
// SRT files fetched or transcribed by external tools are cut down to a
// clip-local window here; the styled ASS rendition used for burned-in
// subtitles lives in ass.go.
package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kirinuki/kirinuki-agent/internal/timecode"
)

// Cue is one subtitle entry on a clip-local or source-local time axis.
type Cue struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ParseSRT reads SRT cues: an index line, a "start --> end" timing line and
// text lines up to a blank line. Malformed blocks are skipped rather than
// failing the whole file, since auto-generated tracks are frequently sloppy.
func ParseSRT(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	var pendingIndex = -1

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			pendingIndex = -1
			continue
		}

		if idx, err := strconv.Atoi(line); err == nil && pendingIndex < 0 {
			pendingIndex = idx
			continue
		}

		start, end, ok := parseTimingLine(line)
		if !ok {
			pendingIndex = -1
			continue
		}

		var textLines []string
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				break
			}
			textLines = append(textLines, text)
		}
		if len(textLines) == 0 {
			pendingIndex = -1
			continue
		}

		index := pendingIndex
		if index < 0 {
			index = len(cues) + 1
		}
		cues = append(cues, Cue{
			Index: index,
			Start: start,
			End:   end,
			Text:  strings.Join(textLines, "\n"),
		})
		pendingIndex = -1
	}
	return cues, scanner.Err()
}

// parseTimingLine parses "HH:MM:SS,mmm --> HH:MM:SS,mmm", tolerating
// trailing position hints after the second stamp.
func parseTimingLine(line string) (start, end float64, ok bool) {
	left, right, found := strings.Cut(line, "-->")
	if !found {
		return 0, 0, false
	}
	startStr := strings.TrimSpace(left)
	endStr := strings.TrimSpace(right)
	if i := strings.IndexByte(endStr, ' '); i >= 0 {
		endStr = endStr[:i]
	}

	var err error
	start, err = timecode.ParseClock(strings.Replace(startStr, ",", ".", 1))
	if err != nil {
		return 0, 0, false
	}
	end, err = timecode.ParseClock(strings.Replace(endStr, ",", ".", 1))
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

// ParseSRTFile parses the SRT file at path.
func ParseSRTFile(path string) ([]Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSRT(f)
}

// ExtractWindow shifts cues onto a clip-local 0-based axis for the window
// starting at start seconds. Cues ending before the window are dropped,
// starts are clamped to 0, and, when the window is bounded, cues are cut off
// or truncated at the window length. Cues are renumbered from 1.
func ExtractWindow(cues []Cue, start, end float64, bounded bool) []Cue {
	length := end - start

	var out []Cue
	for _, cue := range cues {
		newStart := cue.Start - start
		newEnd := cue.End - start

		if newEnd < 0 {
			continue
		}
		if bounded && newStart >= length {
			break
		}
		if newStart < 0 {
			newStart = 0
		}
		if bounded && newEnd > length {
			newEnd = length
		}

		out = append(out, Cue{
			Index: len(out) + 1,
			Start: newStart,
			End:   newEnd,
			Text:  cue.Text,
		})
	}
	return out
}

// WriteSRT writes cues in SRT form with a blank line after each block.
func WriteSRT(w io.Writer, cues []Cue) error {
	for _, cue := range cues {
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			cue.Index, timecode.SRT(cue.Start), timecode.SRT(cue.End), cue.Text)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteSRTFile writes cues to the SRT file at path.
func WriteSRTFile(path string, cues []Cue) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSRT(f, cues); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

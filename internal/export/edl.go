// Package export renders a resolved clip chain as a CMX 3600 edit decision
// list so the cut points can be re-opened in an NLE instead of baked into a
// single render.
package export

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/kirinuki/kirinuki-agent/internal/clipdef"
)

// FromChain builds an EDL with one event per clip. Source in and out come
// from the clip's cut window, the record side accumulates clip durations.
// Every clip needs an explicit end time; an open-ended clip has no source
// out point to write.
func FromChain(clips []clipdef.ResolvedClip, title string, frameRate float64) (string, error) {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}
	if strings.TrimSpace(title) == "" {
		title = "UNTITLED"
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordOffset := 0.0
	for i, clip := range clips {
		if !clip.HasEnd {
			return "", fmt.Errorf("clip %d (%s): an end time is required for EDL export", i+1, clip.Ref)
		}
		duration := clip.EndSec - clip.StartSec

		srcIn := secondsToTimecode(clip.StartSec, fps)
		srcOut := secondsToTimecode(clip.EndSec, fps)
		recIn := secondsToTimecode(recordOffset, fps)
		recOut := secondsToTimecode(recordOffset+duration, fps)

		// Audio and video are cut together, so each event carries both.
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "AA/V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clipDisplayName(clip)),
			fmt.Sprintf("* MEDIA PATH:  %s", clipMediaPath(clip)),
		)

		recordOffset += duration
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n"), nil
}

// clipDisplayName prefers the clip's title and falls back to its reference
// with any file extension stripped.
func clipDisplayName(clip clipdef.ResolvedClip) string {
	if clip.Title != "" {
		return clip.Title
	}
	base := filepath.Base(clip.Ref)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// clipMediaPath points the NLE at whatever source the pipeline would cut
// from: a local WEBM when the definition names one, the video URL otherwise.
func clipMediaPath(clip clipdef.ResolvedClip) string {
	if clip.WebmPath != "" {
		return clip.WebmPath
	}
	return clip.VideoURL
}

func secondsToTimecode(sec float64, fps int) string {
	totalFrames := int(math.Round(sec * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}

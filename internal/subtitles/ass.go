package subtitles

import (
	"fmt"
	"os"
	"strings"

	"github.com/kirinuki/kirinuki-agent/internal/timecode"
)

// Styled-track layout. Sized for bottom-centered dialogue on a 1080p frame.
const (
	styledFontName      = "Hiragino Sans"
	styledFontSize      = 110
	styledOutlineWidth  = 7
	styledShadowOffset  = 4
	lineBreakThreshold  = 20
	lineBreakSearchSpan = 10
)

// breakChars are preferred line-break positions, checked near the middle of
// an overlong line. Mostly Japanese particles and punctuation.
var breakChars = []rune("、。がてでしをはのと")

const styledHeader = `[Script Info]
Title: Styled Subtitles
ScriptType: v4.00+
WrapStyle: 2
PlayResX: 1920
PlayResY: 1080
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,%s,%d,&H00FFFFFF,&H000000FF,&H00000000,&H80000000,-1,0,0,0,100,100,0,0,1,%d,%d,2,50,50,40,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// BuildStyledTrack renders cues as a styled ASS subtitle track: large
// bottom-centered text with a forced line break near the middle of overlong
// lines.
func BuildStyledTrack(cues []Cue) string {
	var b strings.Builder
	fmt.Fprintf(&b, styledHeader, styledFontName, styledFontSize, styledOutlineWidth, styledShadowOffset)

	for _, cue := range cues {
		text := strings.TrimSpace(cue.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			timecode.ASS(cue.Start), timecode.ASS(cue.End), breakLongLine(text))
	}
	return b.String()
}

// WriteStyledTrack renders cues to path as a styled ASS track.
func WriteStyledTrack(path string, cues []Cue) error {
	return os.WriteFile(path, []byte(BuildStyledTrack(cues)), 0644)
}

// breakLongLine escapes text for ASS and inserts one \N near the middle of
// lines longer than the break threshold, preferring a break character within
// the search span around the midpoint.
func breakLongLine(text string) string {
	runes := []rune(text)
	if len(runes) <= lineBreakThreshold {
		return EscapeText(text)
	}

	mid := len(runes) / 2
	lo := mid - lineBreakSearchSpan
	if lo < 0 {
		lo = 0
	}
	hi := mid + lineBreakSearchSpan
	if hi > len(runes) {
		hi = len(runes)
	}

	best := mid
	minDist := len(runes)
	for _, bc := range breakChars {
		for i := lo; i < hi; i++ {
			if runes[i] != bc {
				continue
			}
			if dist := abs(i - mid); dist < minDist {
				minDist = dist
				best = i + 1 // break after the particle
			}
			break // only the first occurrence of each break char counts
		}
	}

	if best <= 0 || best >= len(runes) {
		return EscapeText(text)
	}
	return EscapeText(string(runes[:best])) + `\N` + EscapeText(string(runes[best:]))
}

// EscapeText escapes ASS override-block delimiters. Backslash first so the
// brace escapes survive.
func EscapeText(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, "{", `\{`)
	text = strings.ReplaceAll(text, "}", `\}`)
	return text
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

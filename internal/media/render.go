package media

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/kirinuki/kirinuki-agent/internal/clipdef"
)

// Logo placement inside the title bar area. The title bar document is laid
// out against the same numbers.
const (
	logoX           = 15
	logoY           = 10
	logoSize        = 180
	logoBorderWidth = 12
)

// RenderSpec describes one final composition pass. Optional paths left
// empty are simply not wired into the filter graph; the caller only passes
// artifacts that exist.
type RenderSpec struct {
	Input  string
	Output string

	SubtitlePath     string // .srt or .ass
	ChatOverlayPath  string // .ass
	TitleOverlayPath string // .ass
	LogoPath         string // image composited over the title bar

	Crop        clipdef.Crop
	InputWidth  int // probed source resolution; 1920x1080 assumed when zero
	InputHeight int

	VideoCodec string // libx264
	AudioCodec string // aac
	Preset     string // medium
	CRF        int    // 23

	ExtraArgs []string
}

// RenderArgs builds the ffmpeg argument list for a RenderSpec. The video
// chain is crop (when set), setsar=1, then the subtitle and overlay filters
// in burn order: speech subtitles, chat, title bar.
func RenderArgs(spec RenderSpec) ([]string, error) {
	if spec.VideoCodec == "" {
		spec.VideoCodec = "libx264"
	}
	if spec.AudioCodec == "" {
		spec.AudioCodec = "aac"
	}
	if spec.Preset == "" {
		spec.Preset = "medium"
	}
	if spec.CRF == 0 {
		spec.CRF = 23
	}

	args := []string{"-i", spec.Input}
	hasLogo := spec.LogoPath != ""
	if hasLogo {
		args = append(args, "-i", spec.LogoPath)
	}
	args = append(args, "-y")

	var chain []string
	crop, err := CropFilter(spec.Crop, spec.InputWidth, spec.InputHeight)
	if err != nil {
		return nil, err
	}
	if crop != "" {
		chain = append(chain, crop)
	}
	// Keep the pixel aspect square so players don't rescale.
	chain = append(chain, "setsar=1")

	if spec.SubtitlePath != "" {
		if strings.HasSuffix(spec.SubtitlePath, ".ass") {
			chain = append(chain, "ass="+FilterPath(spec.SubtitlePath))
		} else {
			chain = append(chain, "subtitles="+FilterPath(spec.SubtitlePath))
		}
	}
	if spec.ChatOverlayPath != "" {
		chain = append(chain, "ass="+FilterPath(spec.ChatOverlayPath))
	}
	if spec.TitleOverlayPath != "" {
		chain = append(chain, "ass="+FilterPath(spec.TitleOverlayPath))
	}

	filters := strings.Join(chain, ",")
	if hasLogo {
		parts := []string{
			"[0:v]" + filters + "[v_base]",
			logoFilter(),
			fmt.Sprintf("[v_base][logo]overlay=%d:%d", logoX, logoY),
		}
		args = append(args, "-filter_complex", strings.Join(parts, ";"))
	} else {
		args = append(args, "-vf", filters)
	}

	args = append(args,
		"-c:v", spec.VideoCodec,
		"-preset", spec.Preset,
		"-crf", strconv.Itoa(spec.CRF),
		"-c:a", spec.AudioCodec,
	)
	args = append(args, spec.ExtraArgs...)
	args = append(args, spec.Output)
	return args, nil
}

// logoFilter scales the logo and masks it into a circle with a white ring.
func logoFilter() string {
	return fmt.Sprintf("[1:v]scale=%d:%d,format=rgba,"+
		"geq=r='if(lte(hypot(X-W/2,Y-H/2),W/2-%d),r(X,Y),255)':"+
		"g='if(lte(hypot(X-W/2,Y-H/2),W/2-%d),g(X,Y),255)':"+
		"b='if(lte(hypot(X-W/2,Y-H/2),W/2-%d),b(X,Y),255)':"+
		"a='if(lte(hypot(X-W/2,Y-H/2),W/2),255,0)'[logo]",
		logoSize, logoSize, logoBorderWidth, logoBorderWidth, logoBorderWidth)
}

// CropFilter turns edge percentages into an ffmpeg crop expression that
// also re-cuts the remaining frame to 16:9, preferring to trim the sides
// and falling back to trimming top and bottom. Returns "" when no crop is
// requested.
func CropFilter(c clipdef.Crop, width, height int) (string, error) {
	if c.IsZero() {
		return "", nil
	}
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	left := math.Max(0, c.Left/100)
	right := math.Max(0, c.Right/100)
	top := math.Max(0, c.Top/100)
	bottom := math.Max(0, c.Bottom/100)

	widthFactor := 1 - left - right
	heightFactor := 1 - top - bottom
	if widthFactor <= 0 || heightFactor <= 0 {
		return "", errors.New("crop percentages remove the entire frame")
	}

	// How much wider (as a factor ratio) the result must be than the crop
	// to land on 16:9 at this input's aspect.
	targetRatio := (16.0 / 9.0) / (float64(width) / float64(height))

	desiredWidth := heightFactor * targetRatio
	if desiredWidth <= widthFactor && desiredWidth > 0 {
		left += (widthFactor - desiredWidth) / 2
		widthFactor = desiredWidth
	} else {
		desiredHeight := widthFactor / targetRatio
		top += (heightFactor - desiredHeight) / 2
		heightFactor = desiredHeight
	}
	if widthFactor <= 0 || heightFactor <= 0 {
		return "", errors.New("invalid crop ratios after aspect adjustment")
	}

	return fmt.Sprintf("crop=iw*%.6f:ih*%.6f:iw*%.6f:ih*%.6f",
		widthFactor, heightFactor, left, top), nil
}

// FilterPath escapes a path for use inside an ffmpeg filter argument.
func FilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	return strings.ReplaceAll(path, ":", `\:`)
}

// ShortsArgs builds the ffmpeg arguments that cut [start, end] out of a
// finished video and re-frame it vertically: scaled to 1080 wide, centered
// on a 1080x1920 canvas with black bars.
func ShortsArgs(input, output, start, end string, width, height int) []string {
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}
	scaledHeight := 1080 * height / width
	padTop := (1920 - scaledHeight) / 2

	return []string{
		"-y",
		"-ss", start,
		"-to", end,
		"-i", input,
		"-vf", fmt.Sprintf("scale=1080:%d,pad=1080:1920:0:%d:black", scaledHeight, padTop),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		output,
	}
}

// ExtractArgs builds the ffmpeg arguments for a stream-copy cut of a local
// source file. end may be empty to keep everything after start.
func ExtractArgs(input, output, start, end string) []string {
	args := []string{"-y", "-ss", start}
	if end != "" {
		args = append(args, "-to", end)
	}
	return append(args, "-i", input, "-c", "copy", output)
}

// AudioExtractArgs builds the ffmpeg arguments that reduce a media file to
// the 16 kHz mono PCM WAV that whisper expects.
func AudioExtractArgs(input, output string) []string {
	return []string{
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y",
		output,
	}
}

// ConcatArgs builds the ffmpeg arguments for a stream-copy concat of the
// files listed in listFile (concat demuxer format).
func ConcatArgs(listFile, output string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		output,
	}
}

// WriteConcatList writes a concat demuxer list file naming each input in
// order. Single quotes in paths are escaped the way the demuxer expects.
func WriteConcatList(path string, files []string) error {
	var b strings.Builder
	for _, f := range files {
		escaped := strings.ReplaceAll(f, `'`, `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

package overlay

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kirinuki/kirinuki-agent/internal/subtitles"
	"github.com/kirinuki/kirinuki-agent/internal/timecode"
)

// TitleBar describes the opening banner: a yellow bar that slides out from
// behind the channel logo carrying the clip title, with the channel name on
// a band below it.
type TitleBar struct {
	Title           string
	ChannelName     string
	ScreenWidth     int
	ScreenHeight    int
	SlideDuration   float64 // seconds the slide-out animation takes
	DisplayDuration float64 // seconds shown after the slide; 0 keeps it up for the whole video
	LogoHeight      int     // must match the logo the renderer composites
}

// DefaultTitleBar lays out the banner for 1080p with the standard logo.
func DefaultTitleBar(title string) TitleBar {
	return TitleBar{
		Title:         title,
		ChannelName:   "ひろゆき視点",
		ScreenWidth:   1920,
		ScreenHeight:  1080,
		SlideDuration: 1.2,
		LogoHeight:    180,
	}
}

const (
	barHeight = 120
	barY      = 10

	logoX     = 15
	logoWidth = 180

	titleFontName   = "Hiragino Sans"
	channelFontName = "Hiragino Sans W9"
	titleFontSize   = 90
	channelFontSize = 45

	// &HAABBGGRR
	titleTextColor      = "&H00000000"
	titleOutlineColor   = "&H00FFFFFF"
	channelOutlineColor = "&H00404040"
	barBgColor          = "&H0000E5FF" // yellow RGB(255,229,0)
	channelBgColor      = "&H00D77800" // blue RGB(0,120,215)
)

const titleHeader = `[Script Info]
Title: Title Bar
ScriptType: v4.00+
WrapStyle: 0
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: TitleText,%s,%d,%s,&H000000FF,%s,&H00000000,-1,0,0,0,100,100,0,0,1,5,3,7,30,30,0,1
Style: TitleBar,Arial,20,%s,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,0,0,7,0,0,0,1
Style: ChannelName,%s,48,&H00FFFFFF,&H000000FF,%s,&H00000000,-1,0,0,0,100,100,0,0,1,4,2,7,30,30,0,1
Style: ChannelBg,Arial,20,%s,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,0,0,7,0,0,0,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// Document renders the banner as a four-layer ASS document: bar background,
// title text, channel background, channel text. Each layer has a slide-in
// event driven by an animated \clip and a static event holding until the
// end time.
func (t TitleBar) Document() string {
	logoCenterX := logoX + logoWidth/2
	slideMs := int(t.SlideDuration * 1000)

	slideStart := timecode.ASS(0)
	slideEnd := timecode.ASS(t.SlideDuration)
	totalEnd := 9*3600 + 59*60 + 59.99
	if t.DisplayDuration > 0 {
		totalEnd = t.DisplayDuration + t.SlideDuration
	}
	endStr := timecode.ASS(totalEnd)

	var b strings.Builder
	fmt.Fprintf(&b, titleHeader,
		t.ScreenWidth, t.ScreenHeight,
		titleFontName, titleFontSize, titleTextColor, titleOutlineColor,
		barBgColor,
		channelFontName, channelOutlineColor,
		channelBgColor)

	// Layer 0: bar background growing rightward from the logo center.
	barBgWidth := t.ScreenWidth - logoCenterX
	drawing := fmt.Sprintf("m 0 0 l %d 0 l %d %d l 0 %d", barBgWidth, barBgWidth, barHeight, barHeight)
	fmt.Fprintf(&b, "Dialogue: 0,%s,%s,TitleBar,,0,0,0,,{\\pos(%d,%d)\\clip(%d,%d,%d,%d)\\t(0,%d,\\clip(%d,%d,%d,%d))\\p1}%s\\N\n",
		slideStart, slideEnd,
		logoCenterX, barY,
		logoCenterX, barY, logoCenterX+1, barY+barHeight,
		slideMs,
		logoCenterX, barY, t.ScreenWidth, barY+barHeight,
		drawing)
	fmt.Fprintf(&b, "Dialogue: 0,%s,%s,TitleBar,,0,0,0,,{\\pos(%d,%d)\\p1}%s\\N\n",
		slideEnd, endStr, logoCenterX, barY, drawing)

	// Layer 1: title text, left-aligned just past the logo.
	textY := barY + barHeight/2
	textEndX := logoX + logoWidth + 15
	title := subtitles.EscapeText(t.Title)
	titleWidth := utf8.RuneCountInString(t.Title) * titleFontSize
	fmt.Fprintf(&b, "Dialogue: 1,%s,%s,TitleText,,0,0,0,,{\\an4\\pos(%d,%d)\\clip(%d,%d,%d,%d)\\t(0,%d,\\clip(%d,%d,%d,%d))}%s\\N\n",
		slideStart, slideEnd,
		textEndX, textY,
		logoCenterX, barY, logoCenterX+1, barY+barHeight,
		slideMs,
		logoCenterX, barY, textEndX+titleWidth, barY+barHeight,
		title)
	fmt.Fprintf(&b, "Dialogue: 1,%s,%s,TitleText,,0,0,0,,{\\an4\\pos(%d,%d)}%s\\N\n",
		slideEnd, endStr, textEndX, textY, title)

	// Layers 2 and 3: channel band in the gap between the bar and the
	// bottom of the logo.
	channelAreaHeight := t.LogoHeight - barHeight
	channelYTop := barY + barHeight
	channelY := channelYTop + channelAreaHeight/2

	channelWidth := utf8.RuneCountInString(t.ChannelName) * channelFontSize
	channelBgXEnd := textEndX + channelWidth + 30
	channelBgWidth := channelBgXEnd - logoCenterX
	channelDrawing := fmt.Sprintf("m 0 0 l %d 0 l %d %d l 0 %d",
		channelBgWidth, channelBgWidth, channelAreaHeight, channelAreaHeight)

	fmt.Fprintf(&b, "Dialogue: 2,%s,%s,ChannelBg,,0,0,0,,{\\pos(%d,%d)\\clip(%d,%d,%d,%d)\\t(0,%d,\\clip(%d,%d,%d,%d))\\p1}%s\\N\n",
		slideStart, slideEnd,
		logoCenterX, channelYTop,
		logoCenterX, channelYTop, logoCenterX+1, channelYTop+channelAreaHeight,
		slideMs,
		logoCenterX, channelYTop, channelBgXEnd, channelYTop+channelAreaHeight,
		channelDrawing)
	fmt.Fprintf(&b, "Dialogue: 2,%s,%s,ChannelBg,,0,0,0,,{\\pos(%d,%d)\\p1}%s\\N\n",
		slideEnd, endStr, logoCenterX, channelYTop, channelDrawing)

	channel := subtitles.EscapeText(t.ChannelName)
	fmt.Fprintf(&b, "Dialogue: 3,%s,%s,ChannelName,,0,0,0,,{\\an4\\pos(%d,%d)\\clip(%d,%d,%d,%d)\\t(0,%d,\\clip(%d,%d,%d,%d))}%s\\N\n",
		slideStart, slideEnd,
		textEndX, channelY,
		logoCenterX, channelYTop, logoCenterX+1, channelYTop+channelAreaHeight,
		slideMs,
		logoCenterX, channelYTop, textEndX+channelWidth, channelYTop+channelAreaHeight,
		channel)
	fmt.Fprintf(&b, "Dialogue: 3,%s,%s,ChannelName,,0,0,0,,{\\an4\\pos(%d,%d)}%s\\N\n",
		slideEnd, endStr, textEndX, channelY, channel)

	return b.String()
}

// WriteDocument renders the banner to path.
func (t TitleBar) WriteDocument(path string) error {
	return os.WriteFile(path, []byte(t.Document()), 0644)
}

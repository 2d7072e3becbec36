package overlay

import (
	"fmt"
	"os"
	"strings"

	"github.com/kirinuki/kirinuki-agent/internal/chat"
	"github.com/kirinuki/kirinuki-agent/internal/subtitles"
	"github.com/kirinuki/kirinuki-agent/internal/timecode"
)

const chatHeader = `[Script Info]
Title: Chat Overlay
ScriptType: v4.00+
WrapStyle: 0
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: ChatMessage,%s,%d,%s,&H000000FF,%s,%s,0,0,0,0,100,100,0,0,1,%d,%d,7,10,20,10,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// RenderDocument serializes scheduled events as an ASS document. It is a
// pure transform: events come out in input order, one Dialogue line each,
// carrying a \move directive for the lane trajectory.
func RenderDocument(events []Event, cfg Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, chatHeader,
		cfg.ScreenWidth, cfg.ScreenHeight,
		cfg.FontName, cfg.FontSize,
		cfg.TextColor, cfg.OutlineColor, cfg.BackColor,
		cfg.Outline, cfg.Shadow)

	for _, ev := range events {
		y := cfg.LaneTop + cfg.LaneSpacing*ev.Lane
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,ChatMessage,,0,0,0,,{\\move(%.0f,%d,%.0f,%d)}%s\n",
			timecode.ASS(ev.Start), timecode.ASS(ev.End),
			ev.XStart, y, ev.XEnd, y,
			subtitles.EscapeText(ev.Text))
	}
	return b.String()
}

// BuildChatDocument applies the display policies, schedules the stream and
// renders the document. Whitespace-only messages and messages arriving
// before the visible start offset are not displayed; everything else goes
// through the scheduler, which drops nothing. Returns the document and the
// number of events in it.
func BuildChatDocument(msgs []chat.Message, cfg Config) (string, int) {
	visible := make([]chat.Message, 0, len(msgs))
	for _, msg := range msgs {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		msg.Text = text
		visible = append(visible, msg)
	}
	visible = chat.DropBefore(visible, cfg.VisibleStartOffset)

	events := Schedule(visible, cfg)
	return RenderDocument(events, cfg), len(events)
}

// WriteChatDocument builds the chat overlay and writes it to path.
func WriteChatDocument(path string, msgs []chat.Message, cfg Config) (int, error) {
	doc, count := BuildChatDocument(msgs, cfg)
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return 0, err
	}
	return count, nil
}

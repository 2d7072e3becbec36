// Package chat loads live-chat replays and cuts them down to clip windows.
//
// Full replays arrive as the JSONL file yt-dlp writes for the live_chat
// track; they are normalized into flat Messages, windowed onto the clip's
// local time axis, and saved as a plain JSON array for the overlay stage.
package chat

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/kirinuki/kirinuki-agent/internal/timecode"
)

// Message is one chat message. Time is seconds on whatever axis the
// containing file uses: source-video seconds for full replays, clip-local
// seconds after windowing. Timestamp is the original wall-clock epoch in
// milliseconds when known.
type Message struct {
	Time      float64 `json:"time_in_seconds"`
	Author    string  `json:"author"`
	Text      string  `json:"message"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// rawMessage tolerates the two shapes seen in normalized chat files:
// our own output and chat-downloader exports, where author may be an
// object carrying a name.
type rawMessage struct {
	TimeInSeconds *float64        `json:"time_in_seconds"`
	TimeText      string          `json:"time_text"`
	Message       string          `json:"message"`
	Author        json.RawMessage `json:"author"`
	Timestamp     int64           `json:"timestamp"`
}

// ParseJSONL reads one normalized chat message per line. Blank lines and
// lines that do not parse are skipped. Messages without any usable time or
// with empty text are dropped; a missing author becomes "Unknown".
func ParseJSONL(r io.Reader) ([]Message, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var msgs []Message
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var raw rawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}

		msg, ok := raw.toMessage()
		if !ok {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, scanner.Err()
}

func (raw rawMessage) toMessage() (Message, bool) {
	var t float64
	switch {
	case raw.TimeInSeconds != nil:
		t = *raw.TimeInSeconds
	case raw.TimeText != "":
		parsed, err := timecode.ParseClock(raw.TimeText)
		if err != nil {
			return Message{}, false
		}
		t = parsed
	default:
		return Message{}, false
	}

	if raw.Message == "" {
		return Message{}, false
	}

	return Message{
		Time:      t,
		Author:    authorName(raw.Author),
		Text:      raw.Message,
		Timestamp: raw.Timestamp,
	}, true
}

func authorName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "Unknown"
	}

	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Name != "" {
		return obj.Name
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return "Unknown"
}

// ExtractWindow shifts messages onto a clip-local 0-based axis for the
// window starting at start source seconds. Messages before the window are
// dropped; when the window is bounded, extraction stops at the first message
// at or past the window length (replays are time-ordered).
func ExtractWindow(msgs []Message, start, end float64, bounded bool) []Message {
	length := end - start

	var out []Message
	for _, msg := range msgs {
		adjusted := msg.Time - start
		if adjusted < 0 {
			continue
		}
		if bounded && adjusted >= length {
			break
		}
		msg.Time = adjusted
		out = append(out, msg)
	}
	return out
}

// FilterOptions reduce a message stream before scheduling.
type FilterOptions struct {
	MinLength      int      // minimum text length in runes; 0 means no minimum
	MaxLength      int      // maximum text length in runes; 0 means no maximum
	ExcludeAuthors []string // author names dropped outright
}

// DropBefore removes messages displayed before t seconds. Used to keep the
// opening moments of the video clear while the title animation plays.
func DropBefore(msgs []Message, t float64) []Message {
	var out []Message
	for _, msg := range msgs {
		if msg.Time < t {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Filter applies length and author rules, preserving order.
func Filter(msgs []Message, opts FilterOptions) []Message {
	excluded := make(map[string]bool, len(opts.ExcludeAuthors))
	for _, a := range opts.ExcludeAuthors {
		excluded[a] = true
	}

	var out []Message
	for _, msg := range msgs {
		n := utf8.RuneCountInString(msg.Text)
		if opts.MinLength > 0 && n < opts.MinLength {
			continue
		}
		if opts.MaxLength > 0 && n > opts.MaxLength {
			continue
		}
		if excluded[msg.Author] {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// LoadJSONLFile parses a normalized JSONL chat file.
func LoadJSONLFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseJSONL(f)
}

// SaveMessages writes messages as an indented JSON array, the shape the
// overlay stage and the run artifacts use.
func SaveMessages(path string, msgs []Message) error {
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// LoadMessages reads a JSON array chat file written by SaveMessages.
func LoadMessages(path string) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// flexInt64 parses JSON numbers that YouTube sometimes quotes.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt64(n)
	return nil
}

package chat

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
)

// Wire shapes for the live_chat JSONL track yt-dlp downloads. Only text
// messages are kept; memberships, superchats and stickers have no
// liveChatTextMessageRenderer and fall through.
type replayLine struct {
	ReplayChatItemAction *struct {
		VideoOffsetTimeMsec flexInt64 `json:"videoOffsetTimeMsec"`
		Actions             []struct {
			AddChatItemAction *struct {
				Item struct {
					LiveChatTextMessageRenderer *textRenderer `json:"liveChatTextMessageRenderer"`
				} `json:"item"`
			} `json:"addChatItemAction"`
		} `json:"actions"`
	} `json:"replayChatItemAction"`
}

type textRenderer struct {
	Message struct {
		Runs []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"message"`
	AuthorName struct {
		SimpleText string `json:"simpleText"`
	} `json:"authorName"`
	TimestampUsec flexInt64 `json:"timestampUsec"`
}

// NormalizeReplay flattens a raw yt-dlp live_chat replay into Messages on
// the source video's time axis. Lines that do not parse, carry no text
// renderer, or render to empty text are skipped.
func NormalizeReplay(r io.Reader) ([]Message, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var msgs []Message
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var entry replayLine
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		replay := entry.ReplayChatItemAction
		if replay == nil {
			continue
		}

		offset := float64(replay.VideoOffsetTimeMsec) / 1000.0
		for _, action := range replay.Actions {
			add := action.AddChatItemAction
			if add == nil || add.Item.LiveChatTextMessageRenderer == nil {
				continue
			}
			tr := add.Item.LiveChatTextMessageRenderer

			var text bytes.Buffer
			for _, run := range tr.Message.Runs {
				text.WriteString(run.Text)
			}
			if text.Len() == 0 {
				continue
			}

			msgs = append(msgs, Message{
				Time:      offset,
				Author:    tr.AuthorName.SimpleText,
				Text:      text.String(),
				Timestamp: int64(tr.TimestampUsec) / 1000,
			})
		}
	}
	return msgs, scanner.Err()
}

// NormalizeReplayFile normalizes a raw replay on disk and writes the result
// as JSONL, one message per line, to dst.
func NormalizeReplayFile(src, dst string) (int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	msgs, err := NormalizeReplay(in)
	if err != nil {
		return 0, err
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	for _, msg := range msgs {
		if err := enc.Encode(msg); err != nil {
			return 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return len(msgs), out.Close()
}

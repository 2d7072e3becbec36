// Package timeline places a resolved clip chain onto one continuous global
// time axis and rebases every clip-local artifact onto it.
package timeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kirinuki/kirinuki-agent/internal/chat"
	"github.com/kirinuki/kirinuki-agent/internal/subtitles"
)

// ErrInvalidDuration marks a clip duration that cannot be placed on the
// timeline. Durations come from the media prober; zero or negative means the
// probe result is unusable.
var ErrInvalidDuration = errors.New("invalid clip duration")

// Segment is one clip's placement on the global timeline.
type Segment struct {
	ClipIndex int     `json:"clip_index"`
	Offset    float64 `json:"offset"`
	Duration  float64 `json:"duration"`
}

// End returns the segment's exclusive end on the global axis.
func (s Segment) End() float64 {
	return s.Offset + s.Duration
}

// Timeline is the composed global timeline. Read-only once built.
type Timeline struct {
	Segments []Segment `json:"segments"`
	Total    float64   `json:"total_duration"`
}

// New builds a timeline from per-clip durations in clip order. Offsets are
// the running sum of the preceding durations; any duration <= 0 fails the
// whole build.
func New(durations []float64) (*Timeline, error) {
	if len(durations) == 0 {
		return nil, errors.New("no clips")
	}

	t := &Timeline{Segments: make([]Segment, 0, len(durations))}
	offset := 0.0
	for i, d := range durations {
		if d <= 0 {
			return nil, fmt.Errorf("clip %d: %w: %v", i, ErrInvalidDuration, d)
		}
		t.Segments = append(t.Segments, Segment{ClipIndex: i, Offset: offset, Duration: d})
		offset += d
	}
	t.Total = offset
	return t, nil
}

// ClipArtifacts carries one clip's windowed, clip-local inputs into
// composition. Missing subtitles or chat are just empty slices.
type ClipArtifacts struct {
	Duration  float64
	ChatDelay float64
	Subtitles []subtitles.Cue
	Chat      []chat.Message
}

// Composition is the fully rebased, merged output: the timeline itself, one
// subtitle track and one chat stream, both on the global axis.
type Composition struct {
	Timeline  *Timeline
	Subtitles []subtitles.Cue
	Chat      []chat.Message
}

// Compose builds the global timeline and rebases every clip's artifacts onto
// it. It fails atomically: either every clip is placed or nothing is
// returned.
//
// Subtitle cues shift by their clip's offset and are cut at the segment end
// so a line never bleeds into the next clip's footage. Chat messages shift
// by the offset minus the clip's chat delay (a positive delay compensates a
// lagging chat feed by displaying messages earlier); arrivals the delay
// pushes outside the segment are clamped back to its bounds, except that a
// first-clip arrival clamped to the very start of the video is dropped.
func Compose(clips []ClipArtifacts) (*Composition, error) {
	durations := make([]float64, len(clips))
	for i, c := range clips {
		durations[i] = c.Duration
	}
	t, err := New(durations)
	if err != nil {
		return nil, err
	}

	comp := &Composition{Timeline: t}
	for i, c := range clips {
		seg := t.Segments[i]
		comp.Subtitles = append(comp.Subtitles, rebaseSubtitles(c.Subtitles, seg)...)
		comp.Chat = append(comp.Chat, rebaseChat(c.Chat, seg, c.ChatDelay)...)
	}

	for i := range comp.Subtitles {
		comp.Subtitles[i].Index = i + 1
	}

	// Clips were appended in order, so a stable sort on arrival alone keeps
	// ties in clip order and same-clip messages in their original order.
	sort.SliceStable(comp.Chat, func(a, b int) bool {
		return comp.Chat[a].Time < comp.Chat[b].Time
	})
	return comp, nil
}

func rebaseSubtitles(cues []subtitles.Cue, seg Segment) []subtitles.Cue {
	var out []subtitles.Cue
	for _, cue := range cues {
		start := cue.Start + seg.Offset
		end := cue.End + seg.Offset
		if start >= seg.End() {
			continue
		}
		if end > seg.End() {
			end = seg.End()
		}
		out = append(out, subtitles.Cue{Start: start, End: end, Text: cue.Text})
	}
	return out
}

func rebaseChat(msgs []chat.Message, seg Segment, delay float64) []chat.Message {
	var out []chat.Message
	for _, msg := range msgs {
		t := msg.Time + seg.Offset - delay
		if t < seg.Offset {
			if seg.Offset <= 0 {
				continue
			}
			t = seg.Offset
		}
		if t > seg.End() {
			t = seg.End()
		}
		msg.Time = t
		out = append(out, msg)
	}
	return out
}

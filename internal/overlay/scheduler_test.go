package overlay

import (
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/kirinuki/kirinuki-agent/internal/chat"
)

// fixedWidth pins the estimator so travel durations come out round.
func fixedWidth(w float64) func(string) float64 {
	return func(string) float64 { return w }
}

func TestScheduleQueuesWhenLaneBusy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LaneCount = 1
	cfg.Gap = 0.25
	cfg.ScreenWidth = 1920
	cfg.Margin = 80
	cfg.Speed = 400
	cfg.EstimateWidth = fixedWidth(0) // travel = 2000/400 = 5s

	events := Schedule([]chat.Message{
		{Time: 0, Text: "first"},
		{Time: 3, Text: "second"},
	}, cfg)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Start != 0 || events[0].End != 5 {
		t.Errorf("first event runs %v..%v, want 0..5", events[0].Start, events[0].End)
	}
	// The only lane is reserved until 5.25, so the second message waits.
	if events[1].Start != 5.25 {
		t.Errorf("second event starts at %v, want 5.25", events[1].Start)
	}
	if events[1].Lane != 0 {
		t.Errorf("second event on lane %d, want 0", events[1].Lane)
	}
}

func TestScheduleLowestFreeLaneWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LaneCount = 2

	events := Schedule([]chat.Message{
		{Time: 0, Text: "a"},
		{Time: 0, Text: "b"},
	}, cfg)

	if events[0].Lane != 0 {
		t.Errorf("first event on lane %d, want 0", events[0].Lane)
	}
	if events[1].Lane != 1 {
		t.Errorf("second event on lane %d, want 1", events[1].Lane)
	}
	if events[0].Start != 0 || events[1].Start != 0 {
		t.Errorf("both should start at arrival: %v, %v", events[0].Start, events[1].Start)
	}
}

func TestScheduleReusesFreedLane(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LaneCount = 3
	cfg.Speed = 400
	cfg.Margin = 80
	cfg.Gap = 1
	cfg.EstimateWidth = fixedWidth(0)

	// Three messages spread the lanes, then a late one arrives after lane 0
	// has freed up again. It should land back on lane 0, not lane 2's
	// successor.
	events := Schedule([]chat.Message{
		{Time: 0, Text: "a"},
		{Time: 0.1, Text: "b"},
		{Time: 0.2, Text: "c"},
		{Time: 30, Text: "d"},
	}, cfg)

	if events[3].Lane != 0 {
		t.Errorf("late event on lane %d, want 0", events[3].Lane)
	}
	if events[3].Start != 30 {
		t.Errorf("late event starts at %v, want 30", events[3].Start)
	}
}

func TestScheduleBusyTieBreaksByLane(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LaneCount = 2
	cfg.Speed = 400
	cfg.Margin = 80
	cfg.Gap = 0.5
	cfg.EstimateWidth = fixedWidth(0) // 5s travel for everyone

	// Both lanes free at 5.5 exactly; the overflow message must take lane 0.
	events := Schedule([]chat.Message{
		{Time: 0, Text: "a"},
		{Time: 0, Text: "b"},
		{Time: 1, Text: "c"},
	}, cfg)

	if events[2].Lane != 0 {
		t.Errorf("overflow event on lane %d, want 0", events[2].Lane)
	}
	if events[2].Start != 5.5 {
		t.Errorf("overflow event starts at %v, want 5.5", events[2].Start)
	}
}

func TestScheduleNeverDropsAndNeverOverlaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LaneCount = 3

	// A burst far denser than three lanes can absorb at arrival time.
	var msgs []chat.Message
	for i := 0; i < 120; i++ {
		msgs = append(msgs, chat.Message{
			Time: float64(i) * 0.05,
			Text: strings.Repeat("コ", 1+i%25),
		})
	}

	events := Schedule(msgs, cfg)
	if len(events) != len(msgs) {
		t.Fatalf("scheduled %d of %d messages", len(events), len(msgs))
	}

	byLane := map[int][]Event{}
	for _, ev := range events {
		if ev.End <= ev.Start {
			t.Fatalf("event %+v has non-positive duration", ev)
		}
		if ev.Start < msgs[0].Time {
			t.Fatalf("event %+v starts before any arrival", ev)
		}
		byLane[ev.Lane] = append(byLane[ev.Lane], ev)
	}

	for laneID, lane := range byLane {
		sort.Slice(lane, func(i, j int) bool { return lane[i].Start < lane[j].Start })
		for i := 1; i < len(lane); i++ {
			if lane[i].Start < lane[i-1].End+cfg.Gap {
				t.Errorf("lane %d: event at %v starts before %v (end %v + gap %v)",
					laneID, lane[i].Start, lane[i-1].End+cfg.Gap, lane[i-1].End, cfg.Gap)
			}
		}
	}
}

func TestScheduleDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	var msgs []chat.Message
	for i := 0; i < 50; i++ {
		msgs = append(msgs, chat.Message{Time: float64(i%7) + float64(i)*0.3, Text: strings.Repeat("x", i%40)})
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Time < msgs[j].Time })

	first := Schedule(msgs, cfg)
	second := Schedule(msgs, cfg)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical input produced different schedules")
	}
}

func TestScheduleEmptyTextStillMoves(t *testing.T) {
	cfg := DefaultConfig()
	events := Schedule([]chat.Message{{Time: 10, Text: ""}}, cfg)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].End <= events[0].Start {
		t.Errorf("empty text produced non-positive travel: %+v", events[0])
	}
	if events[0].XEnd != -cfg.MinWidth {
		t.Errorf("XEnd = %v, want %v", events[0].XEnd, -cfg.MinWidth)
	}
}

func TestScheduleTrajectory(t *testing.T) {
	cfg := DefaultConfig()
	events := Schedule([]chat.Message{{Time: 10, Text: strings.Repeat("あ", 10)}}, cfg)

	ev := events[0]
	if ev.XStart != 2000 {
		t.Errorf("XStart = %v, want 2000", ev.XStart)
	}
	if ev.XEnd != -360 {
		t.Errorf("XEnd = %v, want -360 (10 runes at 36px)", ev.XEnd)
	}
	// The trajectory distance divided by speed is exactly the duration.
	wantTravel := (ev.XStart - ev.XEnd) / cfg.Speed
	if got := ev.End - ev.Start; got != wantTravel {
		t.Errorf("travel = %v, want %v", got, wantTravel)
	}
}

func TestEstimateWidth(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		text string
		want float64
	}{
		{"", 320},
		{"short", 320},
		{strings.Repeat("あ", 10), 360},
		{strings.Repeat("w", 20), 720},
	}
	for _, tt := range tests {
		if got := cfg.estimateWidth(tt.text); got != tt.want {
			t.Errorf("estimateWidth(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

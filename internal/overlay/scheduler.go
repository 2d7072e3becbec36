// Package overlay schedules chat messages onto horizontal scroll lanes and
// serializes the result, plus the title bar, as ASS subtitle documents for
// the renderer.
package overlay

import (
	"container/heap"
	"unicode/utf8"

	"github.com/kirinuki/kirinuki-agent/internal/chat"
)

// Config controls lane scheduling and the chat overlay style.
type Config struct {
	ScreenWidth  int `yaml:"screen_width"`
	ScreenHeight int `yaml:"screen_height"`

	LaneCount   int `yaml:"lane_count"`
	LaneTop     int `yaml:"lane_top"`
	LaneSpacing int `yaml:"lane_spacing"`

	Speed    float64 `yaml:"speed"`     // scroll speed, px/s
	Margin   int     `yaml:"margin"`    // off-screen spawn margin, px
	MinWidth float64 `yaml:"min_width"` // floor for estimated text width, px
	Gap      float64 `yaml:"gap"`       // seconds a lane stays reserved after a message

	FontName string `yaml:"font_name"`
	FontSize int    `yaml:"font_size"`
	Outline  int    `yaml:"outline"`
	Shadow   int    `yaml:"shadow"`

	// Colors in ASS &HAABBGGRR form.
	TextColor    string `yaml:"text_color"`
	OutlineColor string `yaml:"outline_color"`
	BackColor    string `yaml:"back_color"`

	// Messages arriving earlier than this many seconds into the video are
	// not displayed; the opening belongs to the title animation.
	VisibleStartOffset float64 `yaml:"visible_start_offset"`

	// EstimateWidth overrides the rune-count width estimator when set.
	EstimateWidth func(text string) float64 `yaml:"-"`
}

// DefaultConfig is the standard 1080p layout: ten lanes starting below the
// title area, tuned for Hiragino Sans at 60px.
func DefaultConfig() Config {
	return Config{
		ScreenWidth:        1920,
		ScreenHeight:       1080,
		LaneCount:          10,
		LaneTop:            260,
		LaneSpacing:        60,
		Speed:              380,
		Margin:             80,
		MinWidth:           320,
		Gap:                1.0,
		FontName:           "Hiragino Sans",
		FontSize:           60,
		Outline:            3,
		Shadow:             2,
		TextColor:          "&H00FFFFFF",
		OutlineColor:       "&H00000000",
		BackColor:          "&H80000000",
		VisibleStartOffset: 5.0,
	}
}

// estimateWidth approximates rendered width in pixels. Hiragino Sans runs
// at roughly 0.6em per glyph.
func (c Config) estimateWidth(text string) float64 {
	if c.EstimateWidth != nil {
		return c.EstimateWidth(text)
	}
	w := float64(utf8.RuneCountInString(text)) * float64(c.FontSize) * 0.6
	if w < c.MinWidth {
		w = c.MinWidth
	}
	return w
}

// Event is one message placed on a lane with its full screen trajectory.
// The text scrolls from XStart to XEnd between Start and End.
type Event struct {
	Lane   int
	Start  float64
	End    float64
	XStart float64
	XEnd   float64
	Text   string
}

// lane is one display slot. A lane shows at most one message at a time and
// becomes available again Gap seconds after its message fully leaves.
type lane struct {
	id            int
	nextAvailable float64
}

// freeHeap orders idle lane ids ascending so the lowest id wins.
type freeHeap []int

func (h freeHeap) Len() int            { return len(h) }
func (h freeHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h freeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *freeHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *freeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// busyHeap orders occupied lanes by the time they free up, lowest id
// breaking ties.
type busyHeap []lane

func (h busyHeap) Len() int { return len(h) }
func (h busyHeap) Less(i, j int) bool {
	if h[i].nextAvailable != h[j].nextAvailable {
		return h[i].nextAvailable < h[j].nextAvailable
	}
	return h[i].id < h[j].id
}
func (h busyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *busyHeap) Push(x interface{}) { *h = append(*h, x.(lane)) }
func (h *busyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Schedule assigns every message to a display lane in arrival order.
// Messages must already be sorted by Time.
//
// A message takes the lowest-id lane that is free at its arrival and starts
// scrolling immediately. When every lane is occupied it takes the lane that
// frees up soonest and is held until then. Nothing is ever dropped, so a
// sustained burst can push messages arbitrarily late. Lane state carries
// across the whole stream; there is no per-clip reset.
func Schedule(msgs []chat.Message, cfg Config) []Event {
	if cfg.LaneCount < 1 {
		cfg.LaneCount = 1
	}

	free := make(freeHeap, cfg.LaneCount)
	for i := range free {
		free[i] = i
	}
	busy := make(busyHeap, 0, cfg.LaneCount)

	startX := float64(cfg.ScreenWidth + cfg.Margin)
	events := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		width := cfg.estimateWidth(msg.Text)
		travel := (startX + width) / cfg.Speed

		for len(busy) > 0 && busy[0].nextAvailable <= msg.Time {
			heap.Push(&free, heap.Pop(&busy).(lane).id)
		}

		start := msg.Time
		var id int
		if len(free) > 0 {
			id = heap.Pop(&free).(int)
		} else {
			l := heap.Pop(&busy).(lane)
			id = l.id
			start = l.nextAvailable
		}

		end := start + travel
		heap.Push(&busy, lane{id: id, nextAvailable: end + cfg.Gap})

		events = append(events, Event{
			Lane:   id,
			Start:  start,
			End:    end,
			XStart: startX,
			XEnd:   -width,
			Text:   msg.Text,
		})
	}
	return events
}

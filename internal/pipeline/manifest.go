package pipeline

import (
	"encoding/json"
	"os"
	"time"

	"github.com/kirinuki/kirinuki-agent/internal/timeline"
)

// Manifest is the machine-readable record a run leaves next to its
// artifacts. Artifact values are file names relative to the run directory
// so the record stays valid when the directory moves.
type Manifest struct {
	GeneratedAt  time.Time          `json:"generated_at"`
	Definition   string             `json:"definition"`
	Clips        []ManifestClip     `json:"clips"`
	Timeline     *timeline.Timeline `json:"timeline"`
	Artifacts    map[string]string  `json:"artifacts"`
	SubtitleCues int                `json:"subtitle_cues"`
	ChatEvents   int                `json:"chat_overlay_events"`
}

// ManifestClip records where one chain element came from and how long it
// actually ran.
type ManifestClip struct {
	Ref       string  `json:"ref"`
	VideoURL  string  `json:"video_url"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time,omitempty"`
	Duration  float64 `json:"duration"`
	ChatDelay float64 `json:"chat_delay,omitempty"`
}

func buildManifest(ref string, res *Result, arts []timeline.ClipArtifacts, artifacts map[string]string) *Manifest {
	m := &Manifest{
		GeneratedAt:  time.Now().UTC(),
		Definition:   ref,
		Timeline:     res.Timeline,
		Artifacts:    artifacts,
		SubtitleCues: res.SubtitleCues,
		ChatEvents:   res.ChatEvents,
	}
	for i, clip := range res.Clips {
		m.Clips = append(m.Clips, ManifestClip{
			Ref:       clip.Ref,
			VideoURL:  clip.VideoURL,
			StartTime: clip.StartTime,
			EndTime:   clip.EndTime,
			Duration:  arts[i].Duration,
			ChatDelay: clip.ChatDelay,
		})
	}
	return m
}

func writeManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

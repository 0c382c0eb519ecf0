// Package compositor resolves what is visible at a project time and paints it
// onto a frame. Preview and export share BuildScene so the browser layers and
// the recorded frames always agree.
package compositor

import (
	"github.com/reelcut/reelcut-agent/internal/captions"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

// Output frame size. Overlay and caption sizes are authored against this
// width.
const (
	FrameWidth  = 1080
	FrameHeight = 1920
)

// VisualLayer is the clip providing the base picture.
type VisualLayer struct {
	Clip      timeline.Clip `json:"clip"`
	LocalTime float64       `json:"local_time"`
}

// CaptionWord is one word of the visible caption group with its animation
// state resolved for the scene time.
type CaptionWord struct {
	Text           string  `json:"text"`
	Active         bool    `json:"active"`
	Progress       float64 `json:"progress"`
	Lift           float64 `json:"lift"`
	Scale          float64 `json:"scale"`
	HighlightAlpha float64 `json:"highlight_alpha"`
}

type CaptionLayer struct {
	Words []CaptionWord  `json:"words"`
	Style captions.Style `json:"style"`
	X     float64        `json:"x"`
	Y     float64        `json:"y"`
}

// Scene is everything visible at one instant.
type Scene struct {
	Time     float64            `json:"time"`
	Duration float64            `json:"duration"`
	Visual   *VisualLayer       `json:"visual,omitempty"`
	Overlays []timeline.Overlay `json:"overlays"`
	Captions *CaptionLayer      `json:"captions,omitempty"`
}

// BuildScene queries the timeline and caption model at t.
func BuildScene(tl *timeline.Timeline, cues []captions.Cue, settings captions.Settings, t float64) Scene {
	scene := Scene{
		Time:     t,
		Duration: tl.ProjectDuration(),
		Overlays: tl.ActiveOverlaysAt(t),
	}
	if scene.Overlays == nil {
		scene.Overlays = []timeline.Overlay{}
	}

	if c, ok := tl.ActiveAt(t, timeline.KindVideo); ok {
		scene.Visual = &VisualLayer{Clip: c, LocalTime: c.LocalTime(t)}
	}

	window := captions.WindowAt(cues, t)
	if len(window) == 0 {
		return scene
	}

	settings.Normalize()
	style := captions.LookupStyle(settings.StyleID).Scaled(settings.Scale())
	layer := &CaptionLayer{
		Style: style,
		X:     settings.X,
		Y:     settings.Y,
		Words: make([]CaptionWord, 0, len(window)),
	}
	for _, w := range window {
		word := CaptionWord{
			Text:     captions.ApplyLetterCase(w.Text, settings.LetterCase),
			Active:   w.Active,
			Progress: w.Progress,
			Scale:    1,
		}
		if w.Active {
			switch style.Animation {
			case captions.AnimationPill:
				word.HighlightAlpha = captions.PillAlpha(w.Progress)
			default:
				word.Lift = captions.BounceOffset(w.Progress)
				word.Scale = captions.PopScale(w.Progress)
			}
		}
		layer.Words = append(layer.Words, word)
	}
	scene.Captions = layer
	return scene
}

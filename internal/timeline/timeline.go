package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrClipNotFound    = errors.New("clip not found")
	ErrOverlayNotFound = errors.New("overlay not found")
)

// Timeline is the in-memory arrangement of a project. It is not safe for
// concurrent use; the owning session serializes access.
type Timeline struct {
	clips    []Clip
	overlays []Overlay
}

func New() *Timeline {
	return &Timeline{}
}

// FromDocument rebuilds a timeline from persisted slices. Clips are clamped
// back into their invariants and clips of unknown kind are dropped.
func FromDocument(clips []Clip, overlays []Overlay) *Timeline {
	t := &Timeline{
		clips:    make([]Clip, 0, len(clips)),
		overlays: make([]Overlay, 0, len(overlays)),
	}
	for _, c := range clips {
		if !c.Kind.Valid() {
			continue
		}
		c.enforce()
		t.clips = append(t.clips, c)
	}
	for _, o := range overlays {
		o.Normalize()
		t.overlays = append(t.overlays, o)
	}
	return t
}

// Clips returns a copy of the clip list in insertion order.
func (t *Timeline) Clips() []Clip {
	out := make([]Clip, len(t.clips))
	copy(out, t.clips)
	return out
}

func (t *Timeline) Overlays() []Overlay {
	out := make([]Overlay, len(t.overlays))
	copy(out, t.overlays)
	return out
}

func (t *Timeline) AddClip(c Clip) {
	t.clips = append(t.clips, c)
}

func (t *Timeline) Clip(id string) (Clip, bool) {
	for _, c := range t.clips {
		if c.ID == id {
			return c, true
		}
	}
	return Clip{}, false
}

func (t *Timeline) RemoveClip(id string) (Clip, error) {
	for i, c := range t.clips {
		if c.ID == id {
			t.clips = append(t.clips[:i], t.clips[i+1:]...)
			return c, nil
		}
	}
	return Clip{}, fmt.Errorf("remove %s: %w", id, ErrClipNotFound)
}

// ReplaceClip swaps in an edited clip with the same id.
func (t *Timeline) ReplaceClip(c Clip) error {
	for i := range t.clips {
		if t.clips[i].ID == c.ID {
			t.clips[i] = c
			return nil
		}
	}
	return fmt.Errorf("replace %s: %w", c.ID, ErrClipNotFound)
}

func (t *Timeline) AddOverlay(o Overlay) Overlay {
	o.Normalize()
	t.overlays = append(t.overlays, o)
	return o
}

func (t *Timeline) Overlay(id string) (Overlay, bool) {
	for _, o := range t.overlays {
		if o.ID == id {
			return o, true
		}
	}
	return Overlay{}, false
}

func (t *Timeline) UpdateOverlay(o Overlay) (Overlay, error) {
	o.Normalize()
	for i := range t.overlays {
		if t.overlays[i].ID == o.ID {
			t.overlays[i] = o
			return o, nil
		}
	}
	return Overlay{}, fmt.Errorf("update %s: %w", o.ID, ErrOverlayNotFound)
}

func (t *Timeline) RemoveOverlay(id string) error {
	for i, o := range t.overlays {
		if o.ID == id {
			t.overlays = append(t.overlays[:i], t.overlays[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("remove %s: %w", id, ErrOverlayNotFound)
}

// ActiveAt returns the clip on kind's track whose interval contains at.
// Overlapping clips are allowed; the last match in list order wins.
func (t *Timeline) ActiveAt(at float64, kind Kind) (Clip, bool) {
	track := TrackOf(kind)
	var found Clip
	ok := false
	for _, c := range t.clips {
		if TrackOf(c.Kind) == track && c.Contains(at) {
			found, ok = c, true
		}
	}
	return found, ok
}

// ActiveOverlaysAt returns every overlay containing at, ordered by start.
func (t *Timeline) ActiveOverlaysAt(at float64) []Overlay {
	var out []Overlay
	for _, o := range t.overlays {
		if o.Contains(at) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// TrackEnd is the end of the last clip sharing kind's track, or 0.
func (t *Timeline) TrackEnd(kind Kind) float64 {
	track := TrackOf(kind)
	end := 0.0
	for _, c := range t.clips {
		if TrackOf(c.Kind) == track {
			end = math.Max(end, c.End())
		}
	}
	return end
}

// ProjectDuration bounds playback, scrubbing and export.
func (t *Timeline) ProjectDuration() float64 {
	end := 0.0
	for _, c := range t.clips {
		end = math.Max(end, c.End())
	}
	for _, o := range t.overlays {
		end = math.Max(end, o.End())
	}
	return end
}

func (t *Timeline) Empty() bool {
	return len(t.clips) == 0 && len(t.overlays) == 0
}

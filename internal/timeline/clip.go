// Package timeline holds the arrangement of clips and overlays on the shared
// project clock and answers "what is active at time t" queries.
package timeline

import (
	"math"

	"github.com/google/uuid"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

type Track string

const (
	TrackVisual Track = "visual"
	TrackAudio  Track = "audio"
)

const (
	// QuantizeStep is the time grid drag results snap to.
	QuantizeStep = 1.0 / 20.0

	MinClipDuration  = 0.1
	ImageMaxDuration = 600.0
	DefaultImageDur  = 3.0

	DefaultVolume = 1.0
	MaxVolume     = 2.0

	epsilon = 1e-6
)

// TrackOf returns the lane a clip kind is placed on. Video and image share the
// visual track.
func TrackOf(k Kind) Track {
	if k == KindAudio {
		return TrackAudio
	}
	return TrackVisual
}

func (k Kind) Valid() bool {
	switch k {
	case KindVideo, KindImage, KindAudio:
		return true
	}
	return false
}

// Playable reports whether the kind has decodable media that must be kept in
// sync with the playhead.
func (k Kind) Playable() bool {
	return k == KindVideo || k == KindAudio
}

type Clip struct {
	ID             string  `json:"id"`
	FileID         string  `json:"file_id"`
	Name           string  `json:"name"`
	Kind           Kind    `json:"kind"`
	Start          float64 `json:"start"`
	Duration       float64 `json:"duration"`
	SourceOffset   float64 `json:"source_offset"`
	SourceDuration float64 `json:"source_duration"`
	Volume         float64 `json:"volume"`
	Muted          bool    `json:"muted"`
	PreviousVolume float64 `json:"previous_volume"`
}

// NewClip places a freshly imported file at start. Video and audio clips show
// their whole source; images get the default still duration.
func NewClip(fileID, name string, kind Kind, start, sourceDuration float64) Clip {
	c := Clip{
		ID:             uuid.NewString(),
		FileID:         fileID,
		Name:           name,
		Kind:           kind,
		Start:          math.Max(0, start),
		Volume:         DefaultVolume,
		PreviousVolume: DefaultVolume,
	}
	if kind == KindImage {
		c.Duration = DefaultImageDur
		return c
	}
	c.SourceDuration = sourceDuration
	c.Duration = math.Max(sourceDuration, MinClipDuration)
	if c.SourceDuration < c.Duration {
		c.SourceDuration = c.Duration
	}
	return c
}

func (c Clip) End() float64 {
	return c.Start + c.Duration
}

// Contains reports whether t falls inside the half-open interval [start, end).
func (c Clip) Contains(t float64) bool {
	return t >= c.Start && t < c.End()
}

// LocalTime maps a project time to a position inside the source media.
func (c Clip) LocalTime(t float64) float64 {
	return t - c.Start + c.SourceOffset
}

// OutputVolume is the gain actually applied to the clip's media.
func (c Clip) OutputVolume() float64 {
	if c.Kind == KindVideo && c.Muted {
		return 0
	}
	return c.Volume
}

type OverlayKind string

const (
	OverlayTitle   OverlayKind = "title"
	OverlaySticker OverlayKind = "sticker"
)

const (
	Transparent = "transparent"

	DefaultOverlayDuration = 3.0
	MinOverlaySize         = 16
	MaxOverlaySize         = 240
)

type Overlay struct {
	ID       string      `json:"id"`
	Kind     OverlayKind `json:"kind"`
	Text     string      `json:"text"`
	Start    float64     `json:"start"`
	Duration float64     `json:"duration"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	Size     float64     `json:"size"`
	Color    string      `json:"color"`
	BG       string      `json:"bg"`
}

// NewOverlay creates an overlay at the playhead with the kind's defaults.
func NewOverlay(kind OverlayKind, text string, at float64) Overlay {
	o := Overlay{
		ID:       uuid.NewString(),
		Kind:     kind,
		Text:     text,
		Start:    math.Max(0, at),
		Duration: DefaultOverlayDuration,
		X:        50,
		Y:        20,
		Size:     72,
		Color:    "#ffffff",
		BG:       Transparent,
	}
	if kind == OverlaySticker {
		o.Y = 50
		o.Size = 120
		o.BG = "#000000"
	}
	return o
}

func (o Overlay) End() float64 {
	return o.Start + o.Duration
}

func (o Overlay) Contains(t float64) bool {
	return t >= o.Start && t < o.End()
}

// Normalize clamps every field into its documented range.
func (o *Overlay) Normalize() {
	o.Start = math.Max(0, o.Start)
	if o.Duration < MinClipDuration {
		o.Duration = MinClipDuration
	}
	o.X = clamp(o.X, 0, 100)
	o.Y = clamp(o.Y, 0, 100)
	o.Size = clamp(o.Size, MinOverlaySize, MaxOverlaySize)
	if o.Color == "" {
		o.Color = "#ffffff"
	}
	if o.BG == "" {
		o.BG = Transparent
	}
}

func quantize(v float64) float64 {
	return math.Round(v/QuantizeStep) * QuantizeStep
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

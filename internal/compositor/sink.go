package compositor

import (
	"image"
	"image/color"

	"github.com/reelcut/reelcut-agent/internal/timeline"
)

type Rect struct {
	X, Y, W, H float64
}

// TextStyle describes one DrawText call. Text is anchored at its centre.
type TextStyle struct {
	Size         float64
	Fill         color.Color
	Outline      color.Color
	OutlineWidth float64
	Shadow       color.Color
	ShadowBlur   float64
}

// FrameSink is a drawing target: a raster frame for export, or a recorder of
// draw calls in tests.
type FrameSink interface {
	Clear(c color.Color)
	DrawCoverImage(img image.Image, dst Rect)
	FillRoundedRect(r Rect, radius float64, c color.Color)
	MeasureText(text string, size float64) (w, h float64)
	DrawText(text string, x, y float64, style TextStyle)
}

// FrameSource yields the decoded picture of a visual clip at a source-local
// time.
type FrameSource interface {
	FrameAt(clip timeline.Clip, local float64) (image.Image, error)
}

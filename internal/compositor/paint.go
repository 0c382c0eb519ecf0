package compositor

import (
	"image/color"
	"log/slog"
	"math"
)

const (
	// OverlayPadding is added on every side of an overlay's text box.
	OverlayPadding = 24.0
	overlayRadius  = 18.0
	pillPadX       = 18.0
	pillPadY       = 8.0
)

var black = color.NRGBA{A: 0xff}

// Painter draws scenes onto frame sinks.
type Painter struct {
	frames FrameSource
	logger *slog.Logger
}

func NewPainter(frames FrameSource, logger *slog.Logger) *Painter {
	return &Painter{frames: frames, logger: logger}
}

// Paint renders scene in layer order: black background, the active visual
// clip, overlays, captions. The background is cleared on every call so a gap
// in the visual track shows black instead of the last decoded frame.
func (p *Painter) Paint(scene Scene, sink FrameSink) {
	sink.Clear(black)

	if scene.Visual != nil && p.frames != nil {
		img, err := p.frames.FrameAt(scene.Visual.Clip, scene.Visual.LocalTime)
		switch {
		case err != nil:
			p.logger.Warn("frame unavailable", "clip_id", scene.Visual.Clip.ID, "error", err)
		case img != nil:
			b := img.Bounds()
			sink.DrawCoverImage(img, CoverRect(b.Dx(), b.Dy(), FrameWidth, FrameHeight))
		}
	}

	for _, o := range scene.Overlays {
		p.paintOverlay(o.Text, o.X, o.Y, o.Size, o.Color, o.BG, sink)
	}

	if scene.Captions != nil {
		p.paintCaptions(scene.Captions, sink)
	}
}

// CoverRect scales a src image uniformly so it covers the target, centred,
// letting the overflow fall outside the frame.
func CoverRect(srcW, srcH, dstW, dstH int) Rect {
	if srcW <= 0 || srcH <= 0 {
		return Rect{W: float64(dstW), H: float64(dstH)}
	}
	scale := math.Max(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	w := float64(srcW) * scale
	h := float64(srcH) * scale
	return Rect{
		X: (float64(dstW) - w) / 2,
		Y: (float64(dstH) - h) / 2,
		W: w,
		H: h,
	}
}

func (p *Painter) paintOverlay(text string, xPct, yPct, size float64, fg, bg string, sink FrameSink) {
	if text == "" {
		return
	}
	x := xPct / 100 * FrameWidth
	y := yPct / 100 * FrameHeight

	if bgColor := colorOr(bg, color.NRGBA{}); bgColor.A > 0 {
		w, h := sink.MeasureText(text, size)
		sink.FillRoundedRect(Rect{
			X: x - w/2 - OverlayPadding,
			Y: y - h/2 - OverlayPadding,
			W: w + 2*OverlayPadding,
			H: h + 2*OverlayPadding,
		}, overlayRadius, bgColor)
	}

	sink.DrawText(text, x, y, TextStyle{
		Size:         size,
		Fill:         colorOr(fg, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}),
		Outline:      black,
		OutlineWidth: math.Max(2, size/24),
	})
}

// paintCaptions lays the group out left to right, each word advancing the
// cursor by its measured width plus one space, centred as a whole on the
// anchor.
func (p *Painter) paintCaptions(layer *CaptionLayer, sink FrameSink) {
	if len(layer.Words) == 0 {
		return
	}
	st := layer.Style
	size := st.FontSize
	space, _ := sink.MeasureText(" ", size)

	widths := make([]float64, len(layer.Words))
	total := 0.0
	for i, w := range layer.Words {
		widths[i], _ = sink.MeasureText(w.Text, size)
		total += widths[i]
	}
	total += space * float64(len(layer.Words)-1)

	anchorX := layer.X / 100 * FrameWidth
	anchorY := layer.Y / 100 * FrameHeight
	cursor := anchorX - total/2

	fill := colorOr(st.Fill, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	active := colorOr(st.ActiveFill, fill)
	outline := colorOr(st.Outline, black)
	var shadow color.Color
	if st.Shadow != "" {
		shadow = colorOr(st.Shadow, black)
	}

	for i, w := range layer.Words {
		cx := cursor + widths[i]/2
		cy := anchorY - w.Lift*size

		if w.Active && w.HighlightAlpha > 0 {
			hl := withAlpha(colorOr(st.Highlight, active), w.HighlightAlpha)
			sink.FillRoundedRect(Rect{
				X: cursor - pillPadX,
				Y: anchorY - size/2 - pillPadY,
				W: widths[i] + 2*pillPadX,
				H: size + 2*pillPadY,
			}, size/3, hl)
		}

		ts := TextStyle{
			Size:         size * w.Scale,
			Fill:         fill,
			Outline:      outline,
			OutlineWidth: st.OutlineWidth,
			Shadow:       shadow,
			ShadowBlur:   st.ShadowBlur,
		}
		if w.Active {
			ts.Fill = active
		}
		sink.DrawText(w.Text, cx, cy, ts)
		cursor += widths[i] + space
	}
}

package compositor

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
)

// outlineSteps is how many offset passes approximate a stroked outline.
const outlineSteps = 16

// RasterSink paints into an in-memory RGBA frame. The frame buffer is reused
// across calls; Clear resets it.
type RasterSink struct {
	dc    *gg.Context
	font  *truetype.Font
	faces map[float64]font.Face
}

func NewRasterSink(width, height int) (*RasterSink, error) {
	f, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return &RasterSink{
		dc:    gg.NewContext(width, height),
		font:  f,
		faces: make(map[float64]font.Face),
	}, nil
}

func (s *RasterSink) Clear(c color.Color) {
	s.dc.SetColor(c)
	s.dc.Clear()
}

func (s *RasterSink) DrawCoverImage(img image.Image, dst Rect) {
	rgba, ok := s.dc.Image().(*image.RGBA)
	if !ok {
		s.dc.DrawImage(img, int(dst.X), int(dst.Y))
		return
	}
	r := image.Rect(
		int(math.Round(dst.X)),
		int(math.Round(dst.Y)),
		int(math.Round(dst.X+dst.W)),
		int(math.Round(dst.Y+dst.H)),
	)
	draw.ApproxBiLinear.Scale(rgba, r, img, img.Bounds(), draw.Over, nil)
}

func (s *RasterSink) FillRoundedRect(r Rect, radius float64, c color.Color) {
	s.dc.DrawRoundedRectangle(r.X, r.Y, r.W, r.H, radius)
	s.dc.SetColor(c)
	s.dc.Fill()
}

func (s *RasterSink) MeasureText(text string, size float64) (float64, float64) {
	s.dc.SetFontFace(s.face(size))
	return s.dc.MeasureString(text)
}

func (s *RasterSink) DrawText(text string, x, y float64, style TextStyle) {
	s.dc.SetFontFace(s.face(style.Size))

	if style.Shadow != nil && style.ShadowBlur > 0 {
		off := style.ShadowBlur / 3
		s.dc.SetColor(style.Shadow)
		s.dc.DrawStringAnchored(text, x+off, y+off, 0.5, 0.5)
	}

	if style.Outline != nil && style.OutlineWidth > 0 {
		s.dc.SetColor(style.Outline)
		for i := 0; i < outlineSteps; i++ {
			a := 2 * math.Pi * float64(i) / outlineSteps
			dx := math.Cos(a) * style.OutlineWidth
			dy := math.Sin(a) * style.OutlineWidth
			s.dc.DrawStringAnchored(text, x+dx, y+dy, 0.5, 0.5)
		}
	}

	fill := style.Fill
	if fill == nil {
		fill = color.White
	}
	s.dc.SetColor(fill)
	s.dc.DrawStringAnchored(text, x, y, 0.5, 0.5)
}

// Image returns the frame buffer. It is overwritten by the next paint.
func (s *RasterSink) Image() *image.RGBA {
	if rgba, ok := s.dc.Image().(*image.RGBA); ok {
		return rgba
	}
	b := s.dc.Image().Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, s.dc.Image(), b.Min, draw.Src)
	return out
}

func (s *RasterSink) EncodePNG(w io.Writer) error {
	if err := s.dc.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

func (s *RasterSink) face(size float64) font.Face {
	size = math.Round(size*2) / 2
	if f, ok := s.faces[size]; ok {
		return f
	}
	f := truetype.NewFace(s.font, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	s.faces[size] = f
	return f
}

package ui

import (
	"bytes"
	"image/png"

	"github.com/fogleman/gg"
)

const iconSize = 64

// iconPNG draws the tray icon: a portrait frame with a play mark.
func iconPNG(size int) ([]byte, error) {
	s := float64(size)
	dc := gg.NewContext(size, size)

	w := s * 0.56
	h := s * 0.92
	x := (s - w) / 2
	y := (s - h) / 2
	dc.DrawRoundedRectangle(x, y, w, h, s*0.1)
	dc.SetHexColor("#ff3b5c")
	dc.Fill()

	cx, cy := s/2, s/2
	r := w * 0.28
	dc.MoveTo(cx-r*0.6, cy-r)
	dc.LineTo(cx+r, cy)
	dc.LineTo(cx-r*0.6, cy+r)
	dc.ClosePath()
	dc.SetHexColor("#ffffff")
	dc.Fill()

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

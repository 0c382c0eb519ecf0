package timeline

import (
	"fmt"
	"math"
)

type DragMode string

const (
	DragMove      DragMode = "move"
	DragTrimLeft  DragMode = "trim-left"
	DragTrimRight DragMode = "trim-right"
)

func (m DragMode) Valid() bool {
	switch m {
	case DragMove, DragTrimLeft, DragTrimRight:
		return true
	}
	return false
}

// ApplyDrag returns origin edited by a drag gesture of delta seconds. The
// delta is measured from the state at gesture start so repeated pointer moves
// never accumulate rounding error.
func ApplyDrag(origin Clip, mode DragMode, delta float64) (Clip, error) {
	c := origin
	switch mode {
	case DragMove:
		c.Start = math.Max(0, quantize(origin.Start+delta))
	case DragTrimRight:
		c.Duration = clamp(origin.Duration+quantize(delta), MinClipDuration, maxDuration(origin))
	case DragTrimLeft:
		shift := clamp(quantize(origin.Start+delta)-origin.Start, minLeftShift(origin), origin.Duration-MinClipDuration)
		end := origin.End()
		c.Start = origin.Start + shift
		c.Duration = end - c.Start
		if c.Kind.Playable() {
			c.SourceOffset = origin.SourceOffset + shift
		}
	default:
		return origin, fmt.Errorf("unknown drag mode %q", mode)
	}
	c.enforce()
	return c, nil
}

// SetVolume clamps a linear gain into [0, MaxVolume].
func (c *Clip) SetVolume(v float64) {
	c.Volume = clamp(v, 0, MaxVolume)
	if c.Volume > 0 {
		c.PreviousVolume = c.Volume
	}
}

// ToggleMute flips the video mute flag, remembering the gain to restore.
func (c *Clip) ToggleMute() {
	if c.Kind != KindVideo {
		return
	}
	if c.Muted {
		c.Muted = false
		if c.Volume == 0 {
			c.Volume = c.PreviousVolume
			if c.Volume == 0 {
				c.Volume = DefaultVolume
			}
		}
		return
	}
	if c.Volume > 0 {
		c.PreviousVolume = c.Volume
	}
	c.Muted = true
}

func maxDuration(c Clip) float64 {
	if c.Kind == KindImage {
		return ImageMaxDuration
	}
	return math.Max(MinClipDuration, c.SourceDuration-c.SourceOffset)
}

// minLeftShift is the furthest a left edge can be dragged towards zero.
func minLeftShift(c Clip) float64 {
	lo := -c.Start
	if c.Kind.Playable() {
		lo = math.Max(lo, -c.SourceOffset)
	} else {
		lo = math.Max(lo, c.Duration-ImageMaxDuration)
	}
	return math.Min(lo, 0)
}

// enforce restores the clip invariants after arithmetic on float positions.
func (c *Clip) enforce() {
	if c.Start < 0 {
		c.Start = 0
	}
	if c.Duration < MinClipDuration {
		c.Duration = MinClipDuration
	}
	if !c.Kind.Playable() {
		c.SourceOffset = 0
		if c.Duration > ImageMaxDuration {
			c.Duration = ImageMaxDuration
		}
		return
	}
	if c.SourceOffset < 0 {
		c.SourceOffset = 0
	}
	if maxOffset := c.SourceDuration - MinClipDuration; c.SourceOffset > maxOffset {
		c.SourceOffset = math.Max(0, maxOffset)
	}
	if c.SourceOffset+c.Duration > c.SourceDuration+epsilon {
		c.Duration = math.Max(MinClipDuration, c.SourceDuration-c.SourceOffset)
	}
}

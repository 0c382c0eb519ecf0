// Package playback owns the virtual playhead and keeps per-clip media sinks
// aligned with it. It also serves media blobs with byte-range support.
package playback

import (
	"math"
	"time"
)

// Clock is the project playhead. Position advances with wall time while
// playing and is always clamped to [0, duration]. Not safe for concurrent
// use; the owning session serializes access.
type Clock struct {
	duration float64
	position float64
	playing  bool

	anchorPos float64
	anchorAt  time.Time
}

func NewClock(duration float64) *Clock {
	return &Clock{duration: math.Max(0, duration)}
}

func (c *Clock) Duration() float64 { return c.duration }
func (c *Clock) Position() float64 { return c.position }
func (c *Clock) Playing() bool     { return c.playing }

// SetDuration updates the bound after a timeline edit. A playhead past the new
// end is pulled back and playback stops.
func (c *Clock) SetDuration(d float64) {
	c.duration = math.Max(0, d)
	if c.position > c.duration {
		c.position = c.duration
		c.playing = false
	}
}

// Play starts the clock at now. Playing from the end rewinds to zero. An
// empty project never starts.
func (c *Clock) Play(now time.Time) bool {
	if c.duration <= 0 {
		return false
	}
	if c.position >= c.duration {
		c.position = 0
	}
	c.playing = true
	c.anchorPos = c.position
	c.anchorAt = now
	return true
}

// Pause freezes the position reached at now.
func (c *Clock) Pause(now time.Time) {
	if c.playing {
		c.Advance(now)
	}
	c.playing = false
}

// Seek moves the playhead; while playing the clock keeps running from t.
func (c *Clock) Seek(t float64, now time.Time) float64 {
	c.position = c.clamp(t)
	c.anchorPos = c.position
	c.anchorAt = now
	return c.position
}

// Advance moves a playing clock to now. It reports true when the end was
// reached, in which case the clock has stopped.
func (c *Clock) Advance(now time.Time) bool {
	if !c.playing {
		return false
	}
	elapsed := now.Sub(c.anchorAt).Seconds()
	c.position = c.clamp(c.anchorPos + elapsed)
	if c.position >= c.duration {
		c.playing = false
		return true
	}
	return false
}

func (c *Clock) clamp(t float64) float64 {
	return math.Max(0, math.Min(c.duration, t))
}

package playback

import (
	"math"

	"github.com/reelcut/reelcut-agent/internal/timeline"
)

// DefaultTolerance is the drift, in seconds, a playing sink may accumulate
// before it is forced back onto the playhead.
const DefaultTolerance = 0.2

// MediaSink is one decodable media instance bound to a clip.
type MediaSink interface {
	SetVolume(v float64)
	SeekTo(pos float64)
	Play()
	Pause()
	CurrentPosition() float64
}

// Synchronizer reconciles sinks with the playhead. The outcome depends only on
// the playhead time, the clip state and each sink's reported position.
type Synchronizer struct {
	Tolerance float64
}

func NewSynchronizer() *Synchronizer {
	return &Synchronizer{Tolerance: DefaultTolerance}
}

// Sync applies volume, position and play state to every playable clip's sink.
// hard forces an exact seek regardless of drift, used after scrubbing.
func (s *Synchronizer) Sync(clips []timeline.Clip, sinks map[string]MediaSink, t float64, playing, hard bool) {
	for _, c := range clips {
		if !c.Kind.Playable() {
			continue
		}
		sink, ok := sinks[c.ID]
		if !ok || sink == nil {
			continue
		}

		sink.SetVolume(c.OutputVolume())

		if !c.Contains(t) {
			sink.Pause()
			continue
		}

		local := c.LocalTime(t)
		if hard || math.Abs(sink.CurrentPosition()-local) > s.tolerance() {
			sink.SeekTo(local)
		}
		if playing {
			sink.Play()
		} else {
			sink.Pause()
		}
	}
}

// PauseAll stops every sink, used before export takes over the clock.
func (s *Synchronizer) PauseAll(sinks map[string]MediaSink) {
	for _, sink := range sinks {
		if sink != nil {
			sink.Pause()
		}
	}
}

func (s *Synchronizer) tolerance() float64 {
	if s.Tolerance <= 0 {
		return DefaultTolerance
	}
	return s.Tolerance
}

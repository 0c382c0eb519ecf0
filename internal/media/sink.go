package media

import (
	"sync"
	"time"
)

// SinkState is what a sink reports back to the browser so its media element
// can mirror the agent's playback.
type SinkState struct {
	Position float64 `json:"position"`
	Volume   float64 `json:"volume"`
	Playing  bool    `json:"playing"`
}

// Sink is a per-clip media instance driven by the playback synchronizer.
type Sink interface {
	SetVolume(v float64)
	SeekTo(pos float64)
	Play()
	Pause()
	CurrentPosition() float64
	State() SinkState
	Close() error
}

// ClockSink stands in for a media element whose decoding happens elsewhere
// (the browser, or the export mixer). Its position runs with wall time while
// playing.
type ClockSink struct {
	now func() time.Time

	mu      sync.Mutex
	pos     float64
	anchor  time.Time
	playing bool
	volume  float64
}

func NewClockSink() *ClockSink {
	return &ClockSink{now: time.Now, volume: 1}
}

func (s *ClockSink) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

func (s *ClockSink) SeekTo(pos float64) {
	s.mu.Lock()
	s.pos = pos
	s.anchor = s.now()
	s.mu.Unlock()
}

func (s *ClockSink) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		return
	}
	s.anchor = s.now()
	s.playing = true
}

func (s *ClockSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	s.pos = s.positionLocked()
	s.playing = false
}

func (s *ClockSink) CurrentPosition() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *ClockSink) State() SinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SinkState{Position: s.positionLocked(), Volume: s.volume, Playing: s.playing}
}

func (s *ClockSink) Close() error { return nil }

func (s *ClockSink) positionLocked() float64 {
	if !s.playing {
		return s.pos
	}
	return s.pos + s.now().Sub(s.anchor).Seconds()
}

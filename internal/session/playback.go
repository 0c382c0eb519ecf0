package session

import (
	"time"

	"github.com/reelcut/reelcut-agent/internal/compositor"
	"github.com/reelcut/reelcut-agent/internal/media"
	"github.com/reelcut/reelcut-agent/internal/playback"
)

// PlaybackState is the playhead plus what every clip's sink is doing, so the
// browser can mirror it on its own media elements.
type PlaybackState struct {
	Position float64                    `json:"position"`
	Duration float64                    `json:"duration"`
	Playing  bool                       `json:"playing"`
	Sinks    map[string]media.SinkState `json:"sinks"`
}

func (s *Session) PlaybackState() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playbackStateLocked()
}

func (s *Session) playbackStateLocked() PlaybackState {
	st := PlaybackState{
		Position: s.clock.Position(),
		Duration: s.clock.Duration(),
		Playing:  s.clock.Playing(),
		Sinks:    make(map[string]media.SinkState, len(s.sinks)),
	}
	for id, sink := range s.sinks {
		st.Sinks[id] = sink.State()
	}
	return st
}

// Play starts the playhead and the frame driver. An empty project does not
// start.
func (s *Session) Play() (PlaybackState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return s.playbackStateLocked(), ErrExporting
	}
	if s.clock.Play(s.now()) {
		s.syncLocked(true)
		s.driver.Start(s.ctx, s.tick)
	}
	return s.playbackStateLocked(), nil
}

func (s *Session) Pause() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Pause(s.now())
	s.driver.Stop()
	s.syncLocked(false)
	return s.playbackStateLocked()
}

// Seek moves the playhead and hard-syncs every sink to it.
func (s *Session) Seek(t float64) PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Seek(t, s.now())
	s.syncLocked(true)
	return s.playbackStateLocked()
}

// Tick advances a playing clock. It returns false once playback has stopped.
func (s *Session) Tick(now time.Time) bool {
	return s.tick(now)
}

func (s *Session) tick(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.clock.Playing() {
		return false
	}
	reachedEnd := s.clock.Advance(now)
	s.syncLocked(reachedEnd)
	return !reachedEnd
}

// Scene resolves what is visible at t, or at the playhead when t is nil.
func (s *Session) Scene(t *float64) compositor.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.clock.Position()
	if t != nil {
		at = *t
	}
	return compositor.BuildScene(s.tl, s.cues, s.settings, at)
}

// syncLocked makes sure every playable clip has a sink, then reconciles them
// with the playhead.
func (s *Session) syncLocked(hard bool) {
	clips := s.tl.Clips()
	sinks := make(map[string]playback.MediaSink, len(clips))
	for _, c := range clips {
		if !c.Kind.Playable() {
			continue
		}
		sink, ok := s.sinks[c.ID]
		if !ok {
			if s.deps.Sinks == nil {
				continue
			}
			sink = s.deps.Sinks.Sink(c)
			s.sinks[c.ID] = sink
		}
		sinks[c.ID] = sink
	}
	s.syncer.Sync(clips, sinks, s.clock.Position(), s.clock.Playing(), hard)
}

func (s *Session) pauseAllLocked() {
	sinks := make(map[string]playback.MediaSink, len(s.sinks))
	for id, sink := range s.sinks {
		sinks[id] = sink
	}
	s.syncer.PauseAll(sinks)
}

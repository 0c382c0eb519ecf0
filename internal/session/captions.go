package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/reelcut/reelcut-agent/internal/captions"
	"github.com/reelcut/reelcut-agent/internal/speech"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

func (s *Session) SetCaptionSettings(settings captions.Settings) (captions.Settings, error) {
	if err := settings.Validate(); err != nil {
		return captions.Settings{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	settings.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return captions.Settings{}, ErrExporting
	}
	s.settings = settings
	s.drafter.Touch()
	return settings, nil
}

// SetCues replaces the cue list. Cues are re-split so each holds one word.
func (s *Session) SetCues(cues []captions.Cue) ([]captions.Cue, error) {
	for i, c := range cues {
		if strings.TrimSpace(c.Text) == "" {
			return nil, fmt.Errorf("%w: cue %d has no text", ErrInvalidInput, i)
		}
		if c.Start < 0 || c.End < c.Start {
			return nil, fmt.Errorf("%w: cue %d has an invalid interval", ErrInvalidInput, i)
		}
	}
	out := captions.Resubdivide(cues)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return nil, ErrExporting
	}
	s.cues = out
	s.drafter.Touch()
	return append([]captions.Cue(nil), out...), nil
}

// GenerateCaptions transcribes one clip and replaces the cue list with the
// result, shifted onto the project clock. An empty clipID picks the first
// video clip, else the first audio clip.
func (s *Session) GenerateCaptions(ctx context.Context, clipID string, progress speech.ProgressFunc) ([]captions.Cue, error) {
	if s.deps.Recognizer == nil || s.deps.Audio == nil {
		return nil, ErrNoRecognizer
	}

	s.mu.Lock()
	if s.exporting {
		s.mu.Unlock()
		return nil, ErrExporting
	}
	if s.generating {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	clip, err := s.speechClipLocked(clipID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.generating = true
	s.status = "Generating captions..."
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.generating = false
		s.mu.Unlock()
	}()

	cues, err := s.transcribe(ctx, clip, progress)
	if err != nil {
		s.setStatus("Caption generation failed: " + err.Error())
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return nil, ErrExporting
	}
	s.cues = cues
	s.status = fmt.Sprintf("Generated %d caption words", len(cues))
	s.drafter.Touch()
	s.logger.Info("captions generated", "clip_id", clip.ID, "cues", len(cues))
	return append([]captions.Cue(nil), cues...), nil
}

func (s *Session) transcribe(ctx context.Context, clip timeline.Clip, progress speech.ProgressFunc) ([]captions.Cue, error) {
	audio, err := s.deps.Audio.Extract(ctx, clip)
	if err != nil {
		return nil, fmt.Errorf("extract audio: %w", err)
	}

	report := func(p speech.Progress) {
		s.setStatus(fmt.Sprintf("Loading speech model %s: %d%%", p.File, p.Percent()))
		if progress != nil {
			progress(p)
		}
	}
	res, err := s.deps.Recognizer.Transcribe(ctx, audio, s.deps.SpeechOptions, report)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	cues := captions.BuildCues(res.CaptionChunks(), clip.Duration)
	for i := range cues {
		cues[i].Start += clip.Start
		cues[i].End += clip.Start
	}
	return cues, nil
}

func (s *Session) speechClipLocked(clipID string) (timeline.Clip, error) {
	if clipID != "" {
		c, ok := s.tl.Clip(clipID)
		if !ok {
			return timeline.Clip{}, fmt.Errorf("clip %s: %w", clipID, ErrNotFound)
		}
		if !c.Kind.Playable() {
			return timeline.Clip{}, fmt.Errorf("%w: clip %s has no audio", ErrInvalidInput, clipID)
		}
		return c, nil
	}
	var audio *timeline.Clip
	for _, c := range s.tl.Clips() {
		if c.Kind == timeline.KindVideo {
			return c, nil
		}
		if c.Kind == timeline.KindAudio && audio == nil {
			audio = &c
		}
	}
	if audio != nil {
		return *audio, nil
	}
	return timeline.Clip{}, ErrNoSpeech
}

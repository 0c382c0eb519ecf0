// Package library keeps synthesized voice clips so they can be placed into
// any project.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/reelcut/reelcut-agent/internal/logging"
	"github.com/reelcut/reelcut-agent/internal/store"
	"github.com/reelcut/reelcut-agent/internal/voice"
)

const (
	defaultName = "Voiceover"
	maxNameLen  = 40
)

var ErrNotConfigured = errors.New("speech synthesis is not configured")

// Synthesizer is the text-to-speech collaborator.
type Synthesizer interface {
	Synthesize(ctx context.Context, req voice.SynthesizeRequest) (*voice.Audio, error)
	HistoryAudio(ctx context.Context, id string) (*voice.Audio, error)
}

type Store interface {
	PutFile(ctx context.Context, f *store.MediaFile) error
	CreateSavedAudio(ctx context.Context, a *store.SavedAudio) error
	GetSavedAudio(ctx context.Context, id string) (*store.SavedAudio, error)
	ListSavedAudio(ctx context.Context) ([]*store.SavedAudio, error)
}

// SaveRequest names a past generation to copy into the library.
type SaveRequest struct {
	HistoryItemID string `json:"history_item_id"`
	Name          string `json:"name"`
	Text          string `json:"text"`
	VoiceID       string `json:"voice_id"`
}

type Service struct {
	store  Store
	voice  Synthesizer
	logger *slog.Logger
}

// NewService builds the library. synth may be nil when no API key is set;
// listing still works.
func NewService(st Store, synth Synthesizer, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		voice:  synth,
		logger: logging.WithComponent(logger, "library"),
	}
}

// Synthesize generates speech and keeps the result.
func (s *Service) Synthesize(ctx context.Context, req voice.SynthesizeRequest, name string) (*store.SavedAudio, error) {
	if s.voice == nil {
		return nil, ErrNotConfigured
	}
	audio, err := s.voice.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, audio, SaveRequest{
		HistoryItemID: audio.HistoryItemID,
		Name:          name,
		Text:          req.Text,
		VoiceID:       req.VoiceID,
	})
}

// SaveHistory copies an earlier generation out of the provider's history.
func (s *Service) SaveHistory(ctx context.Context, req SaveRequest) (*store.SavedAudio, error) {
	if s.voice == nil {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(req.HistoryItemID) == "" {
		return nil, errors.New("history_item_id is required")
	}
	audio, err := s.voice.HistoryAudio(ctx, req.HistoryItemID)
	if err != nil {
		return nil, err
	}
	req.HistoryItemID = strings.TrimSpace(req.HistoryItemID)
	return s.save(ctx, audio, req)
}

func (s *Service) List(ctx context.Context) ([]*store.SavedAudio, error) {
	return s.store.ListSavedAudio(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*store.SavedAudio, error) {
	return s.store.GetSavedAudio(ctx, id)
}

func (s *Service) save(ctx context.Context, audio *voice.Audio, req SaveRequest) (*store.SavedAudio, error) {
	name := entryName(req.Name, req.Text)
	contentType := audio.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(audio.Data).String()
	}

	now := time.Now()
	f := &store.MediaFile{
		ID:        uuid.NewString(),
		Name:      name + extension(contentType),
		MimeType:  contentType,
		Data:      audio.Data,
		CreatedAt: now,
	}
	if err := s.store.PutFile(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to store audio: %w", err)
	}

	entry := &store.SavedAudio{
		ID:            uuid.NewString(),
		FileID:        f.ID,
		Name:          name,
		Text:          req.Text,
		VoiceID:       req.VoiceID,
		HistoryItemID: req.HistoryItemID,
		CreatedAt:     now,
	}
	if err := s.store.CreateSavedAudio(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save audio: %w", err)
	}

	s.logger.Info("audio saved to library", "audio_id", entry.ID, "file_id", f.ID, "bytes", len(audio.Data))
	return entry, nil
}

// entryName prefers the given name, then the start of the spoken text.
func entryName(name, text string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return defaultName
	}
	if utf8.RuneCountInString(text) > maxNameLen {
		text = strings.TrimSpace(string([]rune(text)[:maxNameLen])) + "..."
	}
	return text
}

func extension(contentType string) string {
	if m := mimetype.Lookup(contentType); m != nil {
		return m.Extension()
	}
	return ""
}

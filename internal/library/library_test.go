package library

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reelcut/reelcut-agent/internal/db"
	"github.com/reelcut/reelcut-agent/internal/store"
	"github.com/reelcut/reelcut-agent/internal/voice"
)

type fakeSynth struct {
	audio   *voice.Audio
	err     error
	lastReq voice.SynthesizeRequest
	lastID  string
}

func (f *fakeSynth) Synthesize(_ context.Context, req voice.SynthesizeRequest) (*voice.Audio, error) {
	f.lastReq = req
	return f.audio, f.err
}

func (f *fakeSynth) HistoryAudio(_ context.Context, id string) (*voice.Audio, error) {
	f.lastID = id
	return f.audio, f.err
}

func setupTestDB(t *testing.T) *store.SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return store.NewRepository(database.Conn())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestService_Synthesize(t *testing.T) {
	repo := setupTestDB(t)
	synth := &fakeSynth{audio: &voice.Audio{Data: []byte("ID3audio"), ContentType: "audio/mpeg", HistoryItemID: "h-1"}}
	svc := NewService(repo, synth, testLogger())

	entry, err := svc.Synthesize(context.Background(), voice.SynthesizeRequest{Text: "Welcome back", VoiceID: "v-1"}, "")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if entry.Name != "Welcome back" || entry.VoiceID != "v-1" || entry.HistoryItemID != "h-1" {
		t.Errorf("entry = %+v", entry)
	}

	f, err := repo.GetFile(context.Background(), entry.FileID)
	if err != nil || f == nil {
		t.Fatalf("GetFile() = %v, %v", f, err)
	}
	if f.Name != "Welcome back.mp3" || f.MimeType != "audio/mpeg" || string(f.Data) != "ID3audio" {
		t.Errorf("file = %s %s %q", f.Name, f.MimeType, f.Data)
	}

	list, err := svc.List(context.Background())
	if err != nil || len(list) != 1 || list[0].ID != entry.ID {
		t.Errorf("List() = %v, %v", list, err)
	}
}

func TestService_SynthesizeFailure(t *testing.T) {
	repo := setupTestDB(t)
	apiErr := &voice.APIError{StatusCode: 401, Message: "invalid api key"}
	svc := NewService(repo, &fakeSynth{err: apiErr}, testLogger())

	_, err := svc.Synthesize(context.Background(), voice.SynthesizeRequest{Text: "hi"}, "greeting")
	var got *voice.APIError
	if !errors.As(err, &got) || got.Message != "invalid api key" {
		t.Fatalf("Synthesize() error = %v, want APIError", err)
	}
	list, _ := svc.List(context.Background())
	if len(list) != 0 {
		t.Errorf("failed synthesis saved %d entries", len(list))
	}
}

func TestService_SaveHistory(t *testing.T) {
	repo := setupTestDB(t)
	synth := &fakeSynth{audio: &voice.Audio{Data: []byte("ID3take")}}
	svc := NewService(repo, synth, testLogger())

	entry, err := svc.SaveHistory(context.Background(), SaveRequest{HistoryItemID: " h-9 ", Name: "Intro take"})
	if err != nil {
		t.Fatalf("SaveHistory() error = %v", err)
	}
	if synth.lastID != " h-9 " && synth.lastID != "h-9" {
		t.Errorf("history id = %q", synth.lastID)
	}
	if entry.Name != "Intro take" || entry.HistoryItemID != "h-9" {
		t.Errorf("entry = %+v", entry)
	}
	got, _ := svc.Get(context.Background(), entry.ID)
	if got == nil || got.FileID != entry.FileID {
		t.Errorf("Get() = %+v", got)
	}

	if _, err := svc.SaveHistory(context.Background(), SaveRequest{}); err == nil {
		t.Error("SaveHistory() without id should fail")
	}
}

func TestService_NotConfigured(t *testing.T) {
	svc := NewService(setupTestDB(t), nil, testLogger())
	if _, err := svc.Synthesize(context.Background(), voice.SynthesizeRequest{Text: "x"}, ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Synthesize() error = %v", err)
	}
	if _, err := svc.SaveHistory(context.Background(), SaveRequest{HistoryItemID: "h"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("SaveHistory() error = %v", err)
	}
}

func TestEntryName(t *testing.T) {
	long := strings.Repeat("word ", 20)
	tests := []struct {
		name, text, want string
	}{
		{"  Custom ", "ignored", "Custom"},
		{"", "  hello   there ", "hello there"},
		{"", "", defaultName},
		{"", long, strings.TrimSpace(long[:maxNameLen]) + "..."},
	}
	for _, tt := range tests {
		if got := entryName(tt.name, tt.text); got != tt.want {
			t.Errorf("entryName(%q, %q) = %q, want %q", tt.name, tt.text, got, tt.want)
		}
	}
}

package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/reelcut/reelcut-agent/internal/media"
	"github.com/reelcut/reelcut-agent/internal/store"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

type fakeProber struct {
	mu        sync.Mutex
	durations map[string]float64
	err       error
	calls     int
}

func (f *fakeProber) ProbeBytes(_ context.Context, data []byte) (*media.ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &media.ProbeResult{Duration: f.durations[string(data)]}, nil
}

type fakeFiles struct {
	files []*store.MediaFile
	err   error
}

func (f *fakeFiles) PutFile(_ context.Context, m *store.MediaFile) error {
	if f.err != nil {
		return f.err
	}
	f.files = append(f.files, m)
	return nil
}

func newTestImporter(p Prober, files *fakeFiles) *Importer {
	return NewImporter(files, p, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestImport_SequentialPlacement(t *testing.T) {
	prober := &fakeProber{durations: map[string]float64{"vid-a": 10, "vid-b": 4, "song": 30}}
	files := &fakeFiles{}
	im := newTestImporter(prober, files)
	ctx := context.Background()

	prepared, err := im.Prepare(ctx, []Payload{
		{Name: "a.mp4", MimeType: "video/mp4", Data: []byte("vid-a")},
		{Name: "still.png", MimeType: "image/png", Data: []byte("img")},
		{Name: "song.mp3", MimeType: "audio/mpeg", Data: []byte("song")},
		{Name: "b.mp4", MimeType: "video/mp4", Data: []byte("vid-b")},
	})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if prober.calls != 3 {
		t.Errorf("probe calls = %d, want 3 (images are not probed)", prober.calls)
	}

	tl := timeline.New()
	clips, err := im.Place(ctx, tl, prepared)
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	want := []struct {
		kind     timeline.Kind
		start    float64
		duration float64
	}{
		{timeline.KindVideo, 0, 10},
		{timeline.KindImage, 10, timeline.DefaultImageDur},
		{timeline.KindAudio, 0, 30},
		{timeline.KindVideo, 13, 4},
	}
	for i, w := range want {
		c := clips[i]
		if c.Kind != w.kind || c.Start != w.start || c.Duration != w.duration {
			t.Errorf("clip %d = %s start %v dur %v, want %s start %v dur %v", i, c.Kind, c.Start, c.Duration, w.kind, w.start, w.duration)
		}
		if c.FileID != files.files[i].ID {
			t.Errorf("clip %d file id = %s, want %s", i, c.FileID, files.files[i].ID)
		}
	}
	if len(tl.Clips()) != 4 {
		t.Errorf("timeline clips = %d, want 4", len(tl.Clips()))
	}
}

func TestPrepare_Validation(t *testing.T) {
	im := newTestImporter(&fakeProber{}, &fakeFiles{})
	ctx := context.Background()

	if _, err := im.Prepare(ctx, nil); !errors.Is(err, ErrNoFiles) {
		t.Errorf("Prepare(nil) error = %v, want ErrNoFiles", err)
	}
	if _, err := im.Prepare(ctx, []Payload{{Name: "a.mp4", MimeType: "video/mp4"}}); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("Prepare(empty) error = %v, want ErrEmptyPayload", err)
	}
	if _, err := im.Prepare(ctx, []Payload{{Name: "a.txt", MimeType: "text/plain", Data: []byte("x")}}); !errors.Is(err, media.ErrUnsupportedMedia) {
		t.Errorf("Prepare(text) error = %v, want ErrUnsupportedMedia", err)
	}
}

func TestPrepare_ProbeFailureRejectsBatch(t *testing.T) {
	files := &fakeFiles{}
	im := newTestImporter(&fakeProber{err: errors.New("moov atom not found")}, files)

	_, err := im.Prepare(context.Background(), []Payload{
		{Name: "ok.png", MimeType: "image/png", Data: []byte("img")},
		{Name: "bad.mp4", MimeType: "video/mp4", Data: []byte("junk")},
	})
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("Prepare() error = %v, want ErrUnreadable", err)
	}
	if len(files.files) != 0 {
		t.Fatal("nothing should be stored when preparation fails")
	}
}

func TestPlace_StoreFailure(t *testing.T) {
	im := newTestImporter(nil, &fakeFiles{err: errors.New("disk full")})
	tl := timeline.New()
	_, err := im.Place(context.Background(), tl, []Prepared{{
		Payload: Payload{Name: "a.png", MimeType: "image/png", Data: []byte("x")},
		Kind:    timeline.KindImage,
	}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !tl.Empty() {
		t.Fatal("no clip should be placed when storing fails")
	}
}

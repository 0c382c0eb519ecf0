package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/reelcut/reelcut-agent/internal/timeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseProbe(t *testing.T) {
	raw := `{
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001"},
			{"codec_type": "audio", "codec_name": "aac", "sample_rate": "48000"}
		],
		"format": {"duration": "12.480000", "bit_rate": "5000000"}
	}`
	got, err := parseProbe([]byte(raw))
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if got.Duration != 12.48 || got.Width != 1920 || got.Height != 1080 || got.Codec != "h264" {
		t.Errorf("parseProbe() = %+v", got)
	}
	if got.AudioCodec != "aac" || got.SampleRate != 48000 || got.Bitrate != 5000000 {
		t.Errorf("audio fields = %+v", got)
	}
	if got.FrameRate < 29.96 || got.FrameRate > 29.98 {
		t.Errorf("FrameRate = %v", got.FrameRate)
	}
}

func TestParseProbe_StreamDurationFallback(t *testing.T) {
	raw := `{"streams": [{"codec_type": "audio", "codec_name": "opus", "duration": "3.5"}], "format": {}}`
	got, err := parseProbe([]byte(raw))
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if got.Duration != 3.5 {
		t.Errorf("Duration = %v, want 3.5", got.Duration)
	}
}

func TestParseProbe_NoDuration(t *testing.T) {
	_, err := parseProbe([]byte(`{"streams": [], "format": {}}`))
	if !errors.Is(err, ErrNoDuration) {
		t.Fatalf("parseProbe() error = %v, want ErrNoDuration", err)
	}
	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseRate(t *testing.T) {
	tests := map[string]float64{"25/1": 25, "0/0": 0, "24": 24, "x/1": 0}
	for in, want := range tests {
		if got := parseRate(in); got != want {
			t.Errorf("parseRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.RGBA{R: 0xff, A: 0xff})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		declared string
		data     []byte
		want     timeline.Kind
		wantMIME string
	}{
		{"declared video", "a.bin", "video/mp4", nil, timeline.KindVideo, "video/mp4"},
		{"declared with params", "a", "audio/webm; codecs=opus", nil, timeline.KindAudio, "audio/webm"},
		{"extension fallback", "photo.JPG", "", nil, timeline.KindImage, "image/jpeg"},
		{"sniffed", "upload", "application/octet-stream", pngBytes(t), timeline.KindImage, "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, mt, err := Classify(tt.file, tt.declared, tt.data)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if kind != tt.want || mt != tt.wantMIME {
				t.Errorf("Classify() = %s %s, want %s %s", kind, mt, tt.want, tt.wantMIME)
			}
		})
	}

	if _, _, err := Classify("notes", "text/plain", []byte("hello")); !errors.Is(err, ErrUnsupportedMedia) {
		t.Errorf("Classify(text) error = %v, want ErrUnsupportedMedia", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := NewTailBuffer(8)
	io.WriteString(tb, "0123456789")
	io.WriteString(tb, "ab")
	if got := tb.String(); got != "456789ab" {
		t.Errorf("String() = %q, want 456789ab", got)
	}
}

func TestClockSink(t *testing.T) {
	now := time.Unix(100, 0)
	s := NewClockSink()
	s.now = func() time.Time { return now }

	s.SeekTo(2)
	s.Play()
	now = now.Add(1500 * time.Millisecond)
	if got := s.CurrentPosition(); got != 3.5 {
		t.Fatalf("CurrentPosition() = %v, want 3.5", got)
	}
	s.Pause()
	now = now.Add(time.Hour)
	s.SetVolume(0.5)
	st := s.State()
	if st.Position != 3.5 || st.Playing || st.Volume != 0.5 {
		t.Fatalf("State() = %+v", st)
	}
}

func TestBlobCache_LoadsOnce(t *testing.T) {
	calls := 0
	cache, err := NewBlobCache(t.TempDir(), func(_ context.Context, id string) ([]byte, error) {
		calls++
		return []byte("blob-" + id), nil
	})
	if err != nil {
		t.Fatalf("NewBlobCache() error = %v", err)
	}

	p1, err := cache.Path(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	p2, _ := cache.Path(context.Background(), "f1")
	if p1 != p2 || calls != 1 {
		t.Fatalf("paths %s/%s, loads = %d, want one load", p1, p2, calls)
	}
}

func TestBlobCache_LoadError(t *testing.T) {
	cache, _ := NewBlobCache(t.TempDir(), func(context.Context, string) ([]byte, error) {
		return nil, errors.New("gone")
	})
	if _, err := cache.Path(context.Background(), "missing"); err == nil {
		t.Fatal("expected error")
	}
}

func TestFrames_StillImageWithoutFFmpeg(t *testing.T) {
	data := pngBytes(t)
	cache, _ := NewBlobCache(t.TempDir(), func(context.Context, string) ([]byte, error) {
		return data, nil
	})
	f := NewFrames(context.Background(), nil, cache, 1080, 1920, 30, testLogger())

	still := timeline.NewClip("img", "a.png", timeline.KindImage, 0, 0)
	img, err := f.FrameAt(still, 0)
	if err != nil {
		t.Fatalf("FrameAt(image) error = %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
		t.Errorf("bounds = %v", img.Bounds())
	}

	video := timeline.NewClip("vid", "a.mp4", timeline.KindVideo, 0, 3)
	if _, err := f.FrameAt(video, 1); !errors.Is(err, ErrNoDecoder) {
		t.Errorf("FrameAt(video) error = %v, want ErrNoDecoder", err)
	}
	if _, ok := f.Sink(video).(*ClockSink); !ok {
		t.Error("video sink without ffmpeg should fall back to a clock sink")
	}
}

func TestDecoderArgs(t *testing.T) {
	args := strings.Join(decoderArgs("/tmp/in.mp4", 2.5, 1080, 1920, 30), " ")
	for _, want := range []string{
		"-ss 2.500 -i /tmp/in.mp4",
		"scale=1080:1920:force_original_aspect_ratio=increase,crop=1080:1920",
		"-r 30",
		"-pix_fmt rgba pipe:1",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

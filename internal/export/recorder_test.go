package export

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFFmpeg drains stdin like a real encoder and records each call.
type fakeFFmpeg struct {
	mu      sync.Mutex
	calls   [][]string
	read    int64
	readErr error

	out    []byte
	err    error
	skipIn bool
	onRun  func(args []string) error
}

func (f *fakeFFmpeg) Run(_ context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	var n int64
	var readErr error
	if stdin != nil && !f.skipIn {
		n, readErr = io.Copy(io.Discard, stdin)
	}
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.read = n
	f.readErr = readErr
	f.mu.Unlock()

	if f.onRun != nil {
		if err := f.onRun(args); err != nil {
			return nil, err
		}
	}
	if readErr != nil {
		return nil, readErr
	}
	return f.out, f.err
}

func TestRecordArgs_NoAudio(t *testing.T) {
	args := recordArgs(RecordingSpec{Width: 1080, Height: 1920, FPS: 30, Duration: 4})
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-f rawvideo -pix_fmt rgba -s 1080x1920 -r 30 -i pipe:0",
		"-map 0:v -an",
		"-c:v libvpx",
		"-t 4",
		"-f webm pipe:1",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if slices.Contains(args, "-filter_complex") {
		t.Error("no filter graph expected without audio")
	}
}

func TestRecordArgs_MixesAudio(t *testing.T) {
	args := recordArgs(RecordingSpec{
		Width: 1080, Height: 1920, FPS: 30, Duration: 10,
		Audio: []AudioInput{
			{Path: "/m/a.mp4", Offset: 1.5, Duration: 4, Start: 0, Volume: 1},
			{Path: "/m/b.mp3", Offset: 0, Duration: 3, Start: 2.25, Volume: 0.5},
		},
	})

	i := slices.Index(args, "-filter_complex")
	if i < 0 {
		t.Fatalf("missing filter graph: %v", args)
	}
	graph := args[i+1]
	want := "[1:a]atrim=start=1.5:end=5.5,asetpts=PTS-STARTPTS,volume=1,adelay=0|0[a0];" +
		"[2:a]atrim=start=0:end=3,asetpts=PTS-STARTPTS,volume=0.5,adelay=2250|2250[a1];" +
		"[a0][a1]amix=inputs=2:duration=longest:normalize=0[aout]"
	if graph != want {
		t.Errorf("filter graph =\n%s\nwant\n%s", graph, want)
	}

	joined := strings.Join(args, " ")
	for _, want := range []string{"-i /m/a.mp4 -i /m/b.mp3", "-map [aout]", "-c:a libopus"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
}

func TestFFmpegRecorder_StreamsFrames(t *testing.T) {
	ff := &fakeFFmpeg{out: []byte("webm-bytes")}
	rec, err := NewFFmpegRecorder(ff, testLogger()).Start(context.Background(), RecordingSpec{Width: 2, Height: 2, FPS: 30, Duration: 1})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < 3; i++ {
		if err := rec.WriteFrame(frame); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}
	big := image.NewRGBA(image.Rect(0, 0, 4, 2))
	sub := big.SubImage(image.Rect(0, 0, 2, 2)).(*image.RGBA)
	if err := rec.WriteFrame(sub); err != nil {
		t.Fatalf("WriteFrame(sub) error = %v", err)
	}

	out, err := rec.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if string(out) != "webm-bytes" {
		t.Errorf("Finish() = %q", out)
	}
	if ff.read != 4*2*2*4 {
		t.Errorf("encoder read %d bytes, want %d", ff.read, 4*2*2*4)
	}
}

func TestFFmpegRecorder_EncoderDies(t *testing.T) {
	ff := &fakeFFmpeg{skipIn: true, err: errors.New("exit 1: unknown encoder")}
	rec, err := NewFFmpegRecorder(ff, testLogger()).Start(context.Background(), RecordingSpec{Width: 2, Height: 2, FPS: 30})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := rec.WriteFrame(image.NewRGBA(image.Rect(0, 0, 2, 2))); err == nil {
		t.Fatal("WriteFrame() should fail once the encoder is gone")
	}
	if _, err := rec.Finish(); err == nil || !strings.Contains(err.Error(), "unknown encoder") {
		t.Errorf("Finish() error = %v", err)
	}
}

func TestFFmpegRecorder_Abort(t *testing.T) {
	ff := &fakeFFmpeg{}
	rec, err := NewFFmpegRecorder(ff, testLogger()).Start(context.Background(), RecordingSpec{Width: 2, Height: 2, FPS: 30})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec.Abort()
	if !errors.Is(ff.readErr, errRecordingAborted) {
		t.Errorf("encoder saw %v, want aborted input", ff.readErr)
	}
}

func TestFFmpegRecorder_InvalidSpec(t *testing.T) {
	if _, err := NewFFmpegRecorder(&fakeFFmpeg{}, testLogger()).Start(context.Background(), RecordingSpec{}); err == nil {
		t.Fatal("expected geometry error")
	}
}

func TestFFmpegConverter(t *testing.T) {
	dir := t.TempDir()
	ff := &fakeFFmpeg{onRun: func(args []string) error {
		in := args[slices.Index(args, "-i")+1]
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		return os.WriteFile(args[len(args)-1], append([]byte("mp4:"), data...), 0644)
	}}

	out, err := NewFFmpegConverter(ff, dir, testLogger()).Convert(context.Background(), []byte("webm"))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if string(out) != "mp4:webm" {
		t.Errorf("Convert() = %q", out)
	}

	args := strings.Join(ff.calls[0], " ")
	for _, want := range []string{"-c:v libx264", "-c:a aac", "-movflags +faststart"} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}
	left, _ := filepath.Glob(filepath.Join(dir, "convert-*"))
	if len(left) != 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

func TestFFmpegConverter_Failure(t *testing.T) {
	ff := &fakeFFmpeg{onRun: func([]string) error { return errors.New("exit 1: moov atom not found") }}
	_, err := NewFFmpegConverter(ff, t.TempDir(), testLogger()).Convert(context.Background(), []byte("webm"))

	var ce *ConvertError
	if !errors.As(err, &ce) || !strings.Contains(ce.Message, "moov atom") {
		t.Fatalf("Convert() error = %v, want ConvertError", err)
	}
}

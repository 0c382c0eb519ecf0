package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/reelcut/reelcut-agent/internal/media"
)

var errRecordingAborted = errors.New("recording aborted")

// AudioInput is one audible clip mixed into the recording.
type AudioInput struct {
	Path     string
	Offset   float64 // seconds into the source
	Duration float64
	Start    float64 // position on the project clock
	Volume   float64
}

// RecordingSpec describes the stream a Recorder produces.
type RecordingSpec struct {
	Width    int
	Height   int
	FPS      float64
	Duration float64
	Audio    []AudioInput
}

// Recorder opens a live recording that accepts raw frames.
type Recorder interface {
	Start(ctx context.Context, spec RecordingSpec) (Recording, error)
}

type Recording interface {
	WriteFrame(img *image.RGBA) error
	// Finish closes the video input and returns the encoded container.
	Finish() ([]byte, error)
	Abort()
}

// FFmpegRunner is the part of media.FFmpeg the recorder needs.
type FFmpegRunner interface {
	Run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error)
}

// FFmpegRecorder pipes RGBA frames into ffmpeg and mixes every audible clip
// into a VP8/Opus WebM.
type FFmpegRecorder struct {
	ff     FFmpegRunner
	logger *slog.Logger
}

func NewFFmpegRecorder(ff FFmpegRunner, logger *slog.Logger) *FFmpegRecorder {
	return &FFmpegRecorder{ff: ff, logger: logger}
}

type recordResult struct {
	data []byte
	err  error
}

type ffmpegRecording struct {
	pw     *io.PipeWriter
	cancel context.CancelFunc
	done   chan recordResult
	width  int
}

func (r *FFmpegRecorder) Start(ctx context.Context, spec RecordingSpec) (Recording, error) {
	if r.ff == nil {
		return nil, media.ErrNoFFmpeg
	}
	if spec.Width <= 0 || spec.Height <= 0 || spec.FPS <= 0 {
		return nil, fmt.Errorf("invalid recording geometry %dx%d@%v", spec.Width, spec.Height, spec.FPS)
	}

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	rec := &ffmpegRecording{
		pw:     pw,
		cancel: cancel,
		done:   make(chan recordResult, 1),
		width:  spec.Width,
	}

	args := recordArgs(spec)
	r.logger.Debug("starting recorder", "audio_inputs", len(spec.Audio), "duration", spec.Duration)
	go func() {
		out, err := r.ff.Run(ctx, pr, args...)
		// Unblock a writer stuck on a dead process.
		pr.CloseWithError(io.ErrClosedPipe)
		rec.done <- recordResult{data: out, err: err}
	}()
	return rec, nil
}

func (r *ffmpegRecording) WriteFrame(img *image.RGBA) error {
	rowBytes := r.width * 4
	if img.Stride == rowBytes {
		if _, err := r.pw.Write(img.Pix); err != nil {
			return fmt.Errorf("recorder stopped: %w", err)
		}
		return nil
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := r.pw.Write(img.Pix[off : off+rowBytes]); err != nil {
			return fmt.Errorf("recorder stopped: %w", err)
		}
	}
	return nil
}

func (r *ffmpegRecording) Finish() ([]byte, error) {
	r.pw.Close()
	res := <-r.done
	r.cancel()
	if res.err != nil {
		return nil, fmt.Errorf("recorder failed: %w", res.err)
	}
	return res.data, nil
}

func (r *ffmpegRecording) Abort() {
	r.cancel()
	r.pw.CloseWithError(errRecordingAborted)
	<-r.done
}

// recordArgs builds the ffmpeg command line. Input 0 is the raw frame
// stream; inputs 1..n are the audio sources, each trimmed to its clip
// window, gain-adjusted and delayed to its start before the mix.
func recordArgs(spec RecordingSpec) []string {
	args := []string{
		"-v", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"-r", formatFloat(spec.FPS),
		"-i", "pipe:0",
	}
	for _, a := range spec.Audio {
		args = append(args, "-i", a.Path)
	}

	if len(spec.Audio) > 0 {
		var graph strings.Builder
		for i, a := range spec.Audio {
			delayMs := int64(a.Start * 1000)
			fmt.Fprintf(&graph, "[%d:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS,volume=%s,adelay=%d|%d[a%d];",
				i+1,
				formatFloat(a.Offset),
				formatFloat(a.Offset+a.Duration),
				formatFloat(a.Volume),
				delayMs, delayMs, i)
		}
		for i := range spec.Audio {
			fmt.Fprintf(&graph, "[a%d]", i)
		}
		fmt.Fprintf(&graph, "amix=inputs=%d:duration=longest:normalize=0[aout]", len(spec.Audio))

		args = append(args,
			"-filter_complex", graph.String(),
			"-map", "0:v",
			"-map", "[aout]",
			"-c:a", "libopus",
			"-b:a", "128k",
		)
	} else {
		args = append(args, "-map", "0:v", "-an")
	}

	args = append(args,
		"-c:v", "libvpx",
		"-b:v", "6M",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-pix_fmt", "yuv420p",
	)
	if spec.Duration > 0 {
		args = append(args, "-t", formatFloat(spec.Duration))
	}
	return append(args, "-f", "webm", "pipe:1")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

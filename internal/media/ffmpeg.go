// Package media wraps the ffmpeg toolchain: probing imported files, pulling
// decoded frames, and extracting audio for speech recognition.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const maxStderrBytes = 8 * 1024

// ErrNoDuration is returned when ffprobe reports no usable duration.
var ErrNoDuration = errors.New("media has no duration")

type ProbeResult struct {
	Duration   float64
	Width      int
	Height     int
	Codec      string
	FrameRate  float64
	AudioCodec string
	SampleRate int
	Bitrate    int64
}

type Config struct {
	FFmpegPath   string // empty = look up on PATH
	FFprobePath  string
	ProbeTimeout time.Duration
	AudioTimeout time.Duration
	Logger       *slog.Logger
}

func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		ProbeTimeout: 30 * time.Second,
		AudioTimeout: 5 * time.Minute,
		Logger:       logger,
	}
}

// FFmpeg runs ffmpeg and ffprobe as subprocesses.
type FFmpeg struct {
	cfg     Config
	ffmpeg  string
	ffprobe string
}

func NewFFmpeg(cfg Config) (*FFmpeg, error) {
	ff, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	fp, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}
	cfg.Logger.Info("ffmpeg toolchain located", "ffmpeg", ff, "ffprobe", fp)
	return &FFmpeg{cfg: cfg, ffmpeg: ff, ffprobe: fp}, nil
}

func (f *FFmpeg) Binary() string {
	return f.ffmpeg
}

// Probe reads container and stream metadata of the file at path.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	out, err := f.run(ctx, f.ffprobe, nil,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(out)
}

// ExtractAudio decodes [offset, offset+duration) of the file at path into a
// 16 kHz mono WAV, the input format speech recognizers expect.
func (f *FFmpeg) ExtractAudio(ctx context.Context, path string, offset, duration float64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.AudioTimeout)
	defer cancel()

	args := []string{"-v", "error", "-ss", formatSeconds(offset), "-i", path}
	if duration > 0 {
		args = append(args, "-t", formatSeconds(duration))
	}
	args = append(args, "-vn", "-ac", "1", "-ar", "16000", "-f", "wav", "pipe:1")

	out, err := f.run(ctx, f.ffmpeg, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("audio extraction failed: %w", err)
	}
	return out, nil
}

// Run executes ffmpeg with args and returns its stdout.
func (f *FFmpeg) Run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	return f.run(ctx, f.ffmpeg, stdin, args...)
}

// run executes bin and returns stdout. Failures carry the stderr tail.
func (f *FFmpeg) run(ctx context.Context, bin string, stdin io.Reader, args ...string) ([]byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout bytes.Buffer
	stderr := NewTailBuffer(maxStderrBytes)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	elapsed := time.Since(start)
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		f.cfg.Logger.Warn("media command failed",
			"bin", bin,
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderr.String(), 512),
		)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w (%s)", ctx.Err(), truncate(stderr.String(), 512))
		}
		return nil, fmt.Errorf("exit %d: %s", exitCode, truncate(stderr.String(), 512))
	}

	f.cfg.Logger.Debug("media command succeeded", "bin", bin, "duration_ms", elapsed.Milliseconds())
	return stdout.Bytes(), nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		SampleRate   string `json:"sample_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe output: %w", err)
	}

	res := &ProbeResult{}
	res.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	res.Bitrate, _ = strconv.ParseInt(out.Format.BitRate, 10, 64)

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if res.Codec != "" {
				continue
			}
			res.Codec = s.CodecName
			res.Width = s.Width
			res.Height = s.Height
			res.FrameRate = parseRate(s.AvgFrameRate)
		case "audio":
			if res.AudioCodec != "" {
				continue
			}
			res.AudioCodec = s.CodecName
			res.SampleRate, _ = strconv.Atoi(s.SampleRate)
		}
		if res.Duration <= 0 {
			d, _ := strconv.ParseFloat(s.Duration, 64)
			res.Duration = d
		}
	}

	if res.Duration <= 0 {
		return res, ErrNoDuration
	}
	return res, nil
}

// parseRate reads ffprobe's "num/den" frame rates.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func formatSeconds(v float64) string {
	if v < 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("no %s binary found on PATH: %w", name, err)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// TailBuffer is an io.Writer that keeps only the last limit bytes, used to
// capture stderr of long-running tools.
type TailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func NewTailBuffer(limit int) *TailBuffer {
	if limit <= 0 {
		limit = maxStderrBytes
	}
	return &TailBuffer{limit: limit}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if t.buf.Len() > t.limit {
		b := t.buf.Bytes()
		tail := make([]byte, t.limit)
		copy(tail, b[len(b)-t.limit:])
		t.buf.Reset()
		t.buf.Write(tail)
	}
	return n, nil
}

func (t *TailBuffer) String() string {
	return t.buf.String()
}

package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
)

// restartGap is how far ahead of the decoded position a request may land
// before the stream is restarted instead of read through.
const restartGap = 1.0

// Decoder streams raw RGBA frames of one video clip from ffmpeg, already
// scaled and cropped to the output frame. It also acts as the clip's playback
// sink: seeking restarts the stream at the new position.
type Decoder struct {
	bin    string
	path   string
	width  int
	height int
	fps    float64
	logger *slog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	stdout   io.ReadCloser
	stderr   *TailBuffer
	startPos float64
	frames   int
	eof      bool
	cur      *image.RGBA
	next     *image.RGBA
	volume   float64
	playing  bool
}

func NewDecoder(bin, path string, width, height int, fps float64, logger *slog.Logger) *Decoder {
	return &Decoder{
		bin:    bin,
		path:   path,
		width:  width,
		height: height,
		fps:    fps,
		logger: logger,
		volume: 1,
	}
}

// FrameAt returns the latest frame whose timestamp is at or before local.
// The returned image is reused by the next call.
func (d *Decoder) FrameAt(local float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil || local < d.startPos || local-d.positionLocked() > restartGap {
		if err := d.startLocked(local); err != nil {
			return nil, err
		}
	}

	for !d.eof && (d.frames == 0 || d.frameTime(d.frames) <= local) {
		if _, err := io.ReadFull(d.stdout, d.next.Pix); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof = true
				break
			}
			return nil, fmt.Errorf("read frame: %w (%s)", err, truncate(d.stderr.String(), 256))
		}
		d.cur, d.next = d.next, d.cur
		d.frames++
	}

	if d.frames == 0 {
		return nil, nil
	}
	return d.cur, nil
}

func (d *Decoder) SetVolume(v float64) {
	d.mu.Lock()
	d.volume = v
	d.mu.Unlock()
}

func (d *Decoder) SeekTo(pos float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.startPos = pos
	d.frames = 0
}

func (d *Decoder) Play() {
	d.mu.Lock()
	d.playing = true
	d.mu.Unlock()
}

func (d *Decoder) Pause() {
	d.mu.Lock()
	d.playing = false
	d.mu.Unlock()
}

func (d *Decoder) CurrentPosition() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positionLocked()
}

func (d *Decoder) State() SinkState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return SinkState{Position: d.positionLocked(), Volume: d.volume, Playing: d.playing}
}

func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	return nil
}

func (d *Decoder) positionLocked() float64 {
	if d.frames == 0 {
		return d.startPos
	}
	return d.frameTime(d.frames - 1)
}

func (d *Decoder) frameTime(i int) float64 {
	return d.startPos + float64(i)/d.fps
}

func (d *Decoder) startLocked(at float64) error {
	d.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, d.bin, decoderArgs(d.path, at, d.width, d.height, d.fps)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("decoder stdout: %w", err)
	}
	d.stderr = NewTailBuffer(4 * 1024)
	cmd.Stderr = d.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start decoder: %w", err)
	}

	d.cmd, d.cancel, d.stdout = cmd, cancel, stdout
	d.startPos = at
	d.frames = 0
	d.eof = false
	if d.cur == nil {
		d.cur = image.NewRGBA(image.Rect(0, 0, d.width, d.height))
		d.next = image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	}
	d.logger.Debug("decoder started", "at", at)
	return nil
}

func (d *Decoder) stopLocked() {
	if d.cmd == nil {
		return
	}
	d.cancel()
	_ = d.cmd.Wait()
	d.cmd, d.cancel, d.stdout = nil, nil, nil
}

func decoderArgs(path string, at float64, width, height int, fps float64) []string {
	w, h := strconv.Itoa(width), strconv.Itoa(height)
	return []string{
		"-v", "error",
		"-ss", formatSeconds(at),
		"-i", path,
		"-an",
		"-vf", "scale=" + w + ":" + h + ":force_original_aspect_ratio=increase,crop=" + w + ":" + h,
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
}

package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"sync"

	_ "golang.org/x/image/webp"

	"github.com/reelcut/reelcut-agent/internal/logging"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

var ErrNoDecoder = errors.New("video decoding unavailable: ffmpeg not found")

// Frames supplies decoded pictures for visual clips and owns the per-clip
// sinks. Video clips get a Decoder; everything else gets a ClockSink.
type Frames struct {
	ff     *FFmpeg
	cache  *BlobCache
	width  int
	height int
	fps    float64
	logger *slog.Logger
	ctx    context.Context

	mu       sync.Mutex
	stills   map[string]image.Image
	decoders map[string]*Decoder
}

// NewFrames builds a frame source. ff may be nil when ffmpeg is missing; still
// images keep working.
func NewFrames(ctx context.Context, ff *FFmpeg, cache *BlobCache, width, height int, fps float64, logger *slog.Logger) *Frames {
	return &Frames{
		ff:       ff,
		cache:    cache,
		width:    width,
		height:   height,
		fps:      fps,
		logger:   logger,
		ctx:      ctx,
		stills:   make(map[string]image.Image),
		decoders: make(map[string]*Decoder),
	}
}

func (f *Frames) FrameAt(clip timeline.Clip, local float64) (image.Image, error) {
	switch clip.Kind {
	case timeline.KindImage:
		return f.still(clip.FileID)
	case timeline.KindVideo:
		d, err := f.decoder(clip)
		if err != nil {
			return nil, err
		}
		return d.FrameAt(local)
	}
	return nil, nil
}

// Sink returns the playback sink for clip, creating it on first use.
func (f *Frames) Sink(clip timeline.Clip) Sink {
	if clip.Kind == timeline.KindVideo && f.ff != nil {
		d, err := f.decoder(clip)
		if err == nil {
			return d
		}
		f.logger.Warn("falling back to clock sink", "clip_id", clip.ID, "error", err)
	}
	return NewClockSink()
}

// Release closes the decoder bound to clipID.
func (f *Frames) Release(clipID string) {
	f.mu.Lock()
	d, ok := f.decoders[clipID]
	delete(f.decoders, clipID)
	f.mu.Unlock()
	if ok {
		d.Close()
	}
}

func (f *Frames) Close() error {
	f.mu.Lock()
	decoders := f.decoders
	f.decoders = make(map[string]*Decoder)
	f.mu.Unlock()
	for _, d := range decoders {
		d.Close()
	}
	return nil
}

func (f *Frames) decoder(clip timeline.Clip) (*Decoder, error) {
	if f.ff == nil {
		return nil, ErrNoDecoder
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if d, ok := f.decoders[clip.ID]; ok {
		return d, nil
	}
	path, err := f.cache.Path(f.ctx, clip.FileID)
	if err != nil {
		return nil, err
	}
	d := NewDecoder(f.ff.Binary(), path, f.width, f.height, f.fps, logging.WithClipID(f.logger, clip.ID))
	f.decoders[clip.ID] = d
	return d, nil
}

func (f *Frames) still(fileID string) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if img, ok := f.stills[fileID]; ok {
		return img, nil
	}
	path, err := f.cache.Path(f.ctx, fileID)
	if err != nil {
		return nil, err
	}
	img, err := DecodeImageFile(path)
	if err != nil {
		return nil, err
	}
	f.stills[fileID] = img
	return img, nil
}

// DecodeImage decodes PNG, JPEG, GIF and WebP stills.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

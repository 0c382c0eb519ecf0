package media

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/reelcut/reelcut-agent/internal/timeline"
)

var ErrNoFFmpeg = errors.New("ffmpeg not available")

// BytesProber probes uploads that only exist in memory.
type BytesProber struct {
	ff    *FFmpeg
	cache *BlobCache
}

func NewBytesProber(ff *FFmpeg, cache *BlobCache) *BytesProber {
	return &BytesProber{ff: ff, cache: cache}
}

func (p *BytesProber) ProbeBytes(ctx context.Context, data []byte) (*ProbeResult, error) {
	if p.ff == nil {
		return nil, ErrNoFFmpeg
	}
	path, err := p.cache.WriteTemp(".probe-*", data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)
	return p.ff.Probe(ctx, path)
}

// ClipAudio extracts the audible window of a clip for speech recognition.
type ClipAudio struct {
	ff    *FFmpeg
	cache *BlobCache
}

func NewClipAudio(ff *FFmpeg, cache *BlobCache) *ClipAudio {
	return &ClipAudio{ff: ff, cache: cache}
}

// Extract returns 16 kHz mono WAV covering [SourceOffset, SourceOffset+Duration)
// of the clip's source, so recognizer timestamps are relative to clip start.
func (a *ClipAudio) Extract(ctx context.Context, clip timeline.Clip) ([]byte, error) {
	if a.ff == nil {
		return nil, ErrNoFFmpeg
	}
	path, err := a.cache.Path(ctx, clip.FileID)
	if err != nil {
		return nil, err
	}
	return a.ff.ExtractAudio(ctx, path, clip.SourceOffset, clip.Duration)
}

// Resolver exposes stored files to ffmpeg-based consumers such as the export
// mixer. Audio-stream presence is probed once per file.
type Resolver struct {
	ff    *FFmpeg
	cache *BlobCache

	mu    sync.Mutex
	audio map[string]bool
}

func NewResolver(ff *FFmpeg, cache *BlobCache) *Resolver {
	return &Resolver{ff: ff, cache: cache, audio: make(map[string]bool)}
}

func (r *Resolver) Path(ctx context.Context, fileID string) (string, error) {
	return r.cache.Path(ctx, fileID)
}

// HasAudio reports whether fileID carries an audio stream.
func (r *Resolver) HasAudio(ctx context.Context, fileID string) (bool, error) {
	r.mu.Lock()
	has, ok := r.audio[fileID]
	r.mu.Unlock()
	if ok {
		return has, nil
	}
	if r.ff == nil {
		return false, ErrNoFFmpeg
	}

	path, err := r.cache.Path(ctx, fileID)
	if err != nil {
		return false, err
	}
	res, err := r.ff.Probe(ctx, path)
	if err != nil && !errors.Is(err, ErrNoDuration) {
		return false, err
	}
	has = res != nil && res.AudioCodec != ""

	r.mu.Lock()
	r.audio[fileID] = has
	r.mu.Unlock()
	return has, nil
}

// Package speech runs speech recognition over extracted clip audio and
// returns timed text chunks for caption generation.
package speech

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/reelcut/reelcut-agent/internal/captions"
)

var ErrUnavailable = errors.New("speech recognition unavailable")

// Options tunes how the recognizer windows long audio.
type Options struct {
	ChunkLength float64 `json:"chunk_length"`
	Stride      float64 `json:"stride"`
	Language    string  `json:"language,omitempty"`
}

func DefaultOptions() Options {
	return Options{ChunkLength: 30, Stride: 5}
}

// Progress reports model download state on first use.
type Progress struct {
	File   string `json:"file"`
	Loaded int64  `json:"loaded"`
	Total  int64  `json:"total"`
}

// Percent is Loaded/Total in [0, 100], or 0 when the total is unknown.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := int(p.Loaded * 100 / p.Total)
	return max(0, min(100, pct))
}

type ProgressFunc func(Progress)

// Result is a transcript, optionally split into timed chunks.
type Result struct {
	Text   string           `json:"text"`
	Chunks []captions.Chunk `json:"chunks,omitempty"`
}

// CaptionChunks returns the timed chunks, or the flat transcript as a single
// untimed chunk when the recognizer produced no timestamps.
func (r Result) CaptionChunks() []captions.Chunk {
	if len(r.Chunks) > 0 {
		return r.Chunks
	}
	if text := strings.TrimSpace(r.Text); text != "" {
		return []captions.Chunk{{Text: text}}
	}
	return nil
}

// Recognizer transcribes 16 kHz mono WAV audio.
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte, opts Options, progress ProgressFunc) (*Result, error)
}

// Capabilities is what the installed recognizer environment reports.
type Capabilities struct {
	PackageVersion string             `json:"package_version"`
	Python         PythonInfo         `json:"python"`
	Dependencies   map[string]DepInfo `json:"dependencies"`
	Executables    map[string]DepInfo `json:"executables"`
	Models         []string           `json:"models,omitempty"`

	HasSpeech bool      `json:"has_speech"`
	ProbedAt  time.Time `json:"probed_at"`
}

type PythonInfo struct {
	Version    string `json:"version"`
	Executable string `json:"executable"`
}

type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

func isAvailable(deps map[string]DepInfo, name string) bool {
	d, ok := deps[name]
	return ok && d.Available
}

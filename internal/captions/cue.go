// Package captions turns coarse speech-recognition chunks into one-word timed
// cues and exposes the sliding word window rendered over the video.
package captions

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

const (
	// MinCueLength is the shortest interval a cue may cover.
	MinCueLength = 0.05

	// DefaultWordDuration estimates a word's length when a chunk has no end.
	DefaultWordDuration = 0.35

	PlaceholderText = "(no speech detected)"
	placeholderMin  = 2.0
)

// Cue is one word shown during [Start, End).
type Cue struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (c Cue) Contains(t float64) bool {
	return t >= c.Start && t < c.End
}

// Progress is how far t is through the cue, clamped to [0, 1].
func (c Cue) Progress(t float64) float64 {
	span := c.End - c.Start
	if span <= 0 {
		return 1
	}
	return math.Max(0, math.Min(1, (t-c.Start)/span))
}

// Chunk is a recognizer segment. Start and End are optional; the recognizer
// may return a flat transcript without timestamps.
type Chunk struct {
	Text  string   `json:"text"`
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

func Float(v float64) *float64 {
	return &v
}

// BuildCues splits every chunk into words and divides the chunk's span evenly
// between them. When nothing survives parsing a single placeholder cue is
// returned so the renderer always has a sequence to work with.
func BuildCues(chunks []Chunk, fallbackDuration float64) []Cue {
	var cues []Cue
	cursor := 0.0

	for i, ch := range chunks {
		words := splitWords(ch.Text)

		start := cursor
		if ch.Start != nil {
			start = math.Max(0, *ch.Start)
		}
		end := chunkEnd(chunks, i, start, len(words), fallbackDuration)

		cues = append(cues, subdivide(words, start, end)...)
		cursor = math.Max(cursor, end)
	}

	if len(cues) == 0 {
		return []Cue{placeholder(fallbackDuration)}
	}
	return cues
}

// Resubdivide re-splits persisted cues that may hold several words so render
// code can rely on one word per cue. Already single-word cues keep their text
// and bounds.
func Resubdivide(cues []Cue) []Cue {
	out := make([]Cue, 0, len(cues))
	for _, c := range cues {
		words := splitWords(c.Text)
		if len(words) == 0 {
			continue
		}
		end := c.End
		if end < c.Start {
			end = c.Start
		}
		if len(words) == 1 {
			c.Text = words[0]
			c.End = math.Max(end, c.Start+MinCueLength)
			if c.ID == "" {
				c.ID = uuid.NewString()
			}
			out = append(out, c)
			continue
		}
		out = append(out, subdivide(words, c.Start, end)...)
	}
	return out
}

func chunkEnd(chunks []Chunk, i int, start float64, words int, fallback float64) float64 {
	if e := chunks[i].End; e != nil {
		return math.Max(start, *e)
	}
	for _, next := range chunks[i+1:] {
		if next.Start != nil {
			return math.Max(start, *next.Start)
		}
	}
	if i == len(chunks)-1 {
		return math.Max(fallback, start+MinCueLength)
	}
	return start + float64(words)*DefaultWordDuration
}

func subdivide(words []string, start, end float64) []Cue {
	if len(words) == 0 {
		return nil
	}
	step := (end - start) / float64(len(words))
	cues := make([]Cue, len(words))
	for i, w := range words {
		s := start + float64(i)*step
		e := start + float64(i+1)*step
		if i == len(words)-1 {
			e = end
		}
		if e-s < MinCueLength {
			e = s + MinCueLength
		}
		cues[i] = Cue{ID: uuid.NewString(), Text: w, Start: s, End: e}
	}
	return cues
}

func splitWords(text string) []string {
	return strings.Fields(text)
}

func placeholder(fallback float64) Cue {
	return Cue{
		ID:    uuid.NewString(),
		Text:  PlaceholderText,
		Start: 0,
		End:   math.Max(placeholderMin, fallback),
	}
}

package captions

// GroupSize is how many consecutive words are on screen at once.
const GroupSize = 3

// WindowWord is one cue in the visible caption group.
type WindowWord struct {
	Cue
	Active   bool    `json:"active"`
	Progress float64 `json:"progress"`
}

// ActiveIndex returns the index of the first cue containing t, or -1.
func ActiveIndex(cues []Cue, t float64) int {
	for i, c := range cues {
		if c.Contains(t) {
			return i
		}
	}
	return -1
}

// WindowAt returns the fixed, non-overlapping group of GroupSize cues the
// active cue belongs to. Only the active cue is flagged and carries progress.
// No active cue means an empty window.
func WindowAt(cues []Cue, t float64) []WindowWord {
	idx := ActiveIndex(cues, t)
	if idx < 0 {
		return nil
	}
	first := (idx / GroupSize) * GroupSize
	last := first + GroupSize
	if last > len(cues) {
		last = len(cues)
	}

	out := make([]WindowWord, 0, last-first)
	for i := first; i < last; i++ {
		w := WindowWord{Cue: cues[i]}
		if i == idx {
			w.Active = true
			w.Progress = cues[i].Progress(t)
		}
		out = append(out, w)
	}
	return out
}

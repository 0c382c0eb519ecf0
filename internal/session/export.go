package session

import (
	"github.com/reelcut/reelcut-agent/internal/captions"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

// ExportSnapshot is a frozen copy of everything an export renders.
type ExportSnapshot struct {
	ProjectID string
	Name      string
	Timeline  *timeline.Timeline
	Cues      []captions.Cue
	Captions  captions.Settings
}

// BeginExport stops playback, pauses every sink and hands back a frozen copy
// of the project. Edits are refused until EndExport.
func (s *Session) BeginExport() (ExportSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return ExportSnapshot{}, ErrExporting
	}
	s.exporting = true
	s.clock.Pause(s.now())
	s.driver.Stop()
	s.pauseAllLocked()
	s.status = "Exporting..."

	return ExportSnapshot{
		ProjectID: s.project.ID,
		Name:      s.project.Name,
		Timeline:  timeline.FromDocument(s.tl.Clips(), s.tl.Overlays()),
		Cues:      append([]captions.Cue(nil), s.cues...),
		Captions:  s.settings,
	}, nil
}

// EndExport releases the export slot and records the outcome.
func (s *Session) EndExport(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exporting = false
	s.status = status
}

func (s *Session) Exporting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exporting
}

// Package store persists media blobs, project documents, the saved-audio
// library and export jobs in sqlite.
package store

import (
	"time"

	"github.com/reelcut/reelcut-agent/internal/captions"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

// MediaFile is an imported blob. Files are shared by id across clips,
// projects and the audio library and are never garbage collected.
type MediaFile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is the flattened editor state saved with a project.
type Document struct {
	Clips    []timeline.Clip    `json:"clips"`
	Overlays []timeline.Overlay `json:"overlays"`
	Cues     []captions.Cue     `json:"cues"`
	Captions captions.Settings  `json:"captions"`
}

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Document  Document  `json:"document"`
}

// ProjectSummary is a project row without its document.
type ProjectSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SavedAudio is a synthesized voice clip kept for reuse across projects.
type SavedAudio struct {
	ID            string    `json:"id"`
	FileID        string    `json:"file_id"`
	Name          string    `json:"name"`
	Text          string    `json:"text"`
	VoiceID       string    `json:"voice_id,omitempty"`
	HistoryItemID string    `json:"history_item_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	JobStatusPending    = "pending"
	JobStatusRendering  = "rendering"
	JobStatusConverting = "converting"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is one export of a project.
type Job struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	Error        string    `json:"error,omitempty"`
	OutputFileID string    `json:"output_file_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Active reports whether the job still holds the export slot.
func (j *Job) Active() bool {
	switch j.Status {
	case JobStatusPending, JobStatusRendering, JobStatusConverting:
		return true
	}
	return false
}

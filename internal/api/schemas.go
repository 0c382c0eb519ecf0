package api

import (
	"time"

	"github.com/reelcut/reelcut-agent/internal/captions"
	"github.com/reelcut/reelcut-agent/internal/store"
	"github.com/reelcut/reelcut-agent/internal/timeline"
	"github.com/reelcut/reelcut-agent/internal/voice"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State         string                `json:"state"`
	LastError     string                `json:"last_error,omitempty"`
	ProjectsCount int                   `json:"projects_count"`
	Export        ExportStatusResponse  `json:"export"`
	ActiveJob     *JobResponse          `json:"active_job,omitempty"`
	Speech        *SpeechStatusResponse `json:"speech,omitempty"`
	TTSConfigured bool                  `json:"tts_configured"`
}

type ExportStatusResponse struct {
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
}

type SpeechStatusResponse struct {
	Backend     string   `json:"backend"`
	Available   bool     `json:"available"`
	Version     string   `json:"version,omitempty"`
	Models      []string `json:"models,omitempty"`
	LastProbeAt string   `json:"last_probe_at,omitempty"`
}

type CreateProjectRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type RenameProjectRequest struct {
	Name string `json:"name"`
}

type ProjectsResponse struct {
	Projects []*store.ProjectSummary `json:"projects"`
}

type ClipsResponse struct {
	Clips []timeline.Clip `json:"clips"`
}

// UpdateClipRequest sets the volume and/or flips the mute flag.
type UpdateClipRequest struct {
	Volume     *float64 `json:"volume,omitempty"`
	ToggleMute bool     `json:"toggle_mute,omitempty"`
}

// DragRequest carries one pointer update. Updates sharing a gesture_id are
// measured from where that gesture started.
type DragRequest struct {
	Mode      timeline.DragMode `json:"mode"`
	Delta     float64           `json:"delta"`
	GestureID string            `json:"gesture_id,omitempty"`
	Done      bool              `json:"done"`
}

type AddOverlayRequest struct {
	Kind timeline.OverlayKind `json:"kind"`
	Text string               `json:"text"`
}

type PlaybackRequest struct {
	Action   string  `json:"action"`
	Position float64 `json:"position,omitempty"`
}

type GenerateCaptionsRequest struct {
	ClipID string `json:"clip_id,omitempty"`
}

type CuesRequest struct {
	Cues []captions.Cue `json:"cues"`
}

type CuesResponse struct {
	Cues []captions.Cue `json:"cues"`
}

type ExportEDLRequest struct {
	OutputDir string  `json:"output_dir"`
	FrameRate float64 `json:"frame_rate,omitempty"`
}

type ExportEDLResponse struct {
	Status     string `json:"status"`
	Format     string `json:"format"`
	OutputPath string `json:"output_path"`
	EventCount int    `json:"event_count"`
}

type TTSRequest struct {
	Text     string          `json:"text"`
	VoiceID  string          `json:"voice_id,omitempty"`
	ModelID  string          `json:"model_id,omitempty"`
	Settings *voice.Settings `json:"settings,omitempty"`
	Name     string          `json:"name,omitempty"`
}

type VoicesResponse struct {
	Voices []voice.Voice `json:"voices"`
}

type HistoryResponse struct {
	History []voice.HistoryItem `json:"history"`
}

type SavedAudioResponse struct {
	Audio []*store.SavedAudio `json:"audio"`
}

type JobResponse struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	Error        string `json:"error,omitempty"`
	OutputFileID string `json:"output_file_id,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *store.Job) JobResponse {
	return JobResponse{
		ID:           j.ID,
		ProjectID:    j.ProjectID,
		Status:       j.Status,
		Progress:     j.Progress,
		Error:        j.Error,
		OutputFileID: j.OutputFileID,
		CreatedAt:    j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    j.UpdatedAt.Format(time.RFC3339),
	}
}

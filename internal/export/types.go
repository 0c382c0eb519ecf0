// Package export renders a project into a recorded WebM at real-time pace,
// converts it to a streaming-friendly MP4 and runs queued export jobs.
package export

import (
	"errors"
	"fmt"
	"time"

	"github.com/reelcut/reelcut-agent/internal/compositor"
)

var (
	ErrNothingToExport = errors.New("project is empty, nothing to export")
	ErrEmptyRecording  = errors.New("recording is empty")
	ErrEmptyResult     = errors.New("converter returned an empty result")
	ErrBusy            = errors.New("an export is already running")
)

// Stage is the pipeline state: idle -> rendering -> converting -> idle.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageRendering  Stage = "rendering"
	StageConverting Stage = "converting"
)

const (
	DefaultFPS            = 30.0
	DefaultConvertTimeout = 15 * time.Minute

	// maxRenderProgress holds progress below 100 until the output exists.
	maxRenderProgress = 99
)

// Status is a point-in-time view of the pipeline.
type Status struct {
	Stage    Stage `json:"stage"`
	Progress int   `json:"progress"`
}

// ProgressFunc observes stage and percentage changes.
type ProgressFunc func(stage Stage, progress int)

type Config struct {
	Width          int
	Height         int
	FPS            float64
	ConvertTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Width:          compositor.FrameWidth,
		Height:         compositor.FrameHeight,
		FPS:            DefaultFPS,
		ConvertTimeout: DefaultConvertTimeout,
	}
}

// ConvertError is a non-success answer from the transcoding collaborator.
// Message carries the collaborator's own text when it sent one.
type ConvertError struct {
	StatusCode int
	Message    string
}

func (e *ConvertError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("conversion failed: %s", e.Message)
	}
	return fmt.Sprintf("conversion failed (%d): %s", e.StatusCode, e.Message)
}

package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/reelcut/reelcut-agent/internal/logging"
	"github.com/reelcut/reelcut-agent/internal/session"
	"github.com/reelcut/reelcut-agent/internal/store"
)

const (
	defaultPollInterval = 2 * time.Second
	maxJobError         = 512
)

// JobStore is the persistence the runner needs.
type JobStore interface {
	CreateJob(ctx context.Context, j *store.Job) error
	GetJob(ctx context.Context, id string) (*store.Job, error)
	ListPendingJobs(ctx context.Context) ([]*store.Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	CompleteJob(ctx context.Context, id, outputFileID string) error
	PutFile(ctx context.Context, f *store.MediaFile) error
}

// Sessions resolves a project id to its live editor session.
type Sessions interface {
	Open(ctx context.Context, id string) (*session.Session, error)
}

// Exporter is the render-and-convert step a job runs.
type Exporter interface {
	Run(ctx context.Context, snap session.ExportSnapshot, report ProgressFunc) ([]byte, error)
}

// Runner executes queued export jobs one at a time.
type Runner struct {
	exporter     Exporter
	jobs         JobStore
	sessions     Sessions
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
	wake         chan struct{}
}

func NewRunner(exporter Exporter, jobs JobStore, sessions Sessions, logger *slog.Logger) *Runner {
	return &Runner{
		exporter:     exporter,
		jobs:         jobs,
		sessions:     sessions,
		logger:       logging.WithComponent(logger, "export-runner"),
		pollInterval: defaultPollInterval,
		wake:         make(chan struct{}, 1),
	}
}

// Submit queues an export of projectID. An empty project is refused up
// front; a project that already has a queued job gets that job back.
func (r *Runner) Submit(ctx context.Context, projectID string) (*store.Job, error) {
	s, err := r.sessions.Open(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if s.Info().Duration <= 0 {
		return nil, ErrNothingToExport
	}
	if s.Exporting() {
		return nil, session.ErrExporting
	}

	pending, err := r.jobs.ListPendingJobs(ctx)
	if err != nil {
		return nil, err
	}
	for _, j := range pending {
		if j.ProjectID == projectID {
			return j, nil
		}
	}

	job := &store.Job{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Status:    store.JobStatusPending,
	}
	if err := r.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to queue export: %w", err)
	}
	r.logger.Info("export queued", "job_id", job.ID, "project_id", projectID)

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return job, nil
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("export runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("export runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
		case <-r.wake:
		}
		if !r.paused.Load() {
			r.processNextJob(ctx)
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("export runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("export runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) processNextJob(ctx context.Context) {
	jobs, err := r.jobs.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}
	r.process(ctx, jobs[0])
}

// process runs one job to completion. Any failure marks the job failed and
// hands the session back in an editable state.
func (r *Runner) process(ctx context.Context, job *store.Job) {
	logger := logging.WithJobID(r.logger, job.ID)
	logger.Info("processing export", "project_id", job.ProjectID)

	s, err := r.sessions.Open(ctx, job.ProjectID)
	if err != nil {
		r.fail(ctx, logger, job.ID, fmt.Errorf("project unavailable: %w", err))
		return
	}
	snap, err := s.BeginExport()
	if err != nil {
		r.fail(ctx, logger, job.ID, err)
		return
	}

	// The job stays pending and is picked up again on the next poll.
	if err := r.jobs.UpdateJobStatus(ctx, job.ID, store.JobStatusRendering, ""); err != nil {
		logger.Error("failed to mark job rendering", "error", err)
		s.EndExport("Export failed: could not update the job")
		return
	}
	lastStage := StageRendering
	report := func(stage Stage, progress int) {
		if stage == StageConverting && lastStage != StageConverting {
			if err := r.jobs.UpdateJobStatus(ctx, job.ID, store.JobStatusConverting, ""); err != nil {
				logger.Warn("failed to mark job converting", "error", err)
			}
		}
		if stage != StageIdle {
			lastStage = stage
			if err := r.jobs.UpdateJobProgress(ctx, job.ID, progress); err != nil {
				logger.Warn("failed to update job progress", "progress", progress, "error", err)
			}
		}
	}

	out, err := r.exporter.Run(ctx, snap, report)
	if err != nil {
		s.EndExport("Export failed: " + err.Error())
		r.fail(ctx, logger, job.ID, err)
		return
	}

	f := &store.MediaFile{
		ID:        uuid.NewString(),
		Name:      OutputName(snap.Name, ".mp4"),
		MimeType:  "video/mp4",
		Data:      out,
		CreatedAt: time.Now(),
	}
	if err := r.jobs.PutFile(ctx, f); err != nil {
		s.EndExport("Export failed: could not store the video")
		r.fail(ctx, logger, job.ID, fmt.Errorf("failed to store export: %w", err))
		return
	}
	if err := r.jobs.CompleteJob(ctx, job.ID, f.ID); err != nil {
		logger.Error("failed to complete job", "error", err)
	}
	s.EndExport("Export complete")
	logger.Info("export completed", "file_id", f.ID, "bytes", len(out))
}

func (r *Runner) fail(ctx context.Context, logger *slog.Logger, jobID string, err error) {
	logger.Error("export failed", "error", err)
	msg := truncateStr(err.Error(), maxJobError)
	var ce *ConvertError
	if errors.As(err, &ce) {
		msg = truncateStr(ce.Message, maxJobError)
	}
	if err := r.jobs.UpdateJobStatus(ctx, jobID, store.JobStatusFailed, msg); err != nil {
		logger.Error("failed to mark job failed", "error", err)
	}
}

// truncateStr keeps the tail of s, where tool errors put the useful part.
func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[len(s)-maxLen:]
}

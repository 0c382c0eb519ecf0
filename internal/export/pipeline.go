package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/reelcut/reelcut-agent/internal/compositor"
	"github.com/reelcut/reelcut-agent/internal/session"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

// Painter draws one composited scene.
type Painter interface {
	Paint(scene compositor.Scene, sink compositor.FrameSink)
}

// Canvas is a frame sink whose pixels can be handed to a recorder.
type Canvas interface {
	compositor.FrameSink
	Image() *image.RGBA
}

// MediaResolver maps a clip's file to something ffmpeg can open.
type MediaResolver interface {
	Path(ctx context.Context, fileID string) (string, error)
	HasAudio(ctx context.Context, fileID string) (bool, error)
}

// Pipeline renders one export at a time. Rendering is paced by wall-clock
// time so the audio mix, which ffmpeg reads at its own speed, lines up with a
// video track of floor(elapsed*fps) frames.
type Pipeline struct {
	cfg       Config
	painter   Painter
	newCanvas func() (Canvas, error)
	recorder  Recorder
	converter Converter
	media     MediaResolver
	logger    *slog.Logger

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	status Status
}

type PipelineDeps struct {
	Painter   Painter
	NewCanvas func() (Canvas, error)
	Recorder  Recorder
	Converter Converter
	Media     MediaResolver
	Logger    *slog.Logger
}

func NewPipeline(cfg Config, deps PipelineDeps) *Pipeline {
	def := DefaultConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.ConvertTimeout <= 0 {
		cfg.ConvertTimeout = def.ConvertTimeout
	}
	newCanvas := deps.NewCanvas
	if newCanvas == nil {
		newCanvas = func() (Canvas, error) {
			return compositor.NewRasterSink(cfg.Width, cfg.Height)
		}
	}
	return &Pipeline{
		cfg:       cfg,
		painter:   deps.Painter,
		newCanvas: newCanvas,
		recorder:  deps.Recorder,
		converter: deps.Converter,
		media:     deps.Media,
		logger:    deps.Logger,
		now:       time.Now,
		wait:      sleepCtx,
		status:    Status{Stage: StageIdle},
	}
}

func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Run renders snap and converts the recording. It refuses an empty project
// before touching the recorder, and always leaves the pipeline idle.
func (p *Pipeline) Run(ctx context.Context, snap session.ExportSnapshot, report ProgressFunc) ([]byte, error) {
	duration := snap.Timeline.ProjectDuration()
	if duration <= 0 {
		return nil, ErrNothingToExport
	}
	if err := p.acquire(); err != nil {
		return nil, err
	}
	defer p.setStatus(StageIdle, 0, nil)

	logger := p.logger.With("project_id", snap.ProjectID)
	start := time.Now()

	p.setStatus(StageRendering, 0, report)
	recording, err := p.render(ctx, snap, duration, report)
	if err != nil {
		logger.Error("render failed", "error", err)
		return nil, err
	}
	logger.Info("recording finished", "bytes", len(recording), "elapsed_ms", time.Since(start).Milliseconds())

	p.setStatus(StageConverting, maxRenderProgress, report)
	out, err := p.Convert(ctx, recording)
	if err != nil {
		logger.Error("conversion failed", "error", err)
		return nil, err
	}
	logger.Info("export finished", "bytes", len(out), "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

// Convert hands a recording to the converter under the timeout ceiling. A
// zero-byte recording fails before any call is made.
func (p *Pipeline) Convert(ctx context.Context, recording []byte) ([]byte, error) {
	if len(recording) == 0 {
		return nil, ErrEmptyRecording
	}
	if p.converter == nil {
		return nil, &ConvertError{Message: "no converter configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConvertTimeout)
	defer cancel()

	out, err := p.converter.Convert(ctx, recording)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("conversion timed out after %s: %w", p.cfg.ConvertTimeout, err)
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}

func (p *Pipeline) render(ctx context.Context, snap session.ExportSnapshot, duration float64, report ProgressFunc) ([]byte, error) {
	if p.recorder == nil {
		return nil, errors.New("no recorder configured")
	}
	canvas, err := p.newCanvas()
	if err != nil {
		return nil, err
	}

	fps := p.cfg.FPS
	total := max(1, int(math.Ceil(duration*fps)))
	frameDur := time.Duration(float64(time.Second) / fps)

	rec, err := p.recorder.Start(ctx, RecordingSpec{
		Width:    p.cfg.Width,
		Height:   p.cfg.Height,
		FPS:      fps,
		Duration: float64(total) / fps,
		Audio:    p.audioInputs(ctx, snap.Timeline),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}

	start := p.now()
	written := 0
	lastPct := 0
	for {
		elapsed := p.now().Sub(start).Seconds()
		want := total
		if elapsed < duration {
			want = min(total, int(math.Floor(elapsed*fps))+1)
		}

		if want > written {
			at := float64(want-1) / fps
			p.painter.Paint(compositor.BuildScene(snap.Timeline, snap.Cues, snap.Captions, at), canvas)
			img := canvas.Image()
			// Frames skipped by a slow tick repeat the newest picture.
			for ; written < want; written++ {
				if err := rec.WriteFrame(img); err != nil {
					rec.Abort()
					return nil, err
				}
			}
		}

		pct := min(maxRenderProgress, int(math.Floor(math.Min(elapsed, duration)/duration*100)))
		if pct != lastPct {
			p.setStatus(StageRendering, pct, report)
			lastPct = pct
		}

		if written >= total {
			break
		}
		if err := p.wait(ctx, frameDur); err != nil {
			rec.Abort()
			return nil, err
		}
	}

	data, err := rec.Finish()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// audioInputs collects every clip that contributes sound. Clips whose media
// cannot be resolved are left out of the mix rather than failing the export.
func (p *Pipeline) audioInputs(ctx context.Context, tl *timeline.Timeline) []AudioInput {
	if p.media == nil {
		return nil
	}
	var inputs []AudioInput
	for _, c := range tl.Clips() {
		if !c.Kind.Playable() || c.OutputVolume() <= 0 {
			continue
		}
		ok, err := p.media.HasAudio(ctx, c.FileID)
		if err != nil {
			p.logger.Warn("skipping clip audio", "clip_id", c.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		path, err := p.media.Path(ctx, c.FileID)
		if err != nil {
			p.logger.Warn("skipping clip audio", "clip_id", c.ID, "error", err)
			continue
		}
		inputs = append(inputs, AudioInput{
			Path:     path,
			Offset:   c.SourceOffset,
			Duration: c.Duration,
			Start:    c.Start,
			Volume:   c.OutputVolume(),
		})
	}
	return inputs
}

func (p *Pipeline) acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.Stage != StageIdle {
		return ErrBusy
	}
	p.status = Status{Stage: StageRendering}
	return nil
}

func (p *Pipeline) setStatus(stage Stage, progress int, report ProgressFunc) {
	p.mu.Lock()
	p.status = Status{Stage: stage, Progress: progress}
	p.mu.Unlock()
	if report != nil {
		report(stage, progress)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

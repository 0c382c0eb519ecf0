// Package session holds the live editor state of open projects. A Session
// aggregates the timeline, captions, playhead and media sinks of one project
// and serializes every mutation behind a single mutex.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reelcut/reelcut-agent/internal/captions"
	"github.com/reelcut/reelcut-agent/internal/ingest"
	"github.com/reelcut/reelcut-agent/internal/logging"
	"github.com/reelcut/reelcut-agent/internal/media"
	"github.com/reelcut/reelcut-agent/internal/playback"
	"github.com/reelcut/reelcut-agent/internal/speech"
	"github.com/reelcut/reelcut-agent/internal/store"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrExporting    = errors.New("export in progress")
	ErrBusy         = errors.New("caption generation already running")
	ErrNoSpeech     = errors.New("no audible clip to caption")
	ErrNoRecognizer = errors.New("speech recognition is not configured")
)

// Store is the persistence a session needs.
type Store interface {
	ingest.FileStore
	GetFile(ctx context.Context, id string) (*store.MediaFile, error)
	FileExists(ctx context.Context, id string) (bool, error)
	PutProject(ctx context.Context, p *store.Project) error
	GetProject(ctx context.Context, id string) (*store.Project, error)
	ListProjects(ctx context.Context) ([]*store.ProjectSummary, error)
	GetSavedAudio(ctx context.Context, id string) (*store.SavedAudio, error)
}

// SinkFactory creates and releases per-clip media sinks.
type SinkFactory interface {
	Sink(clip timeline.Clip) media.Sink
	Release(clipID string)
}

// AudioSource extracts a clip's audio for recognition.
type AudioSource interface {
	Extract(ctx context.Context, clip timeline.Clip) ([]byte, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Store         Store
	Importer      *ingest.Importer
	Prober        ingest.Prober
	Sinks         SinkFactory
	Audio         AudioSource
	Recognizer    speech.Recognizer
	SpeechOptions speech.Options
	Logger        *slog.Logger
	DraftDelay    time.Duration
	FrameInterval time.Duration
	Now           func() time.Time
}

type Session struct {
	ctx    context.Context
	deps   Deps
	logger *slog.Logger

	mu         sync.Mutex
	project    store.Project
	tl         *timeline.Timeline
	cues       []captions.Cue
	settings   captions.Settings
	clock      *playback.Clock
	syncer     *playback.Synchronizer
	sinks      map[string]media.Sink
	gestures   map[string]gesture
	exporting  bool
	generating bool
	status     string

	driver  *playback.Driver
	drafter *Drafter
}

func newSession(ctx context.Context, p store.Project, deps Deps) *Session {
	logger := logging.WithProjectID(deps.Logger, p.ID)
	s := &Session{
		ctx:      ctx,
		deps:     deps,
		logger:   logger,
		project:  p,
		tl:       timeline.New(),
		settings: captions.DefaultSettings(),
		clock:    playback.NewClock(0),
		syncer:   playback.NewSynchronizer(),
		sinks:    make(map[string]media.Sink),
		gestures: make(map[string]gesture),
		driver:   playback.NewDriver(deps.FrameInterval, logger),
	}
	s.drafter = NewDrafter(deps.DraftDelay, s.save, logger)
	return s
}

func (s *Session) ID() string {
	return s.project.ID
}

func (s *Session) now() time.Time {
	if s.deps.Now != nil {
		return s.deps.Now()
	}
	return time.Now()
}

// Info is a read-only view of the session for the API.
type Info struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Duration  float64            `json:"duration"`
	Clips     []timeline.Clip    `json:"clips"`
	Overlays  []timeline.Overlay `json:"overlays"`
	Cues      []captions.Cue     `json:"cues"`
	Captions  captions.Settings  `json:"captions"`
	Playback  PlaybackState      `json:"playback"`
	Exporting bool               `json:"exporting"`
	Status    string             `json:"status,omitempty"`
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.project.ID,
		Name:      s.project.Name,
		CreatedAt: s.project.CreatedAt,
		UpdatedAt: s.project.UpdatedAt,
		Duration:  s.tl.ProjectDuration(),
		Clips:     s.tl.Clips(),
		Overlays:  s.tl.Overlays(),
		Cues:      append([]captions.Cue(nil), s.cues...),
		Captions:  s.settings,
		Playback:  s.playbackStateLocked(),
		Exporting: s.exporting,
		Status:    s.status,
	}
}

func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(msg string) {
	s.mu.Lock()
	s.status = msg
	s.mu.Unlock()
}

// Import validates and probes payloads outside the lock, then stores and
// places them in order.
func (s *Session) Import(ctx context.Context, payloads []ingest.Payload) ([]timeline.Clip, error) {
	prepared, err := s.deps.Importer.Prepare(ctx, payloads)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return nil, ErrExporting
	}
	clips, err := s.deps.Importer.Place(ctx, s.tl, prepared)
	if len(clips) > 0 {
		s.changedLocked()
	}
	if err != nil {
		return clips, err
	}
	s.status = fmt.Sprintf("Imported %d file(s)", len(clips))
	return clips, nil
}

// ImportSavedAudio places a library entry as an audio clip.
func (s *Session) ImportSavedAudio(ctx context.Context, audioID string) (timeline.Clip, error) {
	entry, err := s.deps.Store.GetSavedAudio(ctx, audioID)
	if err != nil {
		return timeline.Clip{}, err
	}
	if entry == nil {
		return timeline.Clip{}, fmt.Errorf("saved audio %s: %w", audioID, ErrNotFound)
	}
	file, err := s.deps.Store.GetFile(ctx, entry.FileID)
	if err != nil {
		return timeline.Clip{}, err
	}
	if file == nil {
		return timeline.Clip{}, fmt.Errorf("audio file %s: %w", entry.FileID, ErrNotFound)
	}
	if s.deps.Prober == nil {
		return timeline.Clip{}, ingest.ErrUnreadable
	}
	res, err := s.deps.Prober.ProbeBytes(ctx, file.Data)
	if err != nil {
		return timeline.Clip{}, fmt.Errorf("%w: %w", ingest.ErrUnreadable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return timeline.Clip{}, ErrExporting
	}
	c := s.deps.Importer.PlaceStored(s.tl, file, timeline.KindAudio, res.Duration)
	s.changedLocked()
	return c, nil
}

func (s *Session) RemoveClip(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return ErrExporting
	}
	if _, err := s.tl.RemoveClip(id); err != nil {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	s.releaseSinkLocked(id)
	delete(s.gestures, id)
	s.changedLocked()
	return nil
}

// gestureIdle is how long a drag gesture survives without pointer updates.
const gestureIdle = 3 * time.Second

// Drag is one pointer update. With a Gesture id, Delta is measured from the
// clip geometry when that gesture began; without one, Delta applies to the
// clip as it is now.
type Drag struct {
	Mode    timeline.DragMode
	Delta   float64
	Gesture string
	Done    bool
}

// gesture holds the geometry a drag started from.
type gesture struct {
	id     string
	mode   timeline.DragMode
	origin timeline.Clip
	seen   time.Time
}

// DragClip moves or trims a clip. Only start, duration and source offset are
// written back, so edits made while a gesture is live are kept.
func (s *Session) DragClip(id string, d Drag) (timeline.Clip, error) {
	if !d.Mode.Valid() {
		return timeline.Clip{}, fmt.Errorf("%w: unknown drag mode %q", ErrInvalidInput, d.Mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return timeline.Clip{}, ErrExporting
	}

	current, ok := s.tl.Clip(id)
	if !ok {
		return timeline.Clip{}, fmt.Errorf("clip %s: %w", id, ErrNotFound)
	}

	origin := current
	now := s.now()
	if d.Gesture != "" {
		g, live := s.gestures[id]
		if !live || g.id != d.Gesture || g.mode != d.Mode || now.Sub(g.seen) > gestureIdle {
			g = gesture{id: d.Gesture, mode: d.Mode, origin: current}
		}
		g.seen = now
		origin = g.origin
		if d.Done {
			delete(s.gestures, id)
		} else {
			s.gestures[id] = g
		}
	} else {
		delete(s.gestures, id)
	}

	moved, err := timeline.ApplyDrag(origin, d.Mode, d.Delta)
	if err != nil {
		return timeline.Clip{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	current.Start = moved.Start
	current.Duration = moved.Duration
	current.SourceOffset = moved.SourceOffset
	if err := s.tl.ReplaceClip(current); err != nil {
		return timeline.Clip{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	s.changedLocked()
	return current, nil
}

func (s *Session) SetClipVolume(id string, v float64) (timeline.Clip, error) {
	return s.editClip(id, func(c *timeline.Clip) { c.SetVolume(v) })
}

func (s *Session) ToggleMute(id string) (timeline.Clip, error) {
	return s.editClip(id, func(c *timeline.Clip) { c.ToggleMute() })
}

func (s *Session) editClip(id string, edit func(*timeline.Clip)) (timeline.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return timeline.Clip{}, ErrExporting
	}
	c, ok := s.tl.Clip(id)
	if !ok {
		return timeline.Clip{}, fmt.Errorf("clip %s: %w", id, ErrNotFound)
	}
	edit(&c)
	if err := s.tl.ReplaceClip(c); err != nil {
		return timeline.Clip{}, err
	}
	s.changedLocked()
	return c, nil
}

// AddOverlay creates an overlay at the current playhead.
func (s *Session) AddOverlay(kind timeline.OverlayKind, text string) (timeline.Overlay, error) {
	if kind != timeline.OverlayTitle && kind != timeline.OverlaySticker {
		return timeline.Overlay{}, fmt.Errorf("%w: unknown overlay kind %q", ErrInvalidInput, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return timeline.Overlay{}, ErrExporting
	}
	o := s.tl.AddOverlay(timeline.NewOverlay(kind, text, s.clock.Position()))
	s.changedLocked()
	return o, nil
}

// OverlayPatch carries optional overlay field updates.
type OverlayPatch struct {
	Text     *string  `json:"text,omitempty"`
	Start    *float64 `json:"start,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Size     *float64 `json:"size,omitempty"`
	Color    *string  `json:"color,omitempty"`
	BG       *string  `json:"bg,omitempty"`
}

func (p OverlayPatch) apply(o *timeline.Overlay) {
	if p.Text != nil {
		o.Text = *p.Text
	}
	if p.Start != nil {
		o.Start = *p.Start
	}
	if p.Duration != nil {
		o.Duration = *p.Duration
	}
	if p.X != nil {
		o.X = *p.X
	}
	if p.Y != nil {
		o.Y = *p.Y
	}
	if p.Size != nil {
		o.Size = *p.Size
	}
	if p.Color != nil {
		o.Color = *p.Color
	}
	if p.BG != nil {
		o.BG = *p.BG
	}
}

func (s *Session) UpdateOverlay(id string, patch OverlayPatch) (timeline.Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return timeline.Overlay{}, ErrExporting
	}
	o, ok := s.tl.Overlay(id)
	if !ok {
		return timeline.Overlay{}, fmt.Errorf("overlay %s: %w", id, ErrNotFound)
	}
	patch.apply(&o)
	o, err := s.tl.UpdateOverlay(o)
	if err != nil {
		return timeline.Overlay{}, err
	}
	s.changedLocked()
	return o, nil
}

func (s *Session) RemoveOverlay(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return ErrExporting
	}
	if err := s.tl.RemoveOverlay(id); err != nil {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	s.changedLocked()
	return nil
}

// Rename changes the project name.
func (s *Session) Rename(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return ErrExporting
	}
	s.project.Name = name
	s.drafter.Touch()
	return nil
}

// changedLocked re-bounds the playhead, reconciles sinks with the edited
// timeline and schedules a draft save.
func (s *Session) changedLocked() {
	s.clock.SetDuration(s.tl.ProjectDuration())
	if !s.clock.Playing() && s.driver.IsRunning() {
		s.driver.Stop()
	}
	s.syncLocked(true)
	s.drafter.Touch()
}

func (s *Session) releaseSinkLocked(id string) {
	sink, ok := s.sinks[id]
	if !ok {
		return
	}
	sink.Pause()
	delete(s.sinks, id)
	if s.deps.Sinks != nil {
		s.deps.Sinks.Release(id)
	}
}

// Close stops playback, releases every sink and flushes the pending draft.
func (s *Session) Close(ctx context.Context) error {
	s.driver.Stop()
	s.driver.Wait()

	s.mu.Lock()
	s.clock.Pause(s.now())
	for id := range s.sinks {
		s.releaseSinkLocked(id)
	}
	s.mu.Unlock()

	return s.drafter.Flush(ctx)
}

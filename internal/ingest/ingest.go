// Package ingest turns uploaded files into stored blobs and timeline clips.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/reelcut/reelcut-agent/internal/media"
	"github.com/reelcut/reelcut-agent/internal/store"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

// probeConcurrency bounds parallel ffprobe runs within one batch.
const probeConcurrency = 4

var (
	ErrNoFiles      = errors.New("no files provided")
	ErrEmptyPayload = errors.New("file has no data")
	ErrUnreadable   = errors.New("cannot read media duration")
)

type Payload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Prepared is a validated, classified and probed upload that has not yet
// been stored or placed.
type Prepared struct {
	Payload
	Kind     timeline.Kind
	Duration float64
}

type Prober interface {
	ProbeBytes(ctx context.Context, data []byte) (*media.ProbeResult, error)
}

type FileStore interface {
	PutFile(ctx context.Context, f *store.MediaFile) error
}

type Importer struct {
	files  FileStore
	prober Prober
	logger *slog.Logger
}

func NewImporter(files FileStore, prober Prober, logger *slog.Logger) *Importer {
	return &Importer{files: files, prober: prober, logger: logger}
}

// Prepare validates every payload and probes durations concurrently. Any
// failure rejects the whole batch before anything is stored.
func (im *Importer) Prepare(ctx context.Context, payloads []Payload) ([]Prepared, error) {
	if len(payloads) == 0 {
		return nil, ErrNoFiles
	}

	out := make([]Prepared, len(payloads))
	for i, p := range payloads {
		if len(p.Data) == 0 {
			return nil, fmt.Errorf("%s: %w", p.Name, ErrEmptyPayload)
		}
		kind, mt, err := media.Classify(p.Name, p.MimeType, p.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		p.MimeType = mt
		out[i] = Prepared{Payload: p, Kind: kind}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i := range out {
		if !out[i].Kind.Playable() {
			out[i].Duration = timeline.DefaultImageDur
			continue
		}
		g.Go(func() error {
			if im.prober == nil {
				return fmt.Errorf("%s: %w: no prober configured", out[i].Name, ErrUnreadable)
			}
			res, err := im.prober.ProbeBytes(gctx, out[i].Data)
			if err != nil {
				return fmt.Errorf("%s: %w: %v", out[i].Name, ErrUnreadable, err)
			}
			out[i].Duration = res.Duration
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Place stores each prepared file and appends a clip at the end of its
// track. Files are handled in order so later ones land after earlier ones.
func (im *Importer) Place(ctx context.Context, tl *timeline.Timeline, prepared []Prepared) ([]timeline.Clip, error) {
	clips := make([]timeline.Clip, 0, len(prepared))
	for _, p := range prepared {
		f := &store.MediaFile{
			ID:        uuid.NewString(),
			Name:      p.Name,
			MimeType:  p.MimeType,
			Data:      p.Data,
			CreatedAt: time.Now(),
		}
		if err := im.files.PutFile(ctx, f); err != nil {
			return clips, fmt.Errorf("failed to store %s: %w", p.Name, err)
		}

		c := timeline.NewClip(f.ID, p.Name, p.Kind, tl.TrackEnd(p.Kind), p.Duration)
		tl.AddClip(c)
		clips = append(clips, c)

		im.logger.Info("media imported",
			"file_id", f.ID,
			"clip_id", c.ID,
			"kind", p.Kind,
			"duration", c.Duration,
			"size", f.Size,
		)
	}
	return clips, nil
}

// PlaceStored appends a clip for an already stored file, such as an entry of
// the saved-audio library.
func (im *Importer) PlaceStored(tl *timeline.Timeline, file *store.MediaFile, kind timeline.Kind, duration float64) timeline.Clip {
	c := timeline.NewClip(file.ID, file.Name, kind, tl.TrackEnd(kind), duration)
	tl.AddClip(c)
	return c
}

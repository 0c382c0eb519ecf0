package session

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reelcut/reelcut-agent/internal/captions"
	"github.com/reelcut/reelcut-agent/internal/store"
	"github.com/reelcut/reelcut-agent/internal/timeline"
)

// restoreConcurrency bounds parallel blob existence checks.
const restoreConcurrency = 8

func (s *Session) snapshotLocked() store.Document {
	return store.Document{
		Clips:    s.tl.Clips(),
		Overlays: s.tl.Overlays(),
		Cues:     append([]captions.Cue(nil), s.cues...),
		Captions: s.settings,
	}
}

// Restore loads a persisted document. Clips whose media file is gone are
// dropped with a warning; the rest of the project still opens.
func (s *Session) Restore(ctx context.Context, doc store.Document) error {
	missing, err := s.missingFiles(ctx, doc.Clips)
	if err != nil {
		return err
	}

	clips := make([]timeline.Clip, 0, len(doc.Clips))
	for _, c := range doc.Clips {
		if missing[c.FileID] {
			s.logger.Warn("dropping clip with missing media", "clip_id", c.ID, "file_id", c.FileID)
			continue
		}
		if !c.Kind.Valid() {
			s.logger.Warn("dropping clip with unknown kind", "clip_id", c.ID, "kind", c.Kind)
			continue
		}
		clips = append(clips, c)
	}

	settings := doc.Captions
	if settings.Validate() != nil {
		settings = captions.DefaultSettings()
	}
	settings.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.sinks {
		s.releaseSinkLocked(id)
	}
	clear(s.gestures)
	s.tl = timeline.FromDocument(clips, doc.Overlays)
	s.cues = captions.Resubdivide(doc.Cues)
	s.settings = settings
	s.clock.SetDuration(s.tl.ProjectDuration())
	s.clock.Seek(0, s.now())
	s.syncLocked(true)
	return nil
}

// missingFiles checks every referenced file id concurrently.
func (s *Session) missingFiles(ctx context.Context, clips []timeline.Clip) (map[string]bool, error) {
	ids := make(map[string]struct{})
	for _, c := range clips {
		ids[c.FileID] = struct{}{}
	}

	var mu sync.Mutex
	missing := make(map[string]bool)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(restoreConcurrency)
	for id := range ids {
		g.Go(func() error {
			ok, err := s.deps.Store.FileExists(gctx, id)
			if err != nil {
				return err
			}
			if !ok {
				mu.Lock()
				missing[id] = true
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return missing, nil
}

// save persists the current document. UpdatedAt is assigned by the store and
// copied back.
func (s *Session) save(ctx context.Context) error {
	s.mu.Lock()
	p := s.project
	p.Document = s.snapshotLocked()
	p.UpdatedAt = s.now()
	s.mu.Unlock()

	if err := s.deps.Store.PutProject(ctx, &p); err != nil {
		return err
	}

	s.mu.Lock()
	s.project.CreatedAt = p.CreatedAt
	s.project.UpdatedAt = p.UpdatedAt
	s.mu.Unlock()
	return nil
}

// Save flushes any pending draft immediately.
func (s *Session) Save(ctx context.Context) error {
	s.drafter.Touch()
	return s.drafter.Flush(ctx)
}

package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/reelcut/reelcut-agent/internal/logging"
)

const defaultCacheTTL = 5 * time.Minute

// DoctorRunner probes the recognizer environment.
type DoctorRunner interface {
	RunDoctor(ctx context.Context) (*Capabilities, error)
}

// CachedDoctor keeps the last capability probe so status requests do not
// spawn a subprocess each time. Concurrent probes share one run.
type CachedDoctor struct {
	runner DoctorRunner
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
	probes singleflight.Group

	mu       sync.RWMutex
	cached   *Capabilities
	probedAt time.Time
}

func NewCachedDoctor(runner DoctorRunner, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		runner: runner,
		ttl:    defaultCacheTTL,
		logger: logging.WithComponent(logger, "speech_doctor"),
		now:    time.Now,
	}
}

// Get serves the cache while it is younger than the TTL and probes otherwise.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	caps, fresh := d.cached, d.cached != nil && d.now().Sub(d.probedAt) < d.ttl
	d.mu.RUnlock()
	if fresh {
		return caps, nil
	}
	return d.Refresh(ctx)
}

// Peek returns the last probe result without probing. Nil until one succeeds.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh probes now. When the probe fails a previous result is returned
// instead of the error.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	v, err, _ := d.probes.Do("doctor", func() (any, error) {
		return d.runner.RunDoctor(ctx)
	})

	d.mu.Lock()
	defer d.mu.Unlock()

	if err != nil {
		if d.cached == nil {
			d.logger.Warn("doctor probe failed", "error", err)
			return nil, err
		}
		d.logger.Warn("doctor probe failed, serving previous result", "error", err, "probed_at", d.probedAt)
		return d.cached, nil
	}

	d.cached = v.(*Capabilities)
	d.probedAt = d.now()
	return d.cached, nil
}

// Invalidate forgets the cached result.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = nil
	d.probedAt = time.Time{}
}

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultDraftDelay is the quiet period after the last edit before a draft
// is written.
const DefaultDraftDelay = 350 * time.Millisecond

// Drafter debounces saves: every Touch resets a single pending timer, and
// the save runs once the edits have been quiet for the delay.
type Drafter struct {
	delay  time.Duration
	save   func(ctx context.Context) error
	logger *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	saving  sync.Mutex
}

func NewDrafter(delay time.Duration, save func(ctx context.Context) error, logger *slog.Logger) *Drafter {
	if delay <= 0 {
		delay = DefaultDraftDelay
	}
	return &Drafter{delay: delay, save: save, logger: logger}
}

// Touch marks the document dirty and restarts the quiet period.
func (d *Drafter) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

// Pending reports whether edits are waiting to be saved.
func (d *Drafter) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Drafter) fire() {
	if err := d.run(context.Background()); err != nil {
		d.logger.Error("draft save failed", "error", err)
	}
}

// Flush cancels the timer and saves now if anything is pending.
func (d *Drafter) Flush(ctx context.Context) error {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	return d.run(ctx)
}

func (d *Drafter) run(ctx context.Context) error {
	d.saving.Lock()
	defer d.saving.Unlock()

	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return nil
	}
	d.pending = false
	d.mu.Unlock()

	if err := d.save(ctx); err != nil {
		d.mu.Lock()
		d.pending = true
		d.mu.Unlock()
		return err
	}
	d.logger.Debug("draft saved")
	return nil
}

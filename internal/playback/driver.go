package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FrameInterval is the preview tick rate, roughly one display refresh.
const FrameInterval = time.Second / 60

// TickFunc runs once per frame. Returning false stops the driver.
type TickFunc func(now time.Time) bool

// Driver runs a frame loop for one session. Starting a running driver is a
// no-op.
type Driver struct {
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDriver(interval time.Duration, logger *slog.Logger) *Driver {
	if interval <= 0 {
		interval = FrameInterval
	}
	return &Driver{interval: interval, logger: logger}
}

func (d *Driver) Start(ctx context.Context, tick TickFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.activeLocked() {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.loop(ctx, tick, d.done)
}

func (d *Driver) loop(ctx context.Context, tick TickFunc, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Debug("playback driver started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("playback driver stopped")
			return
		case now := <-ticker.C:
			if !tick(now) {
				d.logger.Debug("playback driver finished")
				return
			}
		}
	}
}

// Stop cancels the loop without waiting. A tick already in flight still runs,
// so tick functions must tolerate being called once after Stop.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// Wait blocks until the most recent loop has exited.
func (d *Driver) Wait() {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (d *Driver) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeLocked()
}

func (d *Driver) activeLocked() bool {
	if d.cancel == nil || d.done == nil {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

package executor

import (
	"context"
	"sync"
	"time"
)

// Device abstracts the physical plotter. All motion calls block until the
// move completes or ctx is cancelled.
type Device interface {
	MoveTo(ctx context.Context, x, y float64) error
	PenUp(ctx context.Context) error
	PenDown(ctx context.Context) error
	Home(ctx context.Context) error
	Connected() bool
}

// SimDevice is an in-memory plotter used for development and tests. Each
// motion call sleeps for delay to approximate real pen travel.
type SimDevice struct {
	mu      sync.Mutex
	x, y    float64
	penDown bool
	delay   time.Duration
}

func NewSimDevice(delay time.Duration) *SimDevice {
	return &SimDevice{delay: delay}
}

func (d *SimDevice) MoveTo(ctx context.Context, x, y float64) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	d.x, d.y = x, y
	d.mu.Unlock()
	return nil
}

func (d *SimDevice) PenUp(ctx context.Context) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	d.penDown = false
	d.mu.Unlock()
	return nil
}

func (d *SimDevice) PenDown(ctx context.Context) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	d.penDown = true
	d.mu.Unlock()
	return nil
}

func (d *SimDevice) Home(ctx context.Context) error {
	return d.MoveTo(ctx, 0, 0)
}

func (d *SimDevice) Connected() bool { return true }

// Position reports the current head position. Test helper.
func (d *SimDevice) Position() (float64, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.x, d.y
}

func (d *SimDevice) PenIsDown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.penDown
}

func (d *SimDevice) wait(ctx context.Context) error {
	if d.delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

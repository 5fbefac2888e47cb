package preview1

import (
	"context"
	"sync"
	"time"

	wasihost "github.com/wippyai/wasi-host"
)

// Sleeper is implemented by clocks that control how poll_oneoff waits.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct {
	base time.Time
}

// SystemClock returns a clock backed by the host's wall and monotonic time.
func SystemClock() wasihost.Clock {
	return &systemClock{base: time.Now()}
}

func (c *systemClock) Realtime() int64 {
	return time.Now().UnixNano()
}

func (c *systemClock) Monotonic() int64 {
	return int64(time.Since(c.base))
}

func (c *systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FakeClock is a deterministic clock. Every reading advances it by Step,
// and Sleep advances it without blocking.
type FakeClock struct {
	mu   sync.Mutex
	wall int64
	mono int64
	step int64
}

// NewFakeClock starts at wall time start with a monotonic reading of zero.
func NewFakeClock(start time.Time, step time.Duration) *FakeClock {
	return &FakeClock{wall: start.UnixNano(), step: int64(step)}
}

func (c *FakeClock) Realtime() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.wall + c.mono
	c.mono += c.step
	return v
}

func (c *FakeClock) Monotonic() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.mono
	c.mono += c.step
	return v
}

// Advance moves both readings forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mono += int64(d)
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		c.Advance(d)
	}
	return nil
}

// resolution reports nanoseconds per tick for a clock id.
func resolution(id uint32) (uint64, bool) {
	switch id {
	case ClockRealtime:
		return 1000, true
	case ClockMonotonic, ClockProcessCputime, ClockThreadCputime:
		return 1, true
	default:
		return 0, false
	}
}

func sleep(ctx context.Context, clock wasihost.Clock, d time.Duration) error {
	if s, ok := clock.(Sleeper); ok {
		return s.Sleep(ctx, d)
	}
	return (&systemClock{}).Sleep(ctx, d)
}

package booking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultTickInterval = time.Second

// Guard is the single "already concluded" flag shared by everything that can end
// a session. Only the first Conclude call wins.
type Guard struct {
	concluded atomic.Bool
}

func (g *Guard) Conclude() bool {
	return g.concluded.CompareAndSwap(false, true)
}

func (g *Guard) Concluded() bool {
	return g.concluded.Load()
}

// Countdown ticks toward an absolute expiry and fires onTimeout at most once.
// The timeout only fires if it wins the guard, so a settlement that concluded
// first silences it.
type Countdown struct {
	clock     Clock
	interval  time.Duration
	guard     *Guard
	onTick    func(remaining time.Duration)
	onTimeout func()

	mu        sync.Mutex
	expiresAt time.Time
	cancel    context.CancelFunc
	running   bool
	fired     bool
	wg        sync.WaitGroup
}

type CountdownOption func(*Countdown)

func WithTickInterval(d time.Duration) CountdownOption {
	return func(c *Countdown) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithCountdownClock(clock Clock) CountdownOption {
	return func(c *Countdown) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func OnTick(fn func(remaining time.Duration)) CountdownOption {
	return func(c *Countdown) { c.onTick = fn }
}

func NewCountdown(guard *Guard, onTimeout func(), opts ...CountdownOption) *Countdown {
	if guard == nil {
		guard = &Guard{}
	}
	c := &Countdown{
		clock:     systemClock{},
		interval:  defaultTickInterval,
		guard:     guard,
		onTimeout: onTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins ticking toward expiresAt, replacing any earlier target.
func (c *Countdown) Start(expiresAt time.Time) error {
	if c.guard.Concluded() {
		return ErrConcluded
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fired {
		return ErrConcluded
	}
	c.expiresAt = expiresAt
	c.startLocked()
	return nil
}

// Extend moves the expiry forward by minutes and resumes ticking if stopped.
func (c *Countdown) Extend(minutes int) error {
	if minutes <= 0 {
		return invalid("minutes", ErrNotPositive)
	}
	c.mu.Lock()
	target := c.expiresAt.Add(time.Duration(minutes) * time.Minute)
	c.mu.Unlock()
	return c.ExtendTo(target)
}

// ExtendTo moves the expiry to an authoritative timestamp, usually returned by the server.
func (c *Countdown) ExtendTo(expiresAt time.Time) error {
	if c.guard.Concluded() {
		return ErrConcluded
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fired {
		return ErrConcluded
	}
	if expiresAt.After(c.expiresAt) {
		c.expiresAt = expiresAt
	}
	if !c.running {
		c.startLocked()
	}
	return nil
}

// Stop halts ticking without invoking the timeout. It does not wait for the
// ticking goroutine; use Wait for that.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Wait blocks until the ticking goroutine has exited.
func (c *Countdown) Wait() {
	c.wg.Wait()
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Countdown) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt
}

func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *Countdown) remainingLocked() time.Duration {
	remaining := c.expiresAt.Sub(c.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *Countdown) startLocked() {
	c.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true
	c.wg.Add(1)
	go c.run(ctx)
}

func (c *Countdown) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.running = false
}

func (c *Countdown) run(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if c.tick(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick reports whether the loop should stop.
func (c *Countdown) tick(ctx context.Context) bool {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return true
	}
	remaining := c.remainingLocked()
	if remaining > 0 {
		c.mu.Unlock()
		if c.onTick != nil {
			c.onTick(remaining)
		}
		return false
	}
	c.fired = true
	c.stopLocked()
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(0)
	}
	if c.guard.Conclude() && c.onTimeout != nil {
		c.onTimeout()
	}
	return true
}

// Package clock implements C11 (SuperframeClock): the monotonic
// superframe counter and start-of-frame (SoF) fan-out that paces every
// other block. Grounded on pkg/node/controller.go's ticker-driven
// background loop in the teacher repo (context.Context cancellation,
// sync.WaitGroup join on stop), generalized from a fixed CANopen SYNC
// period to a configurable superframe duration with subscriber fan-out.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	rcs2mac "github.com/opensand/rcs2mac"
)

// Listener is notified of each start-of-frame event (spec.md §4.8/§5).
type Listener interface {
	OnSof(superframe uint32)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(superframe uint32)

func (f ListenerFunc) OnSof(superframe uint32) { f(superframe) }

// Clock is C11: ticks every superframe duration and fans the SoF event out
// to all registered listeners in registration order (spec.md §4.8 step 0:
// "the clock's SoF must be observed by every block before any block acts
// on it").
type Clock struct {
	mu        sync.Mutex
	period    time.Duration
	listeners []Listener
	current   uint32
	started   bool

	log    *logrus.Entry
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Clock with the given superframe duration.
func New(period time.Duration) *Clock {
	return &Clock{
		period: period,
		log:    logrus.WithField("block", "clock"),
	}
}

// Subscribe registers a listener to be notified of every SoF. Must be
// called before Start.
func (c *Clock) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Current returns the most recently issued superframe number.
func (c *Clock) Current() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Start begins ticking in a background goroutine. Call Stop (or cancel
// ctx) to end it, then Wait to join.
func (c *Clock) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

func (c *Clock) run(ctx context.Context) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	c.log.WithField("period", c.period).Info("superframe clock started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("superframe clock stopped")
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick advances the superframe counter by one and notifies listeners.
func (c *Clock) tick() {
	c.mu.Lock()
	c.current++
	sf := c.current
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnSof(sf)
	}
}

// Stop cancels the background goroutine; Wait blocks until it exits.
func (c *Clock) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Wait blocks until the background goroutine has exited.
func (c *Clock) Wait() {
	c.wg.Wait()
}

// Advance manually issues one SoF for superframe sf, rejecting any sf that
// does not strictly follow the current one (spec.md §8 property: SoF
// numbers are monotonically increasing, never skipped backwards). Intended
// for tests and for drivers that don't use the internal ticker.
func (c *Clock) Advance(sf uint32) error {
	c.mu.Lock()
	if c.started && sf <= c.current {
		c.mu.Unlock()
		return rcs2mac.ErrBackwardsSof
	}
	c.started = true
	c.current = sf
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnSof(sf)
	}
	return nil
}

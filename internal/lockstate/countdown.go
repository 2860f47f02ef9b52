package lockstate

import (
	"sync"
	"time"

	"github.com/micro-ha/kiosk-lock/internal/clock"
	"github.com/micro-ha/kiosk-lock/internal/model"
)

// Countdown runs the grace period. While active it publishes
// GracePeriod{n} once per tick from the configured length down to zero, then
// publishes Locked(NETWORK_FAILURE) and calls the expiry callback.
//
// All lock state publication goes through Publish so a state applied together
// with a cancel can never be overwritten by a tick that was already due.
type Countdown struct {
	clock   clock.Clock
	tick    time.Duration
	seconds int
	publish func(model.LockState)

	mu     sync.Mutex
	active bool
	gen    uint64
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewCountdown(clk clock.Clock, tunables model.Tunables, publish func(model.LockState)) *Countdown {
	tunables = tunables.Normalize()
	if clk == nil {
		clk = clock.Real()
	}
	return &Countdown{
		clock:   clk,
		tick:    tunables.GraceTick,
		seconds: tunables.GraceSeconds(),
		publish: publish,
		stop:    make(chan struct{}),
	}
}

// Seconds is the countdown length in ticks.
func (c *Countdown) Seconds() int { return c.seconds }

func (c *Countdown) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Start begins a countdown unless one is already active. onExpired runs on the
// countdown goroutine after the lock has been published.
func (c *Countdown) Start(shopName, stationName string, onExpired func(durationSeconds int)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return false
	}
	c.active = true
	c.gen++
	gen := c.gen
	stop := c.stop

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(gen, stop, shopName, stationName, onExpired)
	}()
	return true
}

// Publish applies state. When cancel is set the active flag is cleared in the
// same critical section; a running countdown notices at its next tick and
// exits without publishing.
func (c *Countdown) Publish(state model.LockState, cancel bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel {
		c.active = false
	}
	c.publish(state)
}

// Stop cancels any countdown and waits for its goroutine to exit. The
// Countdown can be started again afterwards.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.active = false
	stop := c.stop
	c.stop = make(chan struct{})
	close(stop)
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Countdown) run(gen uint64, stop <-chan struct{}, shopName, stationName string, onExpired func(int)) {
	for remaining := c.seconds; remaining >= 0; remaining-- {
		if !c.emit(gen, model.GracePeriod(remaining, shopName, stationName), false) {
			return
		}
		if remaining == 0 {
			break
		}
		select {
		case <-stop:
			return
		case <-c.clock.After(c.tick):
		}
	}

	if !c.emit(gen, model.Locked(model.ReasonNetworkFailure, shopName, stationName), true) {
		return
	}
	if onExpired != nil {
		onExpired(c.seconds)
	}
}

// emit publishes state if this run is still the active one. finish clears
// the active flag in the same step.
func (c *Countdown) emit(gen uint64, state model.LockState, finish bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.gen != gen {
		return false
	}
	if finish {
		c.active = false
	}
	c.publish(state)
	return true
}

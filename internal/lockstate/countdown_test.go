package lockstate

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/micro-ha/kiosk-lock/internal/clock"
	"github.com/micro-ha/kiosk-lock/internal/model"
)

func shortGrace() model.Tunables {
	tun := model.DefaultTunables()
	tun.GracePeriod = 3 * time.Second
	tun.GraceTick = time.Second
	return tun
}

func newTestCountdown(t *testing.T) (*Countdown, *clock.FakeClock, chan model.LockState) {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	published := make(chan model.LockState, 64)
	cd := NewCountdown(clk, shortGrace(), func(s model.LockState) { published <- s })
	t.Cleanup(cd.Stop)
	return cd, clk, published
}

func next(t *testing.T, ch <-chan model.LockState) model.LockState {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for published state")
		return model.LockState{}
	}
}

func TestCountdownExpires(t *testing.T) {
	cd, clk, published := newTestCountdown(t)
	var expired atomic.Int32
	var duration atomic.Int32
	done := make(chan struct{})

	if !cd.Start("Arcade", "Bay 4", func(secs int) {
		expired.Add(1)
		duration.Store(int32(secs))
		close(done)
	}) {
		t.Fatalf("Start() = false, want true")
	}

	for want := 3; want >= 0; want-- {
		got := next(t, published)
		if got != model.GracePeriod(want, "Arcade", "Bay 4") {
			t.Fatalf("published %+v, want GracePeriod(%d)", got, want)
		}
		if want > 0 {
			clk.WaitForTimers(1)
			clk.Advance(time.Second)
		}
	}
	if got := next(t, published); got != model.Locked(model.ReasonNetworkFailure, "Arcade", "Bay 4") {
		t.Fatalf("final state = %+v, want Locked(NETWORK_FAILURE)", got)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expiry callback not called")
	}
	if expired.Load() != 1 || duration.Load() != 3 {
		t.Fatalf("expired %d times with %d seconds, want once with 3", expired.Load(), duration.Load())
	}
	if cd.Active() {
		t.Fatalf("Active() = true after expiry")
	}
}

func TestCountdownAbortsOnRecovery(t *testing.T) {
	cd, clk, published := newTestCountdown(t)
	var expired atomic.Int32

	cd.Start("Arcade", "Bay 4", func(int) { expired.Add(1) })
	if got := next(t, published); got.Kind != model.LockGracePeriod {
		t.Fatalf("first state = %+v", got)
	}
	clk.WaitForTimers(1)
	clk.Advance(time.Second)
	if got := next(t, published); got.SecondsRemaining != 2 {
		t.Fatalf("second state = %+v", got)
	}

	clk.WaitForTimers(1)
	cd.Publish(model.Unlocked("Arcade", "Bay 4"), true)
	if got := next(t, published); got.Kind != model.LockUnlocked {
		t.Fatalf("recovered state = %+v", got)
	}

	for i := 0; i < 3; i++ {
		clk.Advance(time.Second)
	}
	cd.Stop()

	select {
	case s := <-published:
		t.Fatalf("countdown published %+v after recovery", s)
	default:
	}
	if expired.Load() != 0 {
		t.Fatalf("expiry callback ran after recovery")
	}
}

func TestCountdownStartWhileActiveIsNoop(t *testing.T) {
	cd, _, published := newTestCountdown(t)
	if !cd.Start("", "", nil) {
		t.Fatalf("first Start() = false")
	}
	next(t, published)
	if cd.Start("", "", nil) {
		t.Fatalf("second Start() = true, want false while active")
	}
}

func TestCountdownStopInterruptsWait(t *testing.T) {
	cd, clk, published := newTestCountdown(t)
	cd.Start("", "", nil)
	next(t, published)
	clk.WaitForTimers(1)

	stopped := make(chan struct{})
	go func() {
		cd.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop() did not return")
	}
	if cd.Active() {
		t.Fatalf("Active() = true after Stop")
	}
	if !cd.Start("", "", nil) {
		t.Fatalf("Start() after Stop = false")
	}
}

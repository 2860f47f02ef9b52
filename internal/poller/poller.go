// Package poller runs the status reconciliation loop: it polls the authority,
// feeds each outcome through lockstate.Reconcile and applies the result.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-ha/kiosk-lock/internal/auditqueue"
	"github.com/micro-ha/kiosk-lock/internal/clock"
	"github.com/micro-ha/kiosk-lock/internal/gateway"
	"github.com/micro-ha/kiosk-lock/internal/lockstate"
	"github.com/micro-ha/kiosk-lock/internal/model"
	"github.com/micro-ha/kiosk-lock/internal/watch"
)

type Identity interface {
	Current() model.DeviceRecord
	UpdateNames(ctx context.Context, shopName, stationName string) error
	Clear(ctx context.Context) error
}

type StatusSource interface {
	GetStatus(ctx context.Context, token string, stationID int64) gateway.StatusResult
}

type Auditor interface {
	Enqueue(ctx context.Context, event model.AuditEvent) (int64, error)
	Flush(ctx context.Context) (auditqueue.FlushResult, error)
}

// Cycle describes one completed poll.
type Cycle struct {
	Classification model.Classification `json:"classification"`
	State          model.LockState      `json:"state"`
	Next           time.Duration        `json:"next"`
}

type Poller struct {
	identity  Identity
	status    StatusSource
	audit     Auditor
	clock     clock.Clock
	tunables  model.Tunables
	logger    *slog.Logger
	state     *watch.Value[model.LockState]
	countdown *lockstate.Countdown
	refreshCh chan struct{}

	// mu serializes cycles with the grace expiry callback.
	mu       sync.Mutex
	counters lockstate.Counters

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	booted bool
}

func New(identity Identity, status StatusSource, audit Auditor, clk clock.Clock, tunables model.Tunables, logger *slog.Logger) *Poller {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		identity:  identity,
		status:    status,
		audit:     audit,
		clock:     clk,
		tunables:  tunables.Normalize(),
		logger:    logger.With("component", "poller"),
		state:     watch.NewValue(model.Unpaired()),
		refreshCh: make(chan struct{}, 1),
	}
	p.countdown = lockstate.NewCountdown(clk, p.tunables, p.publish)
	return p
}

// State returns the current lock state.
func (p *Poller) State() model.LockState {
	return p.state.Load()
}

// States streams the current lock state followed by every change.
func (p *Poller) States() *watch.Subscription[model.LockState] {
	return p.state.Subscribe()
}

func (p *Poller) TriggerRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Start launches the polling loop. It returns false and does nothing when a
// loop is already running.
func (p *Poller) Start(ctx context.Context) bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.runningLocked() {
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	if !p.booted {
		p.booted = true
		p.boot(loopCtx)
	}

	go p.run(loopCtx, done)
	p.logger.Info("poller started")
	return true
}

// Stop cancels the loop and any grace countdown and waits for both to exit.
// It reports whether a loop was running.
func (p *Poller) Stop() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	wasRunning := p.runningLocked()
	if p.cancel != nil {
		p.cancel()
		<-p.done
		p.cancel = nil
		p.done = nil
	}
	p.countdown.Stop()
	if wasRunning {
		p.logger.Info("poller stopped")
	}
	return wasRunning
}

func (p *Poller) IsRunning() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.runningLocked()
}

func (p *Poller) runningLocked() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		cycle, err := p.PollOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Error("poll failed", "err", err)
		}
		interval := cycle.Next
		if interval <= 0 {
			interval = p.tunables.PollInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-p.refreshCh:
		case <-p.clock.After(interval):
		}
	}
}

// boot publishes the fail-safe restart lock for a paired device and records
// APP_STARTED.
func (p *Poller) boot(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := p.identity.Current()
	if !rec.IsPaired {
		return
	}
	p.countdown.Publish(model.Locked(model.ReasonAppRestart, rec.ShopName, rec.StationName), false)
	if err := p.enqueue(ctx, rec, &lockstate.Audit{
		Type:     model.EventAppStarted,
		Metadata: model.AppRestartedMetadata{Boot: true},
	}); err != nil {
		p.logger.Error("record app start failed", "err", err)
	}
}

// PollOnce runs a single reconciliation cycle. The returned error carries
// local persistence failures only; remote failures are part of the cycle's
// classification.
func (p *Poller) PollOnce(ctx context.Context) (Cycle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := p.identity.Current()
	if !rec.IsPaired {
		d := lockstate.Reconcile(lockstate.Input{
			Current:     p.state.Load(),
			GraceActive: p.countdown.Active(),
			Tunables:    p.tunables,
		})
		p.counters = d.Counters
		if d.Changed || d.CancelGrace {
			p.countdown.Publish(d.State, d.CancelGrace)
		}
		return Cycle{State: d.State, Next: p.tunables.UnpairedPollInterval}, nil
	}

	res := p.status.GetStatus(ctx, rec.Token, rec.StationID)
	if err := ctx.Err(); err != nil {
		return Cycle{State: p.state.Load()}, err
	}

	var errs []error
	shopName, stationName := rec.ShopName, rec.StationName
	if res.Classification.IsAnswer() && (res.ShopName != "" || res.StationName != "") {
		if res.ShopName != "" {
			shopName = res.ShopName
		}
		if res.StationName != "" {
			stationName = res.StationName
		}
		if shopName != rec.ShopName || stationName != rec.StationName {
			if err := p.identity.UpdateNames(ctx, shopName, stationName); err != nil {
				errs = append(errs, fmt.Errorf("update names: %w", err))
			}
		}
	}

	d := lockstate.Reconcile(lockstate.Input{
		Current:        p.state.Load(),
		Classification: res.Classification,
		Counters:       p.counters,
		GraceActive:    p.countdown.Active(),
		Paired:         true,
		ShopName:       shopName,
		StationName:    stationName,
		Tunables:       p.tunables,
	})
	p.counters = d.Counters

	switch {
	case d.StartGrace:
		p.countdown.Start(shopName, stationName, p.onGraceExpired)
	case d.Changed || d.CancelGrace:
		p.countdown.Publish(d.State, d.CancelGrace)
	}
	if d.Changed {
		p.logger.Info("lock state changed",
			"kind", d.State.Kind,
			"reason", d.State.Reason,
			"classification", res.Classification.Kind,
		)
	}

	if d.Audit != nil {
		rec.ShopName, rec.StationName = shopName, stationName
		if err := p.enqueue(ctx, rec, d.Audit); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Unpair {
		p.logger.Warn("token rejected by authority, unpairing")
		if err := p.identity.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unpair: %w", err))
		}
	}
	if d.Flush {
		if _, err := p.audit.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush audit: %w", err))
		}
	}

	next := p.tunables.PollInterval
	switch {
	case d.Backoff > 0:
		next = d.Backoff
	case d.Unpair:
		next = p.tunables.UnpairedPollInterval
	}
	return Cycle{Classification: res.Classification, State: d.State, Next: next}, errors.Join(errs...)
}

func (p *Poller) onGraceExpired(durationSeconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s := p.state.Load(); s.IsLocked() && s.Reason == model.ReasonNetworkFailure {
		p.counters.LastKnownStatus = ""
	}
	p.logger.Warn("grace period expired, locking", "duration_seconds", durationSeconds)

	rec := p.identity.Current()
	if !rec.IsPaired {
		return
	}
	if err := p.enqueue(context.Background(), rec, &lockstate.Audit{
		Type:     model.EventGracePeriodExpired,
		Metadata: model.GracePeriodExpiredMetadata{DurationSeconds: durationSeconds},
	}); err != nil {
		p.logger.Error("record grace expiry failed", "err", err)
	}
}

func (p *Poller) enqueue(ctx context.Context, rec model.DeviceRecord, audit *lockstate.Audit) error {
	var stationID *int64
	if rec.StationID != 0 {
		id := rec.StationID
		stationID = &id
	}
	_, err := p.audit.Enqueue(ctx, model.AuditEvent{
		Type:      audit.Type,
		StationID: stationID,
		DeviceID:  rec.DeviceID,
		Timestamp: p.clock.Now(),
		Metadata:  audit.Metadata,
	})
	return err
}

func (p *Poller) publish(state model.LockState) {
	p.state.Set(state)
}

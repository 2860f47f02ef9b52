// Package lockstate decides the terminal's lock state from poll outcomes.
// Reconcile is pure; Countdown runs the grace period that defers a lock after
// transient failures.
package lockstate

import (
	"time"

	"github.com/micro-ha/kiosk-lock/internal/model"
)

// Counters carries failure tracking between cycles. LastKnownStatus is empty
// until the authority has answered at least once.
type Counters struct {
	ConsecutiveFailures int
	LastKnownStatus     model.ClassificationKind
}

type Input struct {
	Current        model.LockState
	Classification model.Classification
	Counters       Counters
	GraceActive    bool
	Paired         bool
	ShopName       string
	StationName    string
	Tunables       model.Tunables
}

// Audit is an event the caller should enqueue.
type Audit struct {
	Type     model.AuditEventType
	Metadata model.AuditMetadata
}

type Decision struct {
	State    model.LockState
	Changed  bool
	Audit    *Audit
	Counters Counters

	Unpair      bool
	Backoff     time.Duration
	StartGrace  bool
	CancelGrace bool
	Flush       bool
}

// Reconcile maps one classification onto the next state and its side
// effects.
func Reconcile(in Input) Decision {
	tun := in.Tunables.Normalize()
	c := in.Classification

	if !in.Paired {
		return settle(in, model.Unpaired(), Counters{}, nil)
	}

	switch c.Kind {
	case model.StatusTokenInvalid:
		d := settle(in, model.Unpaired(), Counters{LastKnownStatus: c.Kind}, nil)
		d.Unpair = true
		d.Flush = true
		return d

	case model.StatusFeatureDisabled:
		d := settle(in, model.Locked(model.ReasonFeatureDisabled, in.ShopName, in.StationName), Counters{LastKnownStatus: c.Kind}, nil)
		d.Flush = true
		return d

	case model.StatusRateLimited:
		d := settle(in, model.Locked(model.ReasonRateLimited, in.ShopName, in.StationName), Counters{LastKnownStatus: c.Kind}, nil)
		secs := c.RetryAfterSeconds
		if secs <= 0 {
			secs = int(tun.DefaultRetryAfter / time.Second)
		}
		d.Backoff = time.Duration(secs) * time.Second
		d.Flush = true
		return d

	case model.StatusRunning:
		next := model.Unlocked(in.ShopName, in.StationName)
		var audit *Audit
		if in.Current.Kind == model.LockLocked {
			audit = &Audit{
				Type:     model.EventTVUnlocked,
				Metadata: model.GenericMetadata{Info: map[string]string{"status": string(model.StatusRunning)}},
			}
		}
		d := settle(in, next, Counters{LastKnownStatus: c.Kind}, audit)
		d.Flush = true
		return d

	case model.StatusStopped, model.StatusPaused, model.StatusNotStarted:
		d := settle(in, model.Locked(sessionReason(c.Kind), in.ShopName, in.StationName), Counters{LastKnownStatus: c.Kind}, nil)
		d.Flush = true
		return d

	default:
		return unknown(in, tun)
	}
}

func unknown(in Input, tun model.Tunables) Decision {
	counters := in.Counters
	counters.ConsecutiveFailures++

	d := Decision{State: in.Current, Counters: counters}
	if counters.ConsecutiveFailures < tun.FailureThreshold {
		return d
	}

	// Grace is offered once per streak, on the failure that reaches the
	// threshold. Past it with no countdown running the grace period has
	// already expired.
	pastGrace := counters.ConsecutiveFailures > tun.FailureThreshold && !in.GraceActive
	if counters.LastKnownStatus != model.StatusRunning || pastGrace {
		locked := settle(in, model.Locked(model.ReasonNetworkFailure, in.ShopName, in.StationName), counters, nil)
		locked.Flush = true
		return locked
	}
	d.Flush = true
	if in.GraceActive {
		return d
	}

	d.StartGrace = true
	d.State = model.GracePeriod(tun.GraceSeconds(), in.ShopName, in.StationName)
	d.Changed = d.State != in.Current
	d.Audit = &Audit{
		Type:     model.EventGracePeriodStarted,
		Metadata: model.NetworkLostMetadata{RetryCount: counters.ConsecutiveFailures},
	}
	return d
}

// settle builds a decision that moves to next and ends any grace period. A
// lock entered from Unlocked is reported as TV_LOCKED unless audit is already
// set.
func settle(in Input, next model.LockState, counters Counters, audit *Audit) Decision {
	d := Decision{
		State:       next,
		Counters:    counters,
		CancelGrace: in.GraceActive,
	}
	if next == in.Current {
		return d
	}
	d.Changed = true
	if audit == nil && next.Kind == model.LockLocked && in.Current.Kind == model.LockUnlocked {
		audit = &Audit{
			Type:     model.EventTVLocked,
			Metadata: model.ManualLockMetadata{Reason: string(next.Reason)},
		}
	}
	d.Audit = audit
	return d
}

func sessionReason(kind model.ClassificationKind) model.LockReason {
	switch kind {
	case model.StatusStopped:
		return model.ReasonSessionStopped
	case model.StatusPaused:
		return model.ReasonSessionPaused
	case model.StatusNotStarted:
		return model.ReasonSessionNotStarted
	default:
		return model.ReasonSessionNotActive
	}
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/micro-ha/kiosk-lock/internal/model"
	"github.com/micro-ha/kiosk-lock/internal/watch"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StateView is the lock state as served to the shell.
type StateView struct {
	State         model.LockState `json:"state"`
	DisplayReason string          `json:"display_reason,omitempty"`
	Paired        bool            `json:"paired"`
	PollerRunning bool            `json:"poller_running"`
}

func (a *API) stateView(state model.LockState) StateView {
	view := StateView{
		State:         state,
		Paired:        a.identity.Current().IsPaired,
		PollerRunning: a.poller.IsRunning(),
	}
	if state.Kind == model.LockLocked {
		view.DisplayReason = state.Reason.DisplayText()
	}
	return view
}

// GetState returns the current lock state.
func (a *API) GetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.stateView(a.poller.State()))
}

// StreamState upgrades to a websocket and pushes the current state followed
// by every change.
func (a *API) StreamState(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("state stream upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(2 * streamPingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * streamPingInterval))
	})

	// The reader only detects the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sub := a.poller.States()
	defer sub.Close()

	states := make(chan model.LockState)
	go pump(ctx, sub, states)

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(a.stateView(state)); err != nil {
				a.logger.Debug("state stream write failed", "err", err)
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(streamWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func pump(ctx context.Context, sub *watch.Subscription[model.LockState], out chan<- model.LockState) {
	defer close(out)
	for {
		state, err := sub.Next(ctx)
		if err != nil {
			return
		}
		select {
		case out <- state:
		case <-ctx.Done():
			return
		}
	}
}

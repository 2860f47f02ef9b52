package client

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	watchInitialBackoff = time.Second
	watchMaxBackoff     = 20 * time.Second
	watchReadTimeout    = 120 * time.Second
)

// Watcher follows the daemon's state stream and reconnects with exponential
// backoff until its context ends.
type Watcher struct {
	baseURL string
	logger  *slog.Logger
}

func NewWatcher(c *Client, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{baseURL: c.baseURL, logger: logger}
}

func (w *Watcher) Run(ctx context.Context, onState func(State)) {
	backoff := watchInitialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		received, err := w.runSession(ctx, onState)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("state stream disconnected", "err", err)
		}
		if received {
			backoff = watchInitialBackoff
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < watchMaxBackoff {
			backoff *= 2
		}
	}
}

// runSession reads one connection to completion. It reports whether any
// state arrived so the caller can reset its backoff.
func (w *Watcher) runSession(ctx context.Context, onState func(State)) (bool, error) {
	wsURL, err := toWebsocketURL(w.baseURL + "/api/state/stream")
	if err != nil {
		return false, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	conn.SetPingHandler(func(data string) error {
		if err := conn.SetReadDeadline(time.Now().Add(watchReadTimeout)); err != nil {
			return err
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	received := false
	for {
		if err := conn.SetReadDeadline(time.Now().Add(watchReadTimeout)); err != nil {
			return received, err
		}
		var state State
		if err := conn.ReadJSON(&state); err != nil {
			return received, err
		}
		received = true
		onState(state)
	}
}

func toWebsocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

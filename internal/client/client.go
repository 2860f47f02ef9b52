// Package client talks to a running kioskd over its local HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/micro-ha/kiosk-lock/internal/auditqueue"
	"github.com/micro-ha/kiosk-lock/internal/model"
)

// DefaultAddr is where kioskd listens unless configured otherwise.
const DefaultAddr = "http://127.0.0.1:8099"

// State mirrors the daemon's state view.
type State struct {
	State         model.LockState `json:"state"`
	DisplayReason string          `json:"display_reason,omitempty"`
	Paired        bool            `json:"paired"`
	PollerRunning bool            `json:"poller_running"`
}

// APIError is an error envelope returned by the daemon.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("kioskd status %d", e.StatusCode)
	}
	return fmt.Sprintf("kioskd %s: %s", e.Code, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultAddr
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) State(ctx context.Context) (State, error) {
	var out State
	err := c.do(ctx, http.MethodGet, "/api/state", nil, &out)
	return out, err
}

func (c *Client) Device(ctx context.Context) (model.DeviceRecord, error) {
	var out model.DeviceRecord
	err := c.do(ctx, http.MethodGet, "/api/device", nil, &out)
	return out, err
}

func (c *Client) Pair(ctx context.Context, stationCode string) (model.DeviceRecord, error) {
	var out model.DeviceRecord
	err := c.do(ctx, http.MethodPost, "/api/pair", map[string]string{"station_code": stationCode}, &out)
	return out, err
}

func (c *Client) Unpair(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/unpair", nil, nil)
}

func (c *Client) Refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/refresh", nil, nil)
}

func (c *Client) FlushAudit(ctx context.Context) (auditqueue.FlushResult, error) {
	var out auditqueue.FlushResult
	err := c.do(ctx, http.MethodPost, "/api/audit/flush", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

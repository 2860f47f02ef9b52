// Package gateway is the HTTP client for the billing authority. Every status
// outcome is folded into a model.Classification so transport errors never
// reach the reconciliation core.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/micro-ha/kiosk-lock/internal/model"
)

const (
	opPair   = "pair"
	opStatus = "status"
	opAudit  = "audit"

	devicesPath = "/api/tv-devices"
	userAgent   = "kiosk-lock/1"
)

type Client struct {
	baseURL           string
	deviceName        string
	auditRequiresAuth bool
	defaultRetryAfter int
	http              *http.Client
	auditLimiter      *rate.Limiter
	logger            *slog.Logger
}

func NewClient(cfg model.GatewayConfig, tunables model.Tunables, logger *slog.Logger) *Client {
	cfg = cfg.Normalize()
	tunables = tunables.Normalize()
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.AuditRatePerSecond > 0 {
		limit = rate.Limit(cfg.AuditRatePerSecond)
	}
	return &Client{
		baseURL:           cfg.NormalizedBaseURL(),
		deviceName:        strings.TrimSpace(cfg.DeviceName),
		auditRequiresAuth: cfg.AuditRequiresAuth,
		defaultRetryAfter: int(tunables.DefaultRetryAfter / time.Second),
		http:              &http.Client{Timeout: cfg.Timeout},
		auditLimiter:      rate.NewLimiter(limit, 1),
		logger:            logger.With("component", "gateway"),
	}
}

type pairRequest struct {
	StationCode string `json:"station_code"`
	DeviceID    string `json:"device_id"`
	DeviceName  string `json:"device_name,omitempty"`
}

type pairResponse struct {
	ShopID      *int64 `json:"shop_id"`
	StationID   int64  `json:"station_id"`
	DeviceID    string `json:"device_id"`
	ShopName    string `json:"shop_name"`
	StationName string `json:"station_name"`
	Token       string `json:"token"`
}

// PairResult is the credential set issued by the authority. DeviceID is empty
// when the authority did not echo one back.
type PairResult struct {
	ShopID      int64
	StationID   int64
	DeviceID    string
	ShopName    string
	StationName string
	Token       string
}

type statusResponse struct {
	StationID   *int64 `json:"station_id"`
	Status      string `json:"status"`
	ShopName    string `json:"shop_name"`
	StationName string `json:"station_name"`
}

// StatusResult is one classified status poll. Names are set only when the
// authority answered 200 and included them.
type StatusResult struct {
	Classification model.Classification
	ShopName       string
	StationName    string
}

// AuditRequest is the wire form of one audit event.
type AuditRequest struct {
	Event     model.AuditEventType `json:"event"`
	StationID *int64               `json:"station_id"`
	DeviceID  string               `json:"device_id"`
	Timestamp string               `json:"timestamp"`
	Metadata  json.RawMessage      `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Pair exchanges a station code for a permanent token. A 400 response
// satisfies errors.Is(err, ErrPairCollision).
func (c *Client) Pair(ctx context.Context, stationCode, deviceID string) (PairResult, error) {
	body, err := json.Marshal(pairRequest{
		StationCode: stationCode,
		DeviceID:    deviceID,
		DeviceName:  c.deviceName,
	})
	if err != nil {
		return PairResult{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+devicesPath+"/pair", body)
	if err != nil {
		return PairResult{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return PairResult{}, fmt.Errorf("%s: %w", opPair, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return PairResult{}, readHTTPError(opPair, resp)
	}

	var payload pairResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PairResult{}, fmt.Errorf("%s: decode response: %w", opPair, err)
	}
	if strings.TrimSpace(payload.Token) == "" {
		return PairResult{}, fmt.Errorf("%s: response has no token", opPair)
	}
	result := PairResult{
		StationID:   payload.StationID,
		DeviceID:    payload.DeviceID,
		ShopName:    payload.ShopName,
		StationName: payload.StationName,
		Token:       payload.Token,
	}
	if payload.ShopID != nil {
		result.ShopID = *payload.ShopID
	}
	return result, nil
}

// GetStatus polls the station status and classifies the outcome. It never
// returns an error: every failure is Unknown.
func (c *Client) GetStatus(ctx context.Context, token string, stationID int64) StatusResult {
	url := c.baseURL + devicesPath + "?action=status&station_id=" + strconv.FormatInt(stationID, 10)
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Warn("status request build failed", "err", err)
		return StatusResult{Classification: model.Unknown()}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("status request failed", "err", err)
		return StatusResult{Classification: model.Unknown()}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return StatusResult{Classification: model.TokenInvalid()}
	case http.StatusForbidden:
		return StatusResult{Classification: model.FeatureDisabled()}
	case http.StatusTooManyRequests:
		return StatusResult{Classification: model.RateLimited(c.parseRetryAfter(resp.Header.Get("Retry-After")))}
	default:
		c.logger.Debug("status unexpected response", "status", resp.StatusCode)
		return StatusResult{Classification: model.Unknown()}
	}

	var payload statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Debug("status decode failed", "err", err)
		return StatusResult{Classification: model.Unknown()}
	}
	return StatusResult{
		Classification: model.ParseStatus(payload.Status),
		ShopName:       payload.ShopName,
		StationName:    payload.StationName,
	}
}

// SendAudit delivers one event. Any non-2xx response is an *HTTPError.
func (c *Client) SendAudit(ctx context.Context, token string, event AuditRequest) error {
	if err := c.auditLimiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+devicesPath+"?action=audit", body)
	if err != nil {
		return err
	}
	if c.auditRequiresAuth && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", opAudit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readHTTPError(opAudit, resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// parseRetryAfter accepts only a positive integer number of seconds.
func (c *Client) parseRetryAfter(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return c.defaultRetryAfter
	}
	return n
}

func readHTTPError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	message := strings.TrimSpace(string(body))
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			message = payload.Message
		case payload.Error != "":
			message = payload.Error
		}
	}
	return &HTTPError{Op: op, StatusCode: resp.StatusCode, Message: message}
}

// Package auditqueue is the durable, ordered outbox of audit events.
package auditqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-ha/kiosk-lock/internal/clock"
	"github.com/micro-ha/kiosk-lock/internal/gateway"
	"github.com/micro-ha/kiosk-lock/internal/model"
)

const deleteTimeout = 5 * time.Second

type Store interface {
	InsertAuditEntry(ctx context.Context, entry model.AuditEntry) (int64, error)
	ListAuditEntries(ctx context.Context, limit int) ([]model.AuditEntry, error)
	DeleteAuditEntries(ctx context.Context, sequences []int64) error
	CountAuditEntries(ctx context.Context) (int, error)
}

type Sender interface {
	SendAudit(ctx context.Context, token string, event gateway.AuditRequest) error
}

// TokenSource yields the pairing token, or false when the device has none.
type TokenSource interface {
	Token() (string, bool)
}

// FlushResult summarizes one flush pass.
type FlushResult struct {
	Sent      int `json:"sent"`
	Remaining int `json:"remaining"`
}

type Queue struct {
	store  Store
	sender Sender
	tokens TokenSource
	clock  clock.Clock
	logger *slog.Logger

	flushMu sync.Mutex
}

func New(store Store, sender Sender, tokens TokenSource, clk clock.Clock, logger *slog.Logger) *Queue {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:  store,
		sender: sender,
		tokens: tokens,
		clock:  clk,
		logger: logger.With("component", "auditqueue"),
	}
}

// Enqueue persists event and returns its sequence id. The entry is durable
// when Enqueue returns.
func (q *Queue) Enqueue(ctx context.Context, event model.AuditEvent) (int64, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = q.clock.Now()
	}
	entry := model.AuditEntry{
		Type:      event.Type,
		StationID: event.StationID,
		DeviceID:  event.DeviceID,
		Timestamp: event.TimestampString(),
	}
	if event.Metadata != nil {
		raw, err := model.EncodeMetadata(event.Metadata)
		if err != nil {
			q.logger.Warn("audit metadata encode failed", "event", event.Type, "err", err)
		} else {
			s := string(raw)
			entry.MetadataJSON = &s
		}
	}
	seq, err := q.store.InsertAuditEntry(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", event.Type, err)
	}
	q.logger.Debug("audit enqueued", "event", event.Type, "sequence", seq)
	return seq, nil
}

// Flush sends pending entries oldest first and stops at the first failure.
// Delivered entries are deleted in one batch afterwards. Concurrent callers
// run one after another. Without a token Flush does nothing.
func (q *Queue) Flush(ctx context.Context) (FlushResult, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	token, ok := q.tokens.Token()
	if !ok {
		return FlushResult{}, nil
	}

	entries, err := q.store.ListAuditEntries(ctx, 0)
	if err != nil {
		return FlushResult{}, fmt.Errorf("load pending audit: %w", err)
	}
	if len(entries) == 0 {
		return FlushResult{}, nil
	}

	delivered := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if err := q.sender.SendAudit(ctx, token, q.request(entry)); err != nil {
			q.logger.Warn("audit send failed, deferring remainder",
				"sequence", entry.Sequence,
				"event", entry.Type,
				"pending", len(entries)-len(delivered),
				"err", err,
			)
			break
		}
		delivered = append(delivered, entry.Sequence)
	}

	result := FlushResult{Sent: len(delivered), Remaining: len(entries) - len(delivered)}
	// Accepted entries must go even when the caller has given up, or the next
	// flush sends them again.
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()
	if err := q.store.DeleteAuditEntries(deleteCtx, delivered); err != nil {
		return result, fmt.Errorf("delete delivered audit: %w", err)
	}
	if result.Sent > 0 {
		q.logger.Info("audit flushed", "sent", result.Sent, "remaining", result.Remaining)
	}
	return result, nil
}

// Record enqueues event and then attempts delivery. Delivery problems are
// logged; only the enqueue error is returned.
func (q *Queue) Record(ctx context.Context, event model.AuditEvent) error {
	if _, err := q.Enqueue(ctx, event); err != nil {
		return err
	}
	if _, err := q.Flush(ctx); err != nil {
		q.logger.Error("audit flush failed", "err", err)
	}
	return nil
}

// Pending lists undelivered entries in sequence order.
func (q *Queue) Pending(ctx context.Context) ([]model.AuditEntry, error) {
	return q.store.ListAuditEntries(ctx, 0)
}

func (q *Queue) Count(ctx context.Context) (int, error) {
	return q.store.CountAuditEntries(ctx)
}

func (q *Queue) request(entry model.AuditEntry) gateway.AuditRequest {
	req := gateway.AuditRequest{
		Event:     entry.Type,
		StationID: entry.StationID,
		DeviceID:  entry.DeviceID,
		Timestamp: entry.Timestamp,
	}
	if entry.MetadataJSON == nil {
		return req
	}
	meta, err := model.DecodeMetadata([]byte(*entry.MetadataJSON))
	if err != nil {
		q.logger.Warn("dropping malformed audit metadata", "sequence", entry.Sequence, "err", err)
		return req
	}
	raw, err := model.EncodeMetadata(meta)
	if err != nil {
		q.logger.Warn("dropping malformed audit metadata", "sequence", entry.Sequence, "err", err)
		return req
	}
	req.Metadata = json.RawMessage(raw)
	return req
}

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/micro-ha/kiosk-lock/internal/auditqueue"
	"github.com/micro-ha/kiosk-lock/internal/model"
	"github.com/micro-ha/kiosk-lock/internal/watch"
)

// Poller controls and observes the reconciliation loop.
type Poller interface {
	State() model.LockState
	States() *watch.Subscription[model.LockState]
	Start(ctx context.Context) bool
	Stop() bool
	IsRunning() bool
	TriggerRefresh()
}

// Identity exposes the stored device record.
type Identity interface {
	Current() model.DeviceRecord
}

// Pairing binds or releases the device.
type Pairing interface {
	Pair(ctx context.Context, stationCode string) (model.DeviceRecord, error)
	Unpair(ctx context.Context) error
}

// AuditQueue exposes the pending outbox.
type AuditQueue interface {
	Pending(ctx context.Context) ([]model.AuditEntry, error)
	Flush(ctx context.Context) (auditqueue.FlushResult, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups the components served by the API. BaseContext bounds work that
// must outlive a single request, such as the polling loop.
type Deps struct {
	BaseContext context.Context
	Poller      Poller
	Identity    Identity
	Pairing     Pairing
	Audit       AuditQueue
	Storage     Pinger
	Logger      *slog.Logger
}

// API groups HTTP handlers and dependencies.
type API struct {
	baseCtx  context.Context
	poller   Poller
	identity Identity
	pairing  Pairing
	audit    AuditQueue
	storage  Pinger
	logger   *slog.Logger
}

// New creates HTTP handlers with explicit dependencies.
func New(deps Deps) *API {
	baseCtx := deps.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		baseCtx:  baseCtx,
		poller:   deps.Poller,
		identity: deps.Identity,
		pairing:  deps.Pairing,
		audit:    deps.Audit,
		storage:  deps.Storage,
		logger:   logger.With("component", "http"),
	}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports liveness, storage reachability and pairing status.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if a.storage != nil {
		if err := a.storage.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"paired":         a.identity.Current().IsPaired,
		"poller_running": a.poller.IsRunning(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

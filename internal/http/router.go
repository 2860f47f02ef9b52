package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/micro-ha/kiosk-lock/internal/http/handlers"
)

// NewRouter builds the local control API.
func NewRouter(api *handlers.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(RequestLogger(api))

	// Streams outlive the request timeout.
	r.Get("/api/state/stream", api.StreamState)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(20 * time.Second))

		r.Get("/healthz", api.Health)
		r.Route("/api", func(apiRouter chi.Router) {
			apiRouter.Get("/state", api.GetState)
			apiRouter.Get("/device", api.GetDevice)
			apiRouter.Post("/pair", api.Pair)
			apiRouter.Post("/unpair", api.Unpair)

			apiRouter.Post("/poller/start", api.StartPoller)
			apiRouter.Post("/poller/stop", api.StopPoller)
			apiRouter.Post("/refresh", api.Refresh)

			apiRouter.Get("/audit/pending", api.ListPendingAudit)
			apiRouter.Post("/audit/flush", api.FlushAudit)
		})
	})
	return r
}

// RunServer starts and gracefully stops HTTP server with context cancellation.
func RunServer(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

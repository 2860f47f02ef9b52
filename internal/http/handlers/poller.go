package handlers

import "net/http"

// StartPoller starts the loop if it is not already running.
func (a *API) StartPoller(w http.ResponseWriter, _ *http.Request) {
	started := a.poller.Start(a.baseCtx)
	writeJSON(w, http.StatusOK, map[string]any{"started": started, "running": a.poller.IsRunning()})
}

// StopPoller stops the loop and any grace countdown.
func (a *API) StopPoller(w http.ResponseWriter, _ *http.Request) {
	stopped := a.poller.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped, "running": a.poller.IsRunning()})
}

// Refresh triggers immediate poll cycle asynchronously.
func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	a.poller.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

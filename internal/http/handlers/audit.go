package handlers

import "net/http"

// ListPendingAudit returns undelivered audit entries oldest first.
func (a *API) ListPendingAudit(w http.ResponseWriter, r *http.Request) {
	items, err := a.audit.Pending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// FlushAudit runs one flush pass and reports what was delivered.
func (a *API) FlushAudit(w http.ResponseWriter, r *http.Request) {
	result, err := a.audit.Flush(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "flush_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/micro-ha/kiosk-lock/internal/gateway"
	"github.com/micro-ha/kiosk-lock/internal/pairing"
)

type pairRequest struct {
	StationCode string `json:"station_code"`
}

// GetDevice returns the device record with the token redacted.
func (a *API) GetDevice(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.identity.Current().Redacted())
}

// Pair binds the device to the station identified by the posted code.
func (a *API) Pair(w http.ResponseWriter, r *http.Request) {
	var payload pairRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	record, err := a.pairing.Pair(r.Context(), payload.StationCode)
	if err != nil {
		var httpErr *gateway.HTTPError
		switch {
		case errors.Is(err, pairing.ErrEmptyStationCode):
			writeError(w, http.StatusBadRequest, "station_code_required", err.Error())
		case errors.Is(err, gateway.ErrPairCollision):
			writeError(w, http.StatusConflict, "device_id_collision", err.Error())
		case errors.As(err, &httpErr):
			writeError(w, http.StatusBadGateway, "pair_rejected", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "pair_failed", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, record.Redacted())
}

// Unpair clears the pairing on operator request.
func (a *API) Unpair(w http.ResponseWriter, r *http.Request) {
	if err := a.pairing.Unpair(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "unpair_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

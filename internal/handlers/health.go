package handlers

import (
	"crypto/subtle"
	"net/http"
)

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.ok(w, "OK", map[string]interface{}{"status": "ok"})
}

// SweepLocationShares deletes expired shares on demand. It is disabled
// unless a sweep token is configured, and requires it in X-Sweep-Token.
func (h *Handler) SweepLocationShares(w http.ResponseWriter, r *http.Request) {
	if h.sweepToken == "" || h.sweeper == nil {
		h.writeJSON(w, http.StatusNotFound, Response{Success: false, Error: "Not found"})
		return
	}
	given := r.Header.Get("X-Sweep-Token")
	if subtle.ConstantTimeCompare([]byte(given), []byte(h.sweepToken)) != 1 {
		h.writeJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Invalid sweep token"})
		return
	}

	deleted, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Expired location shares removed", map[string]interface{}{"deleted": deleted})
}

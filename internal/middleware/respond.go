package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// writeError writes the same failure envelope the handlers use. The
// handlers package depends on this one, so the envelope is repeated here.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   false,
		"error":     msg,
		"timestamp": time.Now().UTC(),
	})
}

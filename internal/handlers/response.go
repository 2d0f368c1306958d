package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/apperrors"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/middleware"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/services"
)

const maxBodyBytes = 1 << 20

// Response is the envelope of every JSON response.
type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, resp Response) {
	resp.Timestamp = h.now().UTC()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.WithError(err).Warn("failed to encode response")
	}
}

func (h *Handler) ok(w http.ResponseWriter, message string, data interface{}) {
	h.writeJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// fail translates err into its status and public message. Upstream
// failures are logged with their cause and reported generically.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.From(err)
	if appErr.Kind == apperrors.KindUpstream {
		h.log.WithFields(logrus.Fields{
			"request_id": chimw.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).WithError(appErr).Error("request failed")
	}
	h.writeJSON(w, appErr.Status, Response{Success: false, Error: apperrors.PublicMessage(appErr)})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.Validation("Request body is required")
		}
		return apperrors.Validation("Invalid request body")
	}
	return nil
}

// caller returns the identity placed in the context by middleware.Auth.
func caller(r *http.Request) (services.Identity, error) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok || id.UID == "" {
		return services.Identity{}, apperrors.Unauthenticated("Authentication required")
	}
	return id, nil
}

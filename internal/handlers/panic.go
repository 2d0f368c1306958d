package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/apperrors"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
)

const (
	defaultPanicHours = 24
	maxPanicHours     = 168
)

// PanicRequest represents the body of POST /api/panic.
type PanicRequest struct {
	Message   string   `json:"message"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Panic records an SOS alert and notifies the caller's trusted contacts.
// The alert stands even when no notification is delivered.
func (h *Handler) Panic(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req PanicRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	location, err := optionalPoint(req.Latitude, req.Longitude)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	user, err := h.loadUser(ctx, id.UID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(user.TrustedContacts) == 0 {
		h.fail(w, r, apperrors.Validation("Add at least one trusted contact before sending a panic alert"))
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = models.DefaultPanicMessage
	}
	alert := &models.PanicAlert{UserID: user.ID, Message: message, Location: location}
	if err := h.store.CreatePanicAlert(ctx, alert); err != nil {
		h.fail(w, r, apperrors.Upstream("create panic alert", err))
		return
	}
	h.log.WithField("panic", alert.ID).WithField("uid", user.ID).Warn("panic alert raised")

	notified := false
	contacts, err := h.store.ListUsersByEmails(ctx, user.TrustedContacts)
	if err != nil {
		h.log.WithError(err).WithField("panic", alert.ID).Error("could not resolve trusted contacts")
	} else {
		notified = h.notifier.NotifyPanic(ctx, alert, user, contacts)
	}

	h.ok(w, "Panic alert sent", map[string]interface{}{
		"panicId":  alert.ID,
		"notified": notified,
	})
}

// RecentPanics lists the caller's own alerts from the last hours (default 24).
func (h *Handler) RecentPanics(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	hours := defaultPanicHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		hours, err = strconv.Atoi(raw)
		if err != nil || hours < 1 || hours > maxPanicHours {
			h.fail(w, r, apperrors.Validation("hours must be between 1 and %d", maxPanicHours))
			return
		}
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	alerts, err := h.store.ListRecentPanicAlerts(ctx, id.UID, hours)
	if err != nil {
		h.fail(w, r, apperrors.Upstream("list panic alerts", err))
		return
	}
	h.ok(w, "", map[string]interface{}{"alerts": alerts, "count": len(alerts), "hours": hours})
}

package handlers

import (
	"net/http"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/apperrors"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/validation"
	"github.com/AnshRaj112/neighbourwatch-backend/pkg/geo"
)

// ShareLocationRequest defaults Contacts to the caller's trusted contacts
// and Duration to their locationSharingDuration setting.
type ShareLocationRequest struct {
	Contacts  *[]string `json:"contacts"`
	Duration  *int      `json:"duration"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
}

// ShareLocation starts a time-limited location share and notifies its contacts.
func (h *Handler) ShareLocation(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req ShareLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		h.fail(w, r, apperrors.Validation("latitude and longitude are required"))
		return
	}
	point, err := optionalPoint(req.Latitude, req.Longitude)
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

	rawContacts := user.TrustedContacts
	if req.Contacts != nil {
		rawContacts = *req.Contacts
	}
	if len(rawContacts) == 0 {
		h.fail(w, r, apperrors.Validation("At least one contact is required"))
		return
	}
	contacts, err := validation.NormalizeEmails(rawContacts)
	if err != nil {
		h.fail(w, r, apperrors.Validation("Invalid contact email"))
		return
	}

	duration := user.LocationSharingDuration
	if req.Duration != nil {
		duration = *req.Duration
	}
	if !validation.IsValidDuration(duration) {
		h.fail(w, r, apperrors.Validation("Duration must be between %d and %d minutes",
			validation.MinShareDuration, validation.MaxShareDuration))
		return
	}

	share := &models.LocationShare{
		UserID:   user.ID,
		Contacts: contacts,
		Duration: duration,
		Location: geo.Point{Latitude: point.Latitude, Longitude: point.Longitude},
	}
	if err := h.store.CreateLocationShare(ctx, share); err != nil {
		h.fail(w, r, apperrors.Upstream("create location share", err))
		return
	}

	recipients, err := h.store.ListUsersByEmails(ctx, contacts)
	if err != nil {
		h.log.WithError(err).WithField("share", share.ID).Warn("could not resolve share contacts")
	} else {
		h.notifier.NotifyLocationShare(ctx, share, user, recipients)
	}

	h.ok(w, "Location shared successfully", map[string]interface{}{
		"shareId":   share.ID,
		"duration":  share.Duration,
		"expiresAt": share.ExpiresAt,
	})
}

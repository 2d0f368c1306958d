package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/apperrors"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/services"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/validation"
)

// RegisterRequest represents the body of POST /api/users/register.
type RegisterRequest struct {
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	Suburb          string   `json:"suburb"`
	TrustedContacts []string `json:"trustedContacts"`
}

// LoginRequest represents the body of POST /api/users/login.
type LoginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DeviceToken string `json:"deviceToken,omitempty"`
}

// SettingsRequest carries the optional profile fields. Absent fields are
// left unchanged; an empty deviceToken removes the stored token.
type SettingsRequest struct {
	Suburb                  *string   `json:"suburb"`
	NotificationCategories  *[]string `json:"notificationCategories"`
	DarkMode                *bool     `json:"darkMode"`
	AnonymousMode           *bool     `json:"anonymousMode"`
	TrustedContacts         *[]string `json:"trustedContacts"`
	LocationSharingDuration *int      `json:"locationSharingDuration"`
	DeviceToken             *string   `json:"deviceToken"`
}

// Profile is the client view of a User. Trusted contacts are only included
// in the owner's own profile view.
type Profile struct {
	ID                      string    `json:"id"`
	Email                   string    `json:"email"`
	Suburb                  string    `json:"suburb"`
	NotificationCategories  []string  `json:"notificationCategories"`
	DarkMode                bool      `json:"darkMode"`
	AnonymousMode           bool      `json:"anonymousMode"`
	Groups                  []string  `json:"groups"`
	LocationSharingDuration int       `json:"locationSharingDuration"`
	TrustedContacts         []string  `json:"trustedContacts,omitempty"`
	HasDeviceToken          bool      `json:"hasDeviceToken"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

func newProfile(u *models.User, withContacts bool) Profile {
	p := Profile{
		ID:                      u.ID,
		Email:                   u.Email,
		Suburb:                  u.Suburb,
		NotificationCategories:  nonNil(u.NotificationCategories),
		DarkMode:                u.DarkMode,
		AnonymousMode:           u.AnonymousMode,
		Groups:                  nonNil(u.Groups),
		LocationSharingDuration: u.LocationSharingDuration,
		HasDeviceToken:          u.DeviceToken != "",
		CreatedAt:               u.CreatedAt,
		UpdatedAt:               u.UpdatedAt,
	}
	if withContacts {
		p.TrustedContacts = nonNil(u.TrustedContacts)
	}
	return p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Register creates the identity account and the profile document.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	email := validation.NormalizeEmail(req.Email)
	if !validation.IsValidEmail(email) {
		h.fail(w, r, apperrors.Validation("Invalid email address"))
		return
	}
	if len(req.Password) < validation.MinPasswordLength {
		h.fail(w, r, apperrors.Validation("Password must be at least %d characters", validation.MinPasswordLength))
		return
	}
	suburb, ok := h.ref.NormalizeSuburb(req.Suburb)
	if !ok {
		h.fail(w, r, apperrors.Validation("Invalid suburb: %s", req.Suburb))
		return
	}
	contacts, err := h.trustedContacts(req.TrustedContacts, email)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	_, err = h.identity.LookupByEmail(ctx, email)
	switch {
	case err == nil:
		h.fail(w, r, apperrors.Conflict("An account with this email already exists"))
		return
	case !errors.Is(err, services.ErrAccountNotFound):
		h.fail(w, r, apperrors.Upstream("identity lookup", err))
		return
	}

	account, err := h.identity.CreateAccount(ctx, email, req.Password)
	if errors.Is(err, services.ErrAccountExists) {
		h.fail(w, r, apperrors.Conflict("An account with this email already exists"))
		return
	}
	if err != nil {
		h.fail(w, r, apperrors.Upstream("create identity", err))
		return
	}

	user := &models.User{
		ID:                      account.UID,
		Email:                   email,
		Suburb:                  suburb,
		TrustedContacts:         contacts,
		NotificationCategories:  h.ref.DefaultCategories(),
		Groups:                  []string{},
		LocationSharingDuration: validation.DefaultShareDuration,
	}
	if err := h.store.CreateUser(ctx, user); err != nil {
		h.log.WithField("uid", account.UID).Error("identity created without profile document")
		h.fail(w, r, apperrors.Upstream("create user", err))
		return
	}

	h.log.WithField("uid", user.ID).Info("user registered")
	h.ok(w, "User registered successfully", map[string]interface{}{
		"userId": user.ID,
		"email":  user.Email,
		"suburb": user.Suburb,
	})
}

// Login verifies the password with the identity provider and returns a
// bearer token together with the caller's profile.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	email := validation.NormalizeEmail(req.Email)
	if !validation.IsValidEmail(email) {
		h.fail(w, r, apperrors.Validation("Invalid email address"))
		return
	}
	if req.Password == "" {
		h.fail(w, r, apperrors.Validation("Password is required"))
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	session, err := h.identity.VerifyCredentials(ctx, email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrAccountNotFound) {
		h.fail(w, r, apperrors.Unauthenticated("Invalid email or password"))
		return
	}
	if err != nil {
		h.fail(w, r, apperrors.Upstream("verify credentials", err))
		return
	}

	user, err := h.loadUser(ctx, session.UID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if token := strings.TrimSpace(req.DeviceToken); token != "" && token != user.DeviceToken {
		update := models.UserUpdate{DeviceToken: &token}
		if err := h.store.UpdateUser(ctx, user.ID, update); err != nil {
			h.fail(w, r, apperrors.Upstream("store device token", err))
			return
		}
		update.Apply(user)
	}

	h.ok(w, "Login successful", map[string]interface{}{
		"token": session.Token,
		"user":  newProfile(user, false),
	})
}

// Profile returns the caller's own profile including trusted contacts.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
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
	h.ok(w, "", newProfile(user, true))
}

// UpdateSettings validates and stages each supplied field, then applies all
// of them in one update.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req SettingsRequest
	if err := decodeJSON(r, &req); err != nil {
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

	update, err := h.stageSettings(req, user.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if update.Empty() {
		h.fail(w, r, apperrors.Validation("No valid settings provided"))
		return
	}

	if err := h.store.UpdateUser(ctx, user.ID, update); err != nil {
		h.fail(w, r, apperrors.Upstream("update settings", err))
		return
	}

	h.ok(w, "Settings updated successfully", map[string]interface{}{
		"updatedFields": update.Fields(),
	})
}

func (h *Handler) stageSettings(req SettingsRequest, ownEmail string) (models.UserUpdate, error) {
	var u models.UserUpdate

	if req.Suburb != nil {
		suburb, ok := h.ref.NormalizeSuburb(*req.Suburb)
		if !ok {
			return u, apperrors.Validation("Invalid suburb: %s", *req.Suburb)
		}
		u.Suburb = &suburb
	}
	if req.NotificationCategories != nil {
		cats := make([]string, 0, len(*req.NotificationCategories))
		seen := make(map[string]bool)
		for _, c := range *req.NotificationCategories {
			canonical, ok := h.ref.NormalizeCategory(c)
			if !ok {
				return u, apperrors.Validation("Invalid category: %s", c)
			}
			if !seen[canonical] {
				seen[canonical] = true
				cats = append(cats, canonical)
			}
		}
		u.NotificationCategories = &cats
	}
	u.DarkMode = req.DarkMode
	u.AnonymousMode = req.AnonymousMode
	if req.TrustedContacts != nil {
		contacts, err := h.trustedContacts(*req.TrustedContacts, ownEmail)
		if err != nil {
			return u, err
		}
		u.TrustedContacts = &contacts
	}
	if req.LocationSharingDuration != nil {
		if !validation.IsValidDuration(*req.LocationSharingDuration) {
			return u, apperrors.Validation("Location sharing duration must be between %d and %d minutes",
				validation.MinShareDuration, validation.MaxShareDuration)
		}
		d := *req.LocationSharingDuration
		u.LocationSharingDuration = &d
	}
	if req.DeviceToken != nil {
		if token := strings.TrimSpace(*req.DeviceToken); token != "" {
			u.DeviceToken = &token
		} else {
			u.ClearDeviceToken = true
		}
	}
	return u, nil
}

// trustedContacts validates a non-empty contact list that may not include
// the owner.
func (h *Handler) trustedContacts(raw []string, ownEmail string) ([]string, error) {
	if len(raw) == 0 {
		return nil, apperrors.Validation("At least one trusted contact is required")
	}
	contacts, err := validation.NormalizeEmails(raw)
	if err != nil {
		return nil, apperrors.Validation("Invalid trusted contact email")
	}
	for _, c := range contacts {
		if c == ownEmail {
			return nil, apperrors.Validation("You cannot add yourself as a trusted contact")
		}
	}
	return contacts, nil
}

// Suburbs lists the valid suburbs.
func (h *Handler) Suburbs(w http.ResponseWriter, r *http.Request) {
	h.ok(w, "", map[string]interface{}{"suburbs": h.ref.Suburbs()})
}

// Categories lists the valid alert categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	h.ok(w, "", map[string]interface{}{"categories": h.ref.Categories()})
}

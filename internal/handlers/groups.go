package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/apperrors"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/repository"
)

const maxGroupNameLength = 100

// CreateGroupRequest represents the body of POST /api/groups/create.
type CreateGroupRequest struct {
	Name   string `json:"name"`
	Suburb string `json:"suburb"`
}

// JoinGroupRequest represents the body of POST /api/groups/join.
type JoinGroupRequest struct {
	GroupID string `json:"groupId"`
}

// CreateGroup creates a group in a suburb and makes the caller its first member.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req CreateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len([]rune(name)) > maxGroupNameLength {
		h.fail(w, r, apperrors.Validation("Group name is required and must be at most %d characters", maxGroupNameLength))
		return
	}
	suburb, ok := h.ref.NormalizeSuburb(req.Suburb)
	if !ok {
		h.fail(w, r, apperrors.Validation("Invalid suburb: %s", req.Suburb))
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	if _, err := h.loadUser(ctx, id.UID); err != nil {
		h.fail(w, r, err)
		return
	}

	group := &models.Group{Name: name, Suburb: suburb, CreatedBy: id.UID}
	if err := h.store.CreateGroupWithOwner(ctx, group); err != nil {
		h.fail(w, r, apperrors.Upstream("create group", err))
		return
	}

	h.log.WithField("group", group.ID).WithField("suburb", suburb).Info("group created")
	h.ok(w, "Group created successfully", map[string]interface{}{
		"groupId": group.ID,
		"name":    group.Name,
		"suburb":  group.Suburb,
	})
}

// JoinGroup adds the caller to an existing group.
func (h *Handler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req JoinGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	groupID := strings.TrimSpace(req.GroupID)
	if groupID == "" {
		h.fail(w, r, apperrors.Validation("groupId is required"))
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	group, err := h.store.GetGroup(ctx, groupID)
	if errors.Is(err, repository.ErrNotFound) {
		h.fail(w, r, apperrors.NotFound("Group not found"))
		return
	}
	if err != nil {
		h.fail(w, r, apperrors.Upstream("load group", err))
		return
	}

	user, err := h.loadUser(ctx, id.UID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if user.IsMember(group.ID) {
		h.fail(w, r, apperrors.Validation("You are already a member of this group"))
		return
	}

	if err := h.store.AddUserToGroup(ctx, user.ID, group.ID); err != nil {
		h.fail(w, r, apperrors.Upstream("join group", err))
		return
	}
	h.ok(w, "Joined group successfully", map[string]interface{}{
		"groupId": group.ID,
		"name":    group.Name,
	})
}

// ListGroups returns the groups in the caller's suburb.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
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
	groups, err := h.store.ListGroupsBySuburb(ctx, user.Suburb)
	if err != nil {
		h.fail(w, r, apperrors.Upstream("list groups", err))
		return
	}
	h.ok(w, "", map[string]interface{}{"groups": groups, "count": len(groups)})
}

// GroupPosts lists a group's newest posts. Only members may read them.
func (h *Handler) GroupPosts(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	groupID := chi.URLParam(r, "id")

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	user, err := h.loadUser(ctx, id.UID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !user.IsMember(groupID) {
		h.fail(w, r, apperrors.Forbidden("You are not a member of this group"))
		return
	}

	posts, err := h.store.ListGroupPosts(ctx, groupID)
	if err != nil {
		h.fail(w, r, apperrors.Upstream("list group posts", err))
		return
	}
	h.ok(w, "", map[string]interface{}{"posts": posts, "count": len(posts)})
}

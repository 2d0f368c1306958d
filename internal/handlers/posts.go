package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/apperrors"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/repository"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/validation"
	"github.com/AnshRaj112/neighbourwatch-backend/pkg/geo"
)

const (
	maxPostLimit       = 100
	hotspotPostLimit   = 100
	hotspotRecentPosts = 5
	defaultRadiusKm    = 5.0
)

// CreatePostRequest represents the body of POST /api/posts.
type CreatePostRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Suburb      string   `json:"suburb"`
	GroupID     string   `json:"groupId"`
	MediaURL    string   `json:"mediaUrl"`
	Anonymous   *bool    `json:"anonymous"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// Hotspot is one category's share of a suburb's recent posts.
type Hotspot struct {
	Category    string        `json:"category"`
	Count       int           `json:"count"`
	RecentPosts []models.Post `json:"recentPosts"`
}

// CreatePost stores an alert post and notifies the group or the suburb's
// subscribers of its category.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req CreatePostRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	title := strings.TrimSpace(req.Title)
	if len([]rune(title)) < validation.MinTitleLength {
		h.fail(w, r, apperrors.Validation("Title must be at least %d characters", validation.MinTitleLength))
		return
	}
	suburb, ok := h.ref.NormalizeSuburb(req.Suburb)
	if !ok {
		h.fail(w, r, apperrors.Validation("Invalid suburb: %s", req.Suburb))
		return
	}
	category := validation.DefaultCategory
	if strings.TrimSpace(req.Category) != "" {
		if category, ok = h.ref.NormalizeCategory(req.Category); !ok {
			h.fail(w, r, apperrors.Validation("Invalid category: %s", req.Category))
			return
		}
	}
	mediaURL, err := validMediaURL(req.MediaURL)
	if err != nil {
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

	var group *models.Group
	if req.GroupID != "" {
		if !user.IsMember(req.GroupID) {
			h.fail(w, r, apperrors.Forbidden("You are not a member of this group"))
			return
		}
		group, err = h.store.GetGroup(ctx, req.GroupID)
		if errors.Is(err, repository.ErrNotFound) {
			h.fail(w, r, apperrors.NotFound("Group not found"))
			return
		}
		if err != nil {
			h.fail(w, r, apperrors.Upstream("load group", err))
			return
		}
		if group.Suburb != suburb {
			h.fail(w, r, apperrors.Validation("Post suburb must match the group's suburb (%s)", group.Suburb))
			return
		}
	}

	anonymous := user.AnonymousMode
	if req.Anonymous != nil {
		anonymous = *req.Anonymous
	}

	post := &models.Post{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Category:    category,
		Suburb:      suburb,
		GroupID:     req.GroupID,
		MediaURL:    mediaURL,
		Location:    location,
	}
	if !anonymous {
		uid := user.ID
		post.UserID = &uid
	}
	if err := h.store.CreatePost(ctx, post); err != nil {
		h.fail(w, r, apperrors.Upstream("create post", err))
		return
	}

	h.notifyPost(ctx, post, group, user.ID)

	h.ok(w, "Post created successfully", map[string]interface{}{
		"postId":    post.ID,
		"anonymous": post.Anonymous(),
		"category":  post.Category,
		"suburb":    post.Suburb,
	})
}

// notifyPost alerts the group's members, or the suburb's subscribers of the
// post's category. The author is never notified of their own post.
func (h *Handler) notifyPost(ctx context.Context, post *models.Post, group *models.Group, authorID string) {
	var (
		targets []models.User
		err     error
	)
	if group != nil {
		targets, err = h.store.ListUsersByGroup(ctx, group.ID)
	} else {
		targets, err = h.store.ListUsersByNotificationCategory(ctx, post.Suburb, post.Category)
	}
	if err != nil {
		h.log.WithError(err).WithField("post", post.ID).Warn("could not resolve notification targets")
		return
	}
	h.notifier.NotifyPost(ctx, post, group, excludeUser(targets, authorID))
}

func excludeUser(users []models.User, id string) []models.User {
	out := users[:0:0]
	for _, u := range users {
		if u.ID != id {
			out = append(out, u)
		}
	}
	return out
}

// ListPosts lists a group's posts, or the recent posts of a suburb in the
// caller's subscribed categories.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()

	limit := repository.DefaultPostLimit
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxPostLimit {
			h.fail(w, r, apperrors.Validation("limit must be between 1 and %d", maxPostLimit))
			return
		}
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	user, err := h.loadUser(ctx, id.UID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var posts []models.Post
	if groupID := q.Get("groupId"); groupID != "" {
		if !user.IsMember(groupID) {
			h.fail(w, r, apperrors.Forbidden("You are not a member of this group"))
			return
		}
		posts, err = h.store.ListPosts(ctx, repository.PostQuery{GroupID: groupID, Limit: limit})
		if err != nil {
			h.fail(w, r, apperrors.Upstream("list group posts", err))
			return
		}
	} else {
		query := repository.PostQuery{Suburb: user.Suburb, Limit: limit}
		if raw := q.Get("suburb"); raw != "" {
			suburb, ok := h.ref.NormalizeSuburb(raw)
			if !ok {
				h.fail(w, r, apperrors.Validation("Invalid suburb: %s", raw))
				return
			}
			query.Suburb = suburb
		}
		if raw := q.Get("category"); raw != "" {
			category, ok := h.ref.NormalizeCategory(raw)
			if !ok {
				h.fail(w, r, apperrors.Validation("Invalid category: %s", raw))
				return
			}
			query.Category = category
		}
		posts, err = h.store.ListPosts(ctx, query)
		if err != nil {
			h.fail(w, r, apperrors.Upstream("list posts", err))
			return
		}
		posts = subscribedOnly(posts, user)
	}

	h.ok(w, "", map[string]interface{}{"posts": posts, "count": len(posts)})
}

func subscribedOnly(posts []models.Post, user *models.User) []models.Post {
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if user.SubscribesTo(p.Category) {
			out = append(out, p)
		}
	}
	return out
}

// ListPostsByLocation lists recent posts within radius km of a point.
func (h *Handler) ListPostsByLocation(w http.ResponseWriter, r *http.Request) {
	if _, err := caller(r); err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()

	lat, err := parseFloatParam(q, "latitude", "lat")
	if err != nil || !validation.IsValidLatitude(lat) {
		h.fail(w, r, apperrors.Validation("A valid latitude is required"))
		return
	}
	lon, err := parseFloatParam(q, "longitude", "lon")
	if err != nil || !validation.IsValidLongitude(lon) {
		h.fail(w, r, apperrors.Validation("A valid longitude is required"))
		return
	}
	radius := defaultRadiusKm
	if q.Get("radius") != "" {
		radius, err = strconv.ParseFloat(q.Get("radius"), 64)
		if err != nil {
			radius = -1
		}
	}
	if !validation.IsValidRadius(radius) {
		h.fail(w, r, apperrors.Validation("Radius must be between %.1f and %.1f km", validation.MinRadiusKm, validation.MaxRadiusKm))
		return
	}
	category := ""
	if raw := q.Get("category"); raw != "" {
		var ok bool
		if category, ok = h.ref.NormalizeCategory(raw); !ok {
			h.fail(w, r, apperrors.Validation("Invalid category: %s", raw))
			return
		}
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	posts, err := h.store.ListPostsByLocation(ctx, lat, lon, radius, category)
	if err != nil {
		h.fail(w, r, apperrors.Upstream("list posts by location", err))
		return
	}
	h.ok(w, "", map[string]interface{}{"posts": posts, "count": len(posts), "radius": radius})
}

// Hotspots aggregates a suburb's recent posts by category.
func (h *Handler) Hotspots(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	suburb := q.Get("suburb")
	if suburb == "" {
		user, err := h.loadUser(ctx, id.UID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		suburb = user.Suburb
	}
	suburb, ok := h.ref.NormalizeSuburb(suburb)
	if !ok {
		h.fail(w, r, apperrors.Validation("Invalid suburb: %s", q.Get("suburb")))
		return
	}
	category := ""
	if raw := q.Get("category"); raw != "" {
		if category, ok = h.ref.NormalizeCategory(raw); !ok {
			h.fail(w, r, apperrors.Validation("Invalid category: %s", raw))
			return
		}
	}

	posts, err := h.store.ListPosts(ctx, repository.PostQuery{Suburb: suburb, Category: category, Limit: hotspotPostLimit})
	if err != nil {
		h.fail(w, r, apperrors.Upstream("list hotspot posts", err))
		return
	}
	h.ok(w, "", map[string]interface{}{"suburb": suburb, "hotspots": buildHotspots(posts)})
}

// buildHotspots groups newest-first posts by category, keeping the most
// recent few of each, ordered by count descending then category name.
func buildHotspots(posts []models.Post) []Hotspot {
	index := make(map[string]int)
	hotspots := make([]Hotspot, 0)
	for _, p := range posts {
		i, ok := index[p.Category]
		if !ok {
			i = len(hotspots)
			index[p.Category] = i
			hotspots = append(hotspots, Hotspot{Category: p.Category, RecentPosts: []models.Post{}})
		}
		hotspots[i].Count++
		if len(hotspots[i].RecentPosts) < hotspotRecentPosts {
			hotspots[i].RecentPosts = append(hotspots[i].RecentPosts, p)
		}
	}
	sort.SliceStable(hotspots, func(a, b int) bool {
		if hotspots[a].Count != hotspots[b].Count {
			return hotspots[a].Count > hotspots[b].Count
		}
		return hotspots[a].Category < hotspots[b].Category
	})
	return hotspots
}

func validMediaURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperrors.Validation("mediaUrl must be an absolute http(s) URL")
	}
	return raw, nil
}

// optionalPoint builds a point when both coordinates are supplied.
func optionalPoint(lat, lon *float64) (*geo.Point, error) {
	if lat == nil && lon == nil {
		return nil, nil
	}
	if lat == nil || lon == nil {
		return nil, apperrors.Validation("latitude and longitude must be supplied together")
	}
	if !validation.IsValidLatitude(*lat) || !validation.IsValidLongitude(*lon) {
		return nil, apperrors.Validation("Invalid coordinates")
	}
	return &geo.Point{Latitude: *lat, Longitude: *lon}, nil
}

func parseFloatParam(q url.Values, names ...string) (float64, error) {
	for _, n := range names {
		if v := q.Get(n); v != "" {
			return strconv.ParseFloat(v, 64)
		}
	}
	return 0, errors.New("missing")
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
	"github.com/AnshRaj112/neighbourwatch-backend/pkg/geo"
)

const (
	// PostWindow is how far back suburb and category listings reach.
	PostWindow = 7 * 24 * time.Hour

	DefaultPostLimit = 50
	GroupPostLimit   = 50

	// ProximityCandidates caps the recent posts scanned by a proximity
	// search. Older posts are invisible to it even when nearby.
	ProximityCandidates = 1000
)

// PostQuery selects posts from the last PostWindow. A GroupID restricts to
// that group only and ignores Suburb and Category.
type PostQuery struct {
	Suburb   string
	GroupID  string
	Category string
	Limit    int
}

func (m *Mongo) CreatePost(ctx context.Context, p *models.Post) error {
	p.ID = uuid.NewString()
	p.CreatedAt = m.timestamp()
	if _, err := m.col(postsCollection).InsertOne(ctx, p); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// ListPosts returns posts from the last seven days matching q, newest first.
func (m *Mongo) ListPosts(ctx context.Context, q PostQuery) ([]models.Post, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPostLimit
	}
	filter := postsFilter(q, m.timestamp().Add(-PostWindow))
	posts, err := findMany[models.Post](ctx, m.col(postsCollection), filter, newestFirst(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// ListPostsByLocation returns recent posts whose location lies within
// radiusKm of (lat, lon), in any suburb.
func (m *Mongo) ListPostsByLocation(ctx context.Context, lat, lon, radiusKm float64, category string) ([]models.Post, error) {
	candidates, err := m.ListPosts(ctx, PostQuery{Category: category, Limit: ProximityCandidates})
	if err != nil {
		return nil, err
	}
	return filterByDistance(candidates, geo.Point{Latitude: lat, Longitude: lon}, radiusKm), nil
}

// ListGroupPosts returns the group's newest posts regardless of age.
func (m *Mongo) ListGroupPosts(ctx context.Context, groupID string) ([]models.Post, error) {
	posts, err := findMany[models.Post](ctx, m.col(postsCollection), bson.M{"groupId": groupID}, newestFirst(GroupPostLimit))
	if err != nil {
		return nil, fmt.Errorf("list group posts %s: %w", groupID, err)
	}
	return posts, nil
}

func postsFilter(q PostQuery, since time.Time) bson.M {
	filter := bson.M{"createdAt": bson.M{"$gte": since}}
	if q.GroupID != "" {
		filter["groupId"] = q.GroupID
		return filter
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.Suburb != "" {
		filter["suburb"] = q.Suburb
	}
	return filter
}

func filterByDistance(posts []models.Post, center geo.Point, radiusKm float64) []models.Post {
	out := make([]models.Post, 0)
	for _, p := range posts {
		if p.Location == nil {
			continue
		}
		if geo.Within(center, *p.Location, radiusKm) {
			out = append(out, p)
		}
	}
	return out
}

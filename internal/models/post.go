package models

import (
	"time"

	"github.com/AnshRaj112/neighbourwatch-backend/pkg/geo"
)

// Post is a neighbourhood alert. UserID is nil for anonymous posts.
type Post struct {
	ID          string     `bson:"_id" json:"id"`
	UserID      *string    `bson:"userId" json:"userId"`
	Title       string     `bson:"title" json:"title"`
	Description string     `bson:"description" json:"description"`
	Category    string     `bson:"category" json:"category"`
	Suburb      string     `bson:"suburb" json:"suburb"`
	GroupID     string     `bson:"groupId,omitempty" json:"groupId,omitempty"`
	MediaURL    string     `bson:"mediaUrl,omitempty" json:"mediaUrl,omitempty"`
	Location    *geo.Point `bson:"location,omitempty" json:"location,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
}

func (p *Post) Anonymous() bool {
	return p.UserID == nil
}

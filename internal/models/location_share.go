package models

import (
	"time"

	"github.com/AnshRaj112/neighbourwatch-backend/pkg/geo"
)

// LocationShare grants the listed contacts access to the owner's position
// until ExpiresAt, which is always CreatedAt + Duration minutes.
type LocationShare struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"userId" json:"userId"`
	Contacts  []string  `bson:"contacts" json:"contacts"`
	Duration  int       `bson:"duration" json:"duration"`
	Location  geo.Point `bson:"location" json:"location"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
}

// ShareExpiry derives the expiry of a share created at createdAt.
func ShareExpiry(createdAt time.Time, durationMinutes int) time.Time {
	return createdAt.Add(time.Duration(durationMinutes) * time.Minute)
}

func (s *LocationShare) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Visible reports whether email may follow this share.
func (s *LocationShare) Visible(email string) bool {
	for _, c := range s.Contacts {
		if c == email {
			return true
		}
	}
	return false
}

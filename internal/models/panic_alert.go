package models

import (
	"time"

	"github.com/AnshRaj112/neighbourwatch-backend/pkg/geo"
)

const DefaultPanicMessage = "Emergency!"

type PanicAlert struct {
	ID        string     `bson:"_id" json:"id"`
	UserID    string     `bson:"userId" json:"userId"`
	Message   string     `bson:"message" json:"message"`
	Location  *geo.Point `bson:"location,omitempty" json:"location,omitempty"`
	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
}

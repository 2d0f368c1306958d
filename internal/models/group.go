package models

import "time"

// Group is a neighbourhood group. Membership is recorded on the User document.
type Group struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Suburb    string    `bson:"suburb" json:"suburb"`
	CreatedBy string    `bson:"createdBy" json:"createdBy"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

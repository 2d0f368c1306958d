package models

import "time"

// Credential is the local identity provider's account record. It is never
// serialized to clients.
type Credential struct {
	UID          string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
}

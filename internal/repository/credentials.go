package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
)

func (m *Mongo) FindCredentialByEmail(ctx context.Context, email string) (*models.Credential, error) {
	c, err := findOne[models.Credential](ctx, m.col(credentialsCollection), bson.M{"email": email})
	if err != nil && err != ErrNotFound {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return c, err
}

func (m *Mongo) InsertCredential(ctx context.Context, c *models.Credential) error {
	c.CreatedAt = m.timestamp()
	if _, err := m.col(credentialsCollection).InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
	"github.com/AnshRaj112/neighbourwatch-backend/pkg/geo"
)

// CreateLocationShare assigns id, createdAt and the derived expiresAt.
func (m *Mongo) CreateLocationShare(ctx context.Context, s *models.LocationShare) error {
	now := m.timestamp()
	s.ID = uuid.NewString()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.ExpiresAt = models.ShareExpiry(now, s.Duration)
	if _, err := m.col(locationSharesCollection).InsertOne(ctx, s); err != nil {
		return fmt.Errorf("create location share: %w", err)
	}
	return nil
}

func (m *Mongo) GetLocationShare(ctx context.Context, id string) (*models.LocationShare, error) {
	s, err := findOne[models.LocationShare](ctx, m.col(locationSharesCollection), bson.M{"_id": id})
	if err != nil && err != ErrNotFound {
		return nil, fmt.Errorf("get location share %s: %w", id, err)
	}
	return s, err
}

// UpdateLocationSharePosition records the owner's latest position. Expired
// shares are not updated and report ErrNotFound.
func (m *Mongo) UpdateLocationSharePosition(ctx context.Context, id string, p geo.Point) error {
	now := m.timestamp()
	res, err := m.col(locationSharesCollection).UpdateOne(ctx,
		bson.M{"_id": id, "expiresAt": bson.M{"$gt": now}},
		bson.M{"$set": bson.M{"location": p, "updatedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("update location share %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredLocationShares removes every share whose expiry has passed
// with one delete command and returns how many were deleted.
func (m *Mongo) DeleteExpiredLocationShares(ctx context.Context) (int64, error) {
	now := m.timestamp()
	var deleted int64

	err := m.inTransaction(ctx, func(ctx context.Context) error {
		res, err := m.col(locationSharesCollection).DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": now}})
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		m.log.WithError(err).Error("expired location share sweep failed")
		return 0, fmt.Errorf("delete expired location shares: %w", err)
	}

	m.log.WithField("deleted", deleted).Info("expired location shares removed")
	return deleted, nil
}

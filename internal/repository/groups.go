package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
)

// CreateGroup inserts a group with a fresh id and creation time.
func (m *Mongo) CreateGroup(ctx context.Context, g *models.Group) error {
	g.ID = uuid.NewString()
	g.CreatedAt = m.timestamp()
	if _, err := m.col(groupsCollection).InsertOne(ctx, g); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// CreateGroupWithOwner creates the group and adds it to the creator's group
// list. With transactions enabled both writes commit together; without them
// a failure of the second write leaves a group the creator is not a member
// of, and the error is returned so the caller can report it.
func (m *Mongo) CreateGroupWithOwner(ctx context.Context, g *models.Group) error {
	return m.inTransaction(ctx, func(ctx context.Context) error {
		if err := m.CreateGroup(ctx, g); err != nil {
			return err
		}
		return m.AddUserToGroup(ctx, g.CreatedBy, g.ID)
	})
}

func (m *Mongo) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	g, err := findOne[models.Group](ctx, m.col(groupsCollection), bson.M{"_id": id})
	if err != nil && err != ErrNotFound {
		return nil, fmt.Errorf("get group %s: %w", id, err)
	}
	return g, err
}

func (m *Mongo) ListGroupsBySuburb(ctx context.Context, suburb string) ([]models.Group, error) {
	groups, err := findMany[models.Group](ctx, m.col(groupsCollection), bson.M{"suburb": suburb}, newestFirst(0))
	if err != nil {
		return nil, fmt.Errorf("list groups by suburb: %w", err)
	}
	return groups, nil
}

package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
)

// maxInClause bounds the size of a single $in filter.
const maxInClause = 10

func (m *Mongo) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := findOne[models.User](ctx, m.col(usersCollection), bson.M{"_id": id})
	if err != nil && err != ErrNotFound {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, err
}

// CreateUser stores a new profile. The id comes from the identity provider;
// timestamps are assigned here.
func (m *Mongo) CreateUser(ctx context.Context, u *models.User) error {
	now := m.timestamp()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Groups == nil {
		u.Groups = []string{}
	}
	if _, err := m.col(usersCollection).InsertOne(ctx, u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateUser applies the staged fields in one document update and stamps updatedAt.
func (m *Mongo) UpdateUser(ctx context.Context, id string, update models.UserUpdate) error {
	doc := userUpdateDocument(update, m.timestamp())
	res, err := m.col(usersCollection).UpdateOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return fmt.Errorf("update user %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) ListUsersBySuburb(ctx context.Context, suburb string) ([]models.User, error) {
	users, err := findMany[models.User](ctx, m.col(usersCollection), bson.M{"suburb": suburb})
	if err != nil {
		return nil, fmt.Errorf("list users by suburb: %w", err)
	}
	return users, nil
}

func (m *Mongo) ListUsersByGroup(ctx context.Context, groupID string) ([]models.User, error) {
	users, err := findMany[models.User](ctx, m.col(usersCollection), bson.M{"groups": groupID})
	if err != nil {
		return nil, fmt.Errorf("list users by group: %w", err)
	}
	return users, nil
}

func (m *Mongo) ListUsersByNotificationCategory(ctx context.Context, suburb, category string) ([]models.User, error) {
	filter := bson.M{"suburb": suburb, "notificationCategories": category}
	users, err := findMany[models.User](ctx, m.col(usersCollection), filter)
	if err != nil {
		return nil, fmt.Errorf("list users by category: %w", err)
	}
	return users, nil
}

// ListUsersByEmails resolves addresses to profiles, querying in chunks of
// maxInClause. Unknown addresses are skipped.
func (m *Mongo) ListUsersByEmails(ctx context.Context, emails []string) ([]models.User, error) {
	out := make([]models.User, 0)
	for _, batch := range chunk(dedupe(emails), maxInClause) {
		users, err := findMany[models.User](ctx, m.col(usersCollection), bson.M{"email": bson.M{"$in": batch}})
		if err != nil {
			return nil, fmt.Errorf("list users by emails: %w", err)
		}
		out = append(out, users...)
	}
	return out, nil
}

// ClearDeviceTokens removes the given push tokens from every profile holding them.
func (m *Mongo) ClearDeviceTokens(ctx context.Context, tokens []string) (int64, error) {
	var cleared int64
	now := m.timestamp()
	for _, batch := range chunk(dedupe(tokens), maxInClause) {
		res, err := m.col(usersCollection).UpdateMany(ctx,
			bson.M{"deviceToken": bson.M{"$in": batch}},
			bson.M{"$unset": bson.M{"deviceToken": ""}, "$set": bson.M{"updatedAt": now}},
		)
		if err != nil {
			return cleared, fmt.Errorf("clear device tokens: %w", err)
		}
		cleared += res.ModifiedCount
	}
	return cleared, nil
}

// AddUserToGroup appends groupID to the user's group list.
func (m *Mongo) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	res, err := m.col(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$addToSet": bson.M{"groups": groupID}, "$set": bson.M{"updatedAt": m.timestamp()}},
	)
	if err != nil {
		return fmt.Errorf("add user %s to group %s: %w", userID, groupID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

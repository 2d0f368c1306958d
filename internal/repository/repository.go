// Package repository maps the domain entities onto MongoDB collections.
//
// Absent documents are reported as ErrNotFound; every other error is a
// wrapped transport or driver failure.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection          = "users"
	groupsCollection         = "groups"
	postsCollection          = "posts"
	panicAlertsCollection    = "panic_alerts"
	locationSharesCollection = "location_shares"
	credentialsCollection    = "credentials"
)

var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate is returned when a unique index rejects an insert.
	ErrDuplicate = errors.New("duplicate document")
)

type Options struct {
	// Transactions enables multi-document transactions for group creation
	// and the expired-share sweep. MongoDB only supports them on replica sets.
	Transactions bool
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

type Mongo struct {
	db           *mongo.Database
	transactions bool
	log          logrus.FieldLogger
	now          func() time.Time
}

func New(db *mongo.Database, opts Options) *Mongo {
	m := &Mongo{
		db:           db,
		transactions: opts.Transactions,
		log:          opts.Logger,
		now:          opts.Now,
	}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// timestamp returns the current time at the store's millisecond precision,
// so values derived from it survive a round trip unchanged.
func (m *Mongo) timestamp() time.Time {
	return m.now().UTC().Truncate(time.Millisecond)
}

func (m *Mongo) col(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// EnsureIndexes creates the indexes backing every query in this package.
// Called on startup from main after Mongo has connected.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("idx_email")},
			{Keys: bson.D{{Key: "suburb", Value: 1}, {Key: "notificationCategories", Value: 1}}, Options: options.Index().SetName("idx_suburb_categories")},
			{Keys: bson.D{{Key: "groups", Value: 1}}, Options: options.Index().SetName("idx_groups")},
			{Keys: bson.D{{Key: "deviceToken", Value: 1}}, Options: options.Index().SetName("idx_device_token").SetSparse(true)},
		},
		groupsCollection: {
			{Keys: bson.D{{Key: "suburb", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_suburb_created")},
		},
		postsCollection: {
			{Keys: bson.D{{Key: "suburb", Value: 1}, {Key: "category", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_suburb_category_created")},
			{Keys: bson.D{{Key: "groupId", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_group_created")},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_created")},
		},
		panicAlertsCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_user_created")},
		},
		locationSharesCollection: {
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetName("idx_expires")},
		},
		credentialsCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("idx_email_unique").SetUnique(true)},
		},
	}

	for name, models := range indexes {
		if _, err := m.col(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// inTransaction runs fn inside a session transaction when transactions are
// enabled, otherwise directly with ctx.
func (m *Mongo) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !m.transactions {
		return fn(ctx)
	}
	session, err := m.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func findOne[T any](ctx context.Context, col *mongo.Collection, filter any) (*T, error) {
	var out T
	if err := col.FindOne(ctx, filter).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func findMany[T any](ctx context.Context, col *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]T, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func newestFirst(limit int64) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return opts
}

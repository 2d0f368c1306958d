package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newMockRepo(mt *mtest.T) *Mongo {
	log, _ := logtest.NewNullLogger()
	return New(mt.DB, Options{Logger: log, Now: func() time.Time { return fixedNow }})
}

// nextCommand pops the next command the client sent.
func nextCommand(mt *mtest.T) bson.Raw {
	evt := mt.GetStartedEvent()
	require.NotNil(mt, evt, "no command was sent")
	return evt.Command
}

func TestMongo_ListPosts(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("window, filters, sort and limit", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.posts", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "p2"}, {Key: "title", Value: "Newer"}, {Key: "suburb", Value: "Walmer"}, {Key: "category", Value: "Fire"}},
			bson.D{{Key: "_id", Value: "p1"}, {Key: "title", Value: "Older"}, {Key: "suburb", Value: "Walmer"}, {Key: "category", Value: "Fire"}},
		))

		posts, err := newMockRepo(mt).ListPosts(context.Background(), PostQuery{Suburb: "Walmer", Category: "Fire", Limit: 20})
		require.NoError(mt, err)
		require.Len(mt, posts, 2)
		assert.Equal(mt, "p2", posts[0].ID)
		assert.Nil(mt, posts[0].UserID)

		cmd := nextCommand(mt)
		assert.Equal(mt, "posts", cmd.Lookup("find").StringValue())
		assert.Equal(mt, "Walmer", cmd.Lookup("filter", "suburb").StringValue())
		assert.Equal(mt, "Fire", cmd.Lookup("filter", "category").StringValue())
		assert.True(mt, fixedNow.Add(-PostWindow).Equal(cmd.Lookup("filter", "createdAt", "$gte").Time()))
		assert.Equal(mt, int64(-1), cmd.Lookup("sort", "createdAt").AsInt64())
		assert.Equal(mt, int64(20), cmd.Lookup("limit").AsInt64())
	})

	mt.Run("default limit", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.posts", mtest.FirstBatch))

		posts, err := newMockRepo(mt).ListPosts(context.Background(), PostQuery{})
		require.NoError(mt, err)
		assert.Empty(mt, posts)
		assert.Equal(mt, int64(DefaultPostLimit), nextCommand(mt).Lookup("limit").AsInt64())
	})

	mt.Run("driver failure is wrapped", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad query"}))

		_, err := newMockRepo(mt).ListPosts(context.Background(), PostQuery{})
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, ErrNotFound)
		assert.Contains(mt, err.Error(), "list posts")
	})
}

func TestMongo_ListGroupPostsHasNoAgeWindow(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("group filter only", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.posts", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "p1"}, {Key: "groupId", Value: "g1"}},
		))

		posts, err := newMockRepo(mt).ListGroupPosts(context.Background(), "g1")
		require.NoError(mt, err)
		require.Len(mt, posts, 1)
		assert.Equal(mt, "g1", posts[0].GroupID)

		cmd := nextCommand(mt)
		assert.Equal(mt, "g1", cmd.Lookup("filter", "groupId").StringValue())
		_, err = cmd.LookupErr("filter", "createdAt")
		assert.Error(mt, err, "group posts are not limited by age")
		assert.Equal(mt, int64(GroupPostLimit), cmd.Lookup("limit").AsInt64())
		assert.Equal(mt, int64(-1), cmd.Lookup("sort", "createdAt").AsInt64())
	})
}

func TestMongo_ListUsersByEmailsChunksInClause(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("23 distinct addresses", func(mt *mtest.T) {
		var emails []string
		for i := 0; i < 23; i++ {
			emails = append(emails, fmt.Sprintf("u%d@x.com", i))
		}
		emails = append(emails, "u0@x.com", "")

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch, bson.D{{Key: "_id", Value: "a"}, {Key: "email", Value: "u0@x.com"}}),
			mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch),
			mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch, bson.D{{Key: "_id", Value: "b"}, {Key: "email", Value: "u22@x.com"}}),
		)

		users, err := newMockRepo(mt).ListUsersByEmails(context.Background(), emails)
		require.NoError(mt, err)
		require.Len(mt, users, 2)
		assert.Equal(mt, "a", users[0].ID)
		assert.Equal(mt, "b", users[1].ID)

		for _, want := range []int{10, 10, 3} {
			values, err := nextCommand(mt).Lookup("filter", "email", "$in").Array().Values()
			require.NoError(mt, err)
			assert.Len(mt, values, want)
		}
	})
}

func TestMongo_ClearDeviceTokens(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("sums modified counts across chunks", func(mt *mtest.T) {
		var tokens []string
		for i := 0; i < 12; i++ {
			tokens = append(tokens, fmt.Sprintf("device-%d", i))
		}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}, bson.E{Key: "nModified", Value: 3}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		cleared, err := newMockRepo(mt).ClearDeviceTokens(context.Background(), tokens)
		require.NoError(mt, err)
		assert.Equal(mt, int64(4), cleared)

		cmd := nextCommand(mt)
		assert.Equal(mt, "users", cmd.Lookup("update").StringValue())
		updates, err := cmd.Lookup("updates").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, updates, 1)
		update := updates[0].Document()
		assert.True(mt, update.Lookup("multi").Boolean())
		in, err := update.Lookup("q", "deviceToken", "$in").Array().Values()
		require.NoError(mt, err)
		assert.Len(mt, in, maxInClause)
		_, err = update.LookupErr("u", "$unset", "deviceToken")
		assert.NoError(mt, err)

		in, err = nextCommand(mt).Lookup("updates").Array().Index(0).Value().Document().Lookup("q", "deviceToken", "$in").Array().Values()
		require.NoError(mt, err)
		assert.Len(mt, in, 2)
	})

	mt.Run("no tokens sends nothing", func(mt *mtest.T) {
		cleared, err := newMockRepo(mt).ClearDeviceTokens(context.Background(), []string{"", ""})
		require.NoError(mt, err)
		assert.Zero(mt, cleared)
		assert.Nil(mt, mt.GetStartedEvent())
	})
}

func TestMongo_CreateLocationShareDerivesExpiry(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("expiresAt is createdAt plus duration", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		share := &models.LocationShare{UserID: "u1", Contacts: []string{"b@x.com"}, Duration: 45}
		require.NoError(mt, newMockRepo(mt).CreateLocationShare(context.Background(), share))

		assert.NotEmpty(mt, share.ID)
		assert.Equal(mt, fixedNow, share.CreatedAt)
		assert.Equal(mt, fixedNow.Add(45*time.Minute), share.ExpiresAt)

		doc := nextCommand(mt).Lookup("documents").Array().Index(0).Value().Document()
		assert.Equal(mt, share.ID, doc.Lookup("_id").StringValue())
		assert.True(mt, share.ExpiresAt.Equal(doc.Lookup("expiresAt").Time()))
	})
}

func TestMongo_DeleteExpiredLocationShares(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("one delete command", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}))

		deleted, err := newMockRepo(mt).DeleteExpiredLocationShares(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), deleted)

		cmd := nextCommand(mt)
		assert.Equal(mt, "location_shares", cmd.Lookup("delete").StringValue())
		deletes, err := cmd.Lookup("deletes").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, deletes, 1)
		assert.True(mt, fixedNow.Equal(deletes[0].Document().Lookup("q", "expiresAt", "$lt").Time()))
		assert.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("failure reports zero", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 1, Message: "down"}))

		deleted, err := newMockRepo(mt).DeleteExpiredLocationShares(context.Background())
		assert.Error(mt, err)
		assert.Zero(mt, deleted)
	})
}

func TestMongo_CreateGroupWithOwner(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserts group then adds owner", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		g := &models.Group{Name: "Walmer Watch", Suburb: "Walmer", CreatedBy: "u1"}
		require.NoError(mt, newMockRepo(mt).CreateGroupWithOwner(context.Background(), g))
		assert.NotEmpty(mt, g.ID)
		assert.Equal(mt, fixedNow, g.CreatedAt)

		insert := nextCommand(mt)
		assert.Equal(mt, "groups", insert.Lookup("insert").StringValue())

		update := nextCommand(mt).Lookup("updates").Array().Index(0).Value().Document()
		assert.Equal(mt, "u1", update.Lookup("q", "_id").StringValue())
		assert.Equal(mt, g.ID, update.Lookup("u", "$addToSet", "groups").StringValue())
	})

	mt.Run("missing owner", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		err := newMockRepo(mt).CreateGroupWithOwner(context.Background(), &models.Group{Name: "Watch", Suburb: "Walmer", CreatedBy: "ghost"})
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestMongo_InsertCredentialDuplicate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate key becomes ErrDuplicate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}))

		err := newMockRepo(mt).InsertCredential(context.Background(), &models.Credential{UID: "u1", Email: "a@x.com"})
		assert.ErrorIs(mt, err, ErrDuplicate)
	})

	mt.Run("other write errors are wrapped", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 121, Message: "document failed validation"}))

		err := newMockRepo(mt).InsertCredential(context.Background(), &models.Credential{UID: "u1", Email: "a@x.com"})
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, ErrDuplicate)
	})
}

func TestMongo_GetUserNotFound(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("empty batch", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch))

		_, err := newMockRepo(mt).GetUser(context.Background(), "missing")
		assert.ErrorIs(mt, err, ErrNotFound)
		assert.Equal(mt, "missing", nextCommand(mt).Lookup("filter", "_id").StringValue())
	})
}

func TestMongo_ListRecentPanicAlerts(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("user and hours window", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.panic_alerts", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "a1"}, {Key: "userId", Value: "u1"}, {Key: "message", Value: "Emergency!"}},
		))

		alerts, err := newMockRepo(mt).ListRecentPanicAlerts(context.Background(), "u1", 6)
		require.NoError(mt, err)
		require.Len(mt, alerts, 1)
		assert.Equal(mt, "Emergency!", alerts[0].Message)

		cmd := nextCommand(mt)
		assert.Equal(mt, "u1", cmd.Lookup("filter", "userId").StringValue())
		assert.True(mt, fixedNow.Add(-6*time.Hour).Equal(cmd.Lookup("filter", "createdAt", "$gt").Time()))
	})
}

package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
)

func TestToBSONFilter(t *testing.T) {
	oid := primitive.NewObjectID()

	q, ok := toBSONFilter(backend.ByID(oid.Hex()).And("members.userId", "u1"))
	require.True(t, ok)
	assert.Equal(t, bson.D{
		{Key: "_id", Value: oid},
		{Key: "members.userId", Value: "u1"},
	}, q)

	q, ok = toBSONFilter(backend.All())
	require.True(t, ok)
	assert.Empty(t, q)
}

func TestToBSONFilter_InvalidIdentityIsNoMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter backend.Filter
	}{
		{name: "uuid from relational backend", filter: backend.ByID("3f1c6a52-9f38-4c6e-8f0e-2f3a9d1b7c44")},
		{name: "empty id", filter: backend.ByID("")},
		{name: "non-string id", filter: backend.Where("id", 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := toBSONFilter(tt.filter)
			assert.False(t, ok)
		})
	}
}

func TestToUpdateDocument(t *testing.T) {
	t.Run("replace fields drops identity", func(t *testing.T) {
		update, extra, err := toUpdateDocument(backend.ReplaceFields{"name": "x", "id": "ignored"})
		require.NoError(t, err)
		assert.Nil(t, extra)
		assert.Equal(t, bson.M{"$set": bson.M{"name": "x"}}, update)
	})

	t.Run("empty replace is a read", func(t *testing.T) {
		update, _, err := toUpdateDocument(backend.ReplaceFields{})
		require.NoError(t, err)
		assert.Nil(t, update)
	})

	t.Run("native operators pass through", func(t *testing.T) {
		push := map[string]any{"exports": map[string]any{"id": "e1"}}
		update, _, err := toUpdateDocument(backend.NativeOperators{"$push": push})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$push": push}, update)
	})

	t.Run("native operators require operator keys", func(t *testing.T) {
		_, _, err := toUpdateDocument(backend.NativeOperators{"name": "x"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("element patch uses positional operator", func(t *testing.T) {
		update, extra, err := toUpdateDocument(backend.ElementPatch{
			Array:      "members",
			MatchField: "userId",
			MatchValue: "u1",
			Fields:     map[string]any{"archived": true},
		})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$set": bson.M{"members.$.archived": true}}, update)
		assert.Equal(t, []bson.E{{Key: "members.userId", Value: "u1"}}, extra)
	})

	t.Run("element append pushes one element", func(t *testing.T) {
		update, extra, err := toUpdateDocument(backend.ElementAppend{
			Array:   "members",
			Element: map[string]any{"userId": "u2", "role": "viewer"},
		})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$push": bson.M{"members": bson.M{"userId": "u2", "role": "viewer"}}}, update)
		assert.Nil(t, extra)
	})

	t.Run("element remove pulls by key", func(t *testing.T) {
		update, _, err := toUpdateDocument(backend.ElementRemove{Array: "members", MatchField: "userId", MatchValue: "u2"})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$pull": bson.M{"members": bson.M{"userId": "u2"}}}, update)

		_, _, err = toUpdateDocument(backend.ElementRemove{Array: "members"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestToDocument(t *testing.T) {
	oid := primitive.NewObjectID()

	doc := toDocument(backend.Record{"id": oid.Hex(), "name": "x"})
	assert.Equal(t, oid, doc["_id"])
	assert.NotContains(t, doc, "id")

	doc = toDocument(backend.Record{"id": "not-an-object-id", "name": "x"})
	_, isOID := doc["_id"].(primitive.ObjectID)
	assert.True(t, isOID, "invalid ids are replaced with a fresh ObjectID")
}

func TestFromDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rec := fromDocument(bson.M{
		"_id":       oid,
		"name":      "Alpha",
		"createdAt": primitive.NewDateTimeFromTime(when),
		"count":     int32(3),
		"members": primitive.A{
			primitive.M{"userId": "u1", "ref": oid},
		},
		"settings": primitive.D{{Key: "theme", Value: "dark"}},
	})

	assert.Equal(t, oid.Hex(), rec.ID())
	assert.NotContains(t, rec, "_id")
	assert.Equal(t, when, rec["createdAt"])
	assert.Equal(t, int64(3), rec["count"])
	assert.Equal(t, []any{map[string]any{"userId": "u1", "ref": oid.Hex()}}, rec["members"])
	assert.Equal(t, map[string]any{"theme": "dark"}, rec["settings"])
}

func TestDatabaseName(t *testing.T) {
	name, err := databaseName(backend.ConnectionConfig{ConnectionString: "mongodb://localhost:27017/tenants"})
	require.NoError(t, err)
	assert.Equal(t, "tenants", name)

	name, err = databaseName(backend.ConnectionConfig{ConnectionString: "mongodb://localhost:27017"})
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabase, name)

	name, err = databaseName(backend.ConnectionConfig{ConnectionString: "mongodb://localhost/x", Database: "override"})
	require.NoError(t, err)
	assert.Equal(t, "override", name)

	_, err = databaseName(backend.ConnectionConfig{ConnectionString: "http://nope"})
	assert.Error(t, err)
}

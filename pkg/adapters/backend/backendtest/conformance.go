package backendtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// RunConformance checks the behaviour every backend.Adapter shares: CRUD on
// provisioned export objects and the not-found rules for foreign ids.
// prefix keeps object names apart when several suites share a database.
func RunConformance(t *testing.T, a backend.Adapter, prefix string) {
	t.Helper()

	t.Run("StructuredObjectLifecycle", func(t *testing.T) {
		ctx := context.Background()
		object := prefix + "_structured"

		require.NoError(t, a.CreateObject(ctx, backend.ObjectSpec{
			Name: object,
			Fields: []models.FieldDefinition{
				{Name: "title", Type: "text", Required: true},
				{Name: "amount", Type: "number"},
			},
		}))
		t.Cleanup(func() { _ = a.DropObject(context.Background(), object) })

		created, err := a.Create(ctx, object, backend.Record{
			"projectId": "p1",
			"title":     "first",
			"amount":    1.5,
		})
		require.NoError(t, err)
		id := created.ID()
		require.NotEmpty(t, id)

		got, err := a.FindOne(ctx, object, backend.ByID(id))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "first", got.String("title"))
		assert.Equal(t, 1.5, got["amount"])

		_, err = a.Create(ctx, object, backend.Record{"projectId": "p2", "title": "other"})
		require.NoError(t, err)

		rows, err := a.Find(ctx, object, backend.Where("projectId", "p1"))
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		updated, err := a.Update(ctx, object, backend.ByID(id), backend.ReplaceFields{"title": "second"})
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, "second", updated.String("title"))
		assert.Equal(t, id, updated.ID())

		n, err := a.Delete(ctx, object, backend.Where("projectId", "p1"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		rows, err = a.Find(ctx, object, backend.All())
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("ForeignIDsAreNotFound", func(t *testing.T) {
		ctx := context.Background()
		object := prefix + "_ids"

		require.NoError(t, a.CreateObject(ctx, backend.ObjectSpec{
			Name:   object,
			Fields: []models.FieldDefinition{{Name: "title", Type: "text"}},
		}))
		t.Cleanup(func() { _ = a.DropObject(context.Background(), object) })

		for _, id := range []string{"not-an-id", "", "64b7f0c2a1b2c3d4e5f6071"} {
			rec, err := a.FindOne(ctx, object, backend.ByID(id))
			assert.NoError(t, err, id)
			assert.Nil(t, rec, id)

			rows, err := a.Find(ctx, object, backend.ByID(id))
			assert.NoError(t, err, id)
			assert.Empty(t, rows, id)

			updated, err := a.Update(ctx, object, backend.ByID(id), backend.ReplaceFields{"title": "x"})
			assert.NoError(t, err, id)
			assert.Nil(t, updated, id)

			n, err := a.Delete(ctx, object, backend.ByID(id))
			assert.NoError(t, err, id)
			assert.Zero(t, n, id)
		}
	})

	t.Run("RawObjectKeepsPayload", func(t *testing.T) {
		ctx := context.Background()
		object := prefix + "_raw"

		require.NoError(t, a.CreateObject(ctx, backend.ObjectSpec{Name: object, Raw: true}))
		t.Cleanup(func() { _ = a.DropObject(context.Background(), object) })

		_, err := a.Create(ctx, object, backend.Record{
			"projectId": "p1",
			"data":      map[string]any{"tags": []any{"x", "y"}, "name": "blob"},
		})
		require.NoError(t, err)

		got, err := a.FindOne(ctx, object, backend.Where("projectId", "p1"))
		require.NoError(t, err)
		require.NotNil(t, got)

		data, ok := got["data"].(map[string]any)
		require.True(t, ok, "data is %T", got["data"])
		assert.Equal(t, "blob", data["name"])
		assert.Equal(t, []any{"x", "y"}, data["tags"])
	})

	t.Run("RelationalRejectsNativeOperators", func(t *testing.T) {
		if a.Kind() != models.BackendRelational {
			t.Skip("document backends accept native operators")
		}
		ctx := context.Background()
		object := prefix + "_ops"

		require.NoError(t, a.CreateObject(ctx, backend.ObjectSpec{
			Name:   object,
			Fields: []models.FieldDefinition{{Name: "title", Type: "text"}},
		}))
		t.Cleanup(func() { _ = a.DropObject(context.Background(), object) })

		created, err := a.Create(ctx, object, backend.Record{"projectId": "p1", "title": "a"})
		require.NoError(t, err)

		_, err = a.Update(ctx, object, backend.ByID(created.ID()),
			backend.NativeOperators{"$set": map[string]any{"title": "b"}})
		assert.Error(t, err)
	})
}

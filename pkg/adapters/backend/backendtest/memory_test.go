package backendtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

func TestMemoryAdapter_Conformance(t *testing.T) {
	t.Run("relational", func(t *testing.T) {
		RunConformance(t, New(models.BackendRelational), "export_mem")
	})
	t.Run("document", func(t *testing.T) {
		RunConformance(t, New(models.BackendDocument), "export_mem")
	})
}

func TestMemoryAdapter_FailOn(t *testing.T) {
	a := New(models.BackendDocument)
	boom := errors.New("boom")
	a.FailOn("Create", "projects", boom)

	_, err := a.Create(context.Background(), "projects", backend.Record{"name": "x"})
	assert.ErrorIs(t, err, boom)

	_, err = a.Create(context.Background(), "other", backend.Record{"name": "x"})
	assert.NoError(t, err)
	assert.Equal(t, 2, a.Calls("Create"))
}

func TestMemoryAdapter_ElementPatch(t *testing.T) {
	ctx := context.Background()
	a := New(models.BackendDocument)

	rec, err := a.Create(ctx, "project_metadata", backend.Record{
		"projectId":   "p1",
		"credentials": []any{map[string]any{"id": "c1", "key": "old"}},
	})
	require.NoError(t, err)

	updated, err := a.Update(ctx, "project_metadata", backend.ByID(rec.ID()), backend.ElementPatch{
		Array:      "credentials",
		MatchField: "id",
		MatchValue: "c1",
		Fields:     map[string]any{"key": "new"},
	})
	require.NoError(t, err)
	require.NotNil(t, updated)

	creds := updated["credentials"].([]any)
	assert.Equal(t, "new", creds[0].(map[string]any)["key"])
}

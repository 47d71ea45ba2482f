package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

func TestUserRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	f := newRepoFixture(t)

	_, err := f.users.Get(ctx, "auth0|123")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, f.users.Upsert(ctx, &models.User{ID: "auth0|123", Username: "ada"}))
	require.NoError(t, f.users.Upsert(ctx, &models.User{ID: "auth0|123", Username: "ada.l", Email: "ada@example.com"}))

	got, err := f.users.Get(ctx, "auth0|123")
	require.NoError(t, err)
	assert.Equal(t, &models.User{ID: "auth0|123", Username: "ada.l", Email: "ada@example.com"}, got)

	assert.Len(t, f.rel.Records("users"), 1, "users live on the primary connection")
	assert.Empty(t, f.doc.Records("users"))
}

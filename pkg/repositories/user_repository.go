package repositories

import (
	"context"
	"errors"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/federation"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// UserRepository resolves account details for member listings.
type UserRepository interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	// Upsert records the username seen for a user id.
	Upsert(ctx context.Context, user *models.User) error
}

type userRepository struct {
	model *federation.Model
}

// NewUserRepository creates a new user repository.
func NewUserRepository(model *federation.Model) UserRepository {
	return &userRepository{model: model}
}

func (r *userRepository) Get(ctx context.Context, userID string) (*models.User, error) {
	rec, err := r.model.FindOne(ctx, backend.Where(fieldUserID, userID))
	if err != nil {
		return nil, err
	}
	return recordToUser(rec), nil
}

func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	fields := backend.ReplaceFields{"username": user.Username}
	if user.Email != "" {
		fields["email"] = user.Email
	}

	_, err := r.model.Update(ctx, backend.Where(fieldUserID, user.ID), fields)
	if err == nil || !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	rec := backend.Record{fieldUserID: user.ID, "username": user.Username}
	if user.Email != "" {
		rec["email"] = user.Email
	}
	_, err = r.model.Create(ctx, rec)
	return err
}

// Ensure userRepository implements UserRepository at compile time.
var _ UserRepository = (*userRepository)(nil)

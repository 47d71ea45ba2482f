package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/federation"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// ProjectMetadataRepository manages the per-project credentials and export
// references kept on the document backend.
type ProjectMetadataRepository interface {
	Get(ctx context.Context, projectID string) (*models.ProjectMetadata, error)
	// Ensure returns the metadata record, creating an empty one if missing.
	Ensure(ctx context.Context, projectID string) (*models.ProjectMetadata, error)
	AddCredential(ctx context.Context, projectID string, cred models.Credential) error
	UpdateCredential(ctx context.Context, projectID string, cred models.Credential) error
	RemoveCredential(ctx context.Context, projectID, credentialID string) error
	AddExport(ctx context.Context, projectID string, ref models.ExportRef) error
	UpdateExport(ctx context.Context, projectID string, ref models.ExportRef) error
	RemoveExport(ctx context.Context, projectID, exportID string) error
	Delete(ctx context.Context, projectID string) (*federation.DeleteResult, error)
}

type projectMetadataRepository struct {
	model *federation.Model
}

// NewProjectMetadataRepository creates a new metadata repository.
func NewProjectMetadataRepository(model *federation.Model) ProjectMetadataRepository {
	return &projectMetadataRepository{model: model}
}

func byProject(projectID string) backend.Filter {
	return backend.Where(fieldProjectID, projectID)
}

func (r *projectMetadataRepository) Get(ctx context.Context, projectID string) (*models.ProjectMetadata, error) {
	rec, err := r.model.FindOne(ctx, byProject(projectID))
	if err != nil {
		return nil, err
	}
	return recordToMetadata(rec), nil
}

func (r *projectMetadataRepository) Ensure(ctx context.Context, projectID string) (*models.ProjectMetadata, error) {
	md, err := r.Get(ctx, projectID)
	if err == nil {
		return md, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	rec, createErr := r.model.Create(ctx, backend.Record{
		fieldProjectID:   projectID,
		fieldCredentials: []any{},
		fieldExports:     []any{},
	})
	if createErr != nil {
		// A concurrent Ensure may have won the unique index race.
		if md, err := r.Get(ctx, projectID); err == nil {
			return md, nil
		}
		return nil, fmt.Errorf("create project metadata: %w", createErr)
	}
	return recordToMetadata(rec), nil
}

func (r *projectMetadataRepository) push(ctx context.Context, projectID, array string, value map[string]any) error {
	if _, err := r.Ensure(ctx, projectID); err != nil {
		return err
	}
	_, err := r.model.Update(ctx, byProject(projectID), backend.ElementAppend{Array: array, Element: value})
	return err
}

func (r *projectMetadataRepository) setElement(ctx context.Context, projectID, array, id string, value map[string]any) error {
	fields := make(map[string]any, len(value))
	for k, v := range value {
		if k == fieldID {
			continue
		}
		fields[k] = v
	}
	_, err := r.model.Update(ctx, byProject(projectID), backend.ElementPatch{
		Array:      array,
		MatchField: fieldID,
		MatchValue: id,
		Fields:     fields,
	})
	return err
}

func (r *projectMetadataRepository) pull(ctx context.Context, projectID, array, id string) error {
	_, err := r.model.Update(ctx, byProject(projectID), backend.ElementRemove{
		Array:      array,
		MatchField: fieldID,
		MatchValue: id,
	})
	return err
}

func (r *projectMetadataRepository) AddCredential(ctx context.Context, projectID string, cred models.Credential) error {
	return r.push(ctx, projectID, fieldCredentials, credentialToMap(cred))
}

func (r *projectMetadataRepository) UpdateCredential(ctx context.Context, projectID string, cred models.Credential) error {
	return r.setElement(ctx, projectID, fieldCredentials, cred.ID, credentialToMap(cred))
}

func (r *projectMetadataRepository) RemoveCredential(ctx context.Context, projectID, credentialID string) error {
	return r.pull(ctx, projectID, fieldCredentials, credentialID)
}

func (r *projectMetadataRepository) AddExport(ctx context.Context, projectID string, ref models.ExportRef) error {
	return r.push(ctx, projectID, fieldExports, exportRefToMap(ref))
}

func (r *projectMetadataRepository) UpdateExport(ctx context.Context, projectID string, ref models.ExportRef) error {
	return r.setElement(ctx, projectID, fieldExports, ref.ID, exportRefToMap(ref))
}

func (r *projectMetadataRepository) RemoveExport(ctx context.Context, projectID, exportID string) error {
	return r.pull(ctx, projectID, fieldExports, exportID)
}

func (r *projectMetadataRepository) Delete(ctx context.Context, projectID string) (*federation.DeleteResult, error) {
	return r.model.Delete(ctx, byProject(projectID))
}

// Ensure projectMetadataRepository implements ProjectMetadataRepository at compile time.
var _ ProjectMetadataRepository = (*projectMetadataRepository)(nil)

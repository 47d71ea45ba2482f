package repositories

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/federation"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// ProjectRepository defines the interface for project data access.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	Get(ctx context.Context, id string) (*models.Project, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Project, error)
	// Update writes the descriptive fields and access settings (not members).
	Update(ctx context.Context, project *models.Project) error
	UpdateMember(ctx context.Context, projectID, userID string, fields map[string]any) (*models.Project, error)
	AddMember(ctx context.Context, projectID string, member models.Member) (*models.Project, error)
	RemoveMember(ctx context.Context, projectID, userID string) (*models.Project, error)
	Delete(ctx context.Context, id string) (*federation.DeleteResult, error)
}

// projectRepository implements ProjectRepository on the federated model.
type projectRepository struct {
	model *federation.Model
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(model *federation.Model) ProjectRepository {
	return &projectRepository{model: model}
}

// Create stores the project on the backend named by its BackendKind and
// fills in ID and timestamps.
func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	rec, err := r.model.Create(ctx, projectToRecord(project))
	if err != nil {
		return err
	}
	*project = *recordToProject(rec)
	return nil
}

func (r *projectRepository) Get(ctx context.Context, id string) (*models.Project, error) {
	rec, err := r.model.FindOne(ctx, backend.ByID(id))
	if err != nil {
		return nil, err
	}
	return recordToProject(rec), nil
}

func (r *projectRepository) ListForUser(ctx context.Context, userID string) ([]*models.Project, error) {
	records, err := r.model.Find(ctx, backend.Where(fieldMembers+"."+fieldUserID, userID))
	if err != nil {
		return nil, err
	}
	out := make([]*models.Project, len(records))
	for i, rec := range records {
		out[i] = recordToProject(rec)
	}
	return out, nil
}

func (r *projectRepository) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now().UTC()
	rec, err := r.model.Update(ctx, backend.ByID(project.ID), backend.ReplaceFields{
		fieldName:           project.Name,
		fieldDescription:    project.Description,
		fieldImage:          project.Image,
		fieldAllowUpload:    project.AllowUpload,
		fieldAllowSharing:   project.AllowSharing,
		fieldAllowedOrigins: stringsOrEmpty(project.AllowedOrigins),
		fieldUpdatedAt:      project.UpdatedAt,
	})
	if err != nil {
		return err
	}
	*project = *recordToProject(rec)
	return nil
}

// UpdateMember sets attributes on exactly one member, addressed by user id.
func (r *projectRepository) UpdateMember(ctx context.Context, projectID, userID string, fields map[string]any) (*models.Project, error) {
	rec, err := r.model.Update(ctx, backend.ByID(projectID), backend.ElementPatch{
		Array:      fieldMembers,
		MatchField: fieldUserID,
		MatchValue: userID,
		Fields:     fields,
	})
	if err != nil {
		return nil, err
	}
	return recordToProject(rec), nil
}

// AddMember appends one member without touching the others.
func (r *projectRepository) AddMember(ctx context.Context, projectID string, member models.Member) (*models.Project, error) {
	rec, err := r.model.Update(ctx, backend.ByID(projectID), backend.ElementAppend{
		Array:   fieldMembers,
		Element: memberToMap(member),
	})
	if err != nil {
		return nil, err
	}
	return recordToProject(rec), nil
}

func (r *projectRepository) RemoveMember(ctx context.Context, projectID, userID string) (*models.Project, error) {
	rec, err := r.model.Update(ctx, backend.ByID(projectID), backend.ElementRemove{
		Array:      fieldMembers,
		MatchField: fieldUserID,
		MatchValue: userID,
	})
	if err != nil {
		return nil, err
	}
	return recordToProject(rec), nil
}

func (r *projectRepository) Delete(ctx context.Context, id string) (*federation.DeleteResult, error) {
	return r.model.Delete(ctx, backend.ByID(id))
}

// Ensure projectRepository implements ProjectRepository at compile time.
var _ ProjectRepository = (*projectRepository)(nil)

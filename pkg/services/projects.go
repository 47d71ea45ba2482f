package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/federation"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
	"github.com/ekaya-inc/ekaya-datahub/pkg/repositories"
	"github.com/ekaya-inc/ekaya-datahub/pkg/storage"
)

// CreateProjectRequest holds the fields for a new project.
type CreateProjectRequest struct {
	Name        string
	Description string
	// BackendKind selects where the project lives. Empty means the primary connection's kind.
	BackendKind    models.BackendKind
	AllowUpload    bool
	AllowSharing   bool
	AllowedOrigins []string
}

// UpdateProjectRequest holds optional changes; nil fields are left as they are.
type UpdateProjectRequest struct {
	Name           *string
	Description    *string
	AllowUpload    *bool
	AllowSharing   *bool
	AllowedOrigins *[]string
}

// DeleteProjectResult reports what a project deletion removed.
type DeleteProjectResult struct {
	Project         *federation.DeleteResult `json:"project"`
	DroppedExports  []string                 `json:"dropped_exports"`
	MetadataRemoved bool                     `json:"metadata_removed"`
}

// ProjectService defines the interface for project operations.
type ProjectService interface {
	Create(ctx context.Context, auth models.AuthContext, req CreateProjectRequest) (*models.Project, error)
	// List returns the caller's projects. A non-nil archived filters on the caller's archived flag.
	List(ctx context.Context, auth models.AuthContext, archived *bool) ([]models.ProjectListItem, error)
	Get(ctx context.Context, auth models.AuthContext, projectID string) (*models.Project, error)
	Update(ctx context.Context, auth models.AuthContext, projectID string, req UpdateProjectRequest) (*models.Project, error)
	// Delete removes the project with its metadata, export objects and stored files.
	Delete(ctx context.Context, auth models.AuthContext, projectID string) (*DeleteProjectResult, error)
	// Archive hides the project for the caller and returns the refreshed list.
	Archive(ctx context.Context, auth models.AuthContext, projectID string) ([]models.ProjectListItem, error)
	Unarchive(ctx context.Context, auth models.AuthContext, projectID string) ([]models.ProjectListItem, error)
}

type projectService struct {
	guard    projectGuard
	conns    *backend.ConnectionRegistry
	projects repositories.ProjectRepository
	metadata repositories.ProjectMetadataRepository
	users    repositories.UserRepository
	storage  storage.Adapter
	now      func() time.Time
	logger   *zap.Logger
}

// NewProjectService creates a new project service with dependencies.
func NewProjectService(
	conns *backend.ConnectionRegistry,
	projects repositories.ProjectRepository,
	metadata repositories.ProjectMetadataRepository,
	users repositories.UserRepository,
	store storage.Adapter,
	logger *zap.Logger,
) ProjectService {
	if store == nil {
		store = storage.Disabled{}
	}
	return &projectService{
		guard:    projectGuard{projects: projects},
		conns:    conns,
		projects: projects,
		metadata: metadata,
		users:    users,
		storage:  store,
		now:      time.Now,
		logger:   logger.Named("projects"),
	}
}

// Create stores a new project with the caller as its only admin.
func (s *projectService) Create(ctx context.Context, auth models.AuthContext, req CreateProjectRequest) (*models.Project, error) {
	if auth.UserID == "" || !models.CanEdit(auth.Role) {
		return nil, fmt.Errorf("%w: editor or admin role required to create projects", apperrors.ErrForbidden)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", apperrors.ErrInvalidInput)
	}

	kind, err := s.resolveKind(req.BackendKind)
	if err != nil {
		return nil, err
	}

	project := &models.Project{
		BackendKind:    kind,
		Name:           name,
		Description:    req.Description,
		AllowUpload:    req.AllowUpload,
		AllowSharing:   req.AllowSharing,
		AllowedOrigins: req.AllowedOrigins,
		Members:        []models.Member{{UserID: auth.UserID, Role: models.RoleAdmin}},
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	if auth.Username != "" {
		if err := s.users.Upsert(ctx, &models.User{ID: auth.UserID, Username: auth.Username}); err != nil {
			s.logger.Warn("Failed to record username",
				zap.String("user_id", auth.UserID),
				zap.Error(err))
		}
	}

	// Metadata is created lazily on first credential or export when this fails.
	if _, err := s.metadata.Ensure(ctx, project.ID); err != nil {
		s.logger.Warn("Failed to create project metadata",
			zap.String("project_id", project.ID),
			zap.Error(err))
	}

	s.logger.Info("Created project",
		zap.String("project_id", project.ID),
		zap.String("backend_kind", string(kind)),
		zap.String("user_id", auth.UserID))

	s.withUsernames(ctx, project)
	return project, nil
}

func (s *projectService) resolveKind(kind models.BackendKind) (models.BackendKind, error) {
	if kind == "" {
		primary, err := s.conns.Primary()
		if err != nil {
			return "", err
		}
		return primary.Kind, nil
	}
	if _, err := s.conns.ForKind(kind); err != nil {
		return "", err
	}
	return kind, nil
}

func (s *projectService) List(ctx context.Context, auth models.AuthContext, archived *bool) ([]models.ProjectListItem, error) {
	if auth.UserID == "" {
		return nil, fmt.Errorf("%w: authentication required", apperrors.ErrForbidden)
	}

	projects, err := s.projects.ListForUser(ctx, auth.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	items := make([]models.ProjectListItem, 0, len(projects))
	for _, p := range projects {
		member := p.Member(auth.UserID)
		if member == nil {
			continue
		}
		if archived != nil && member.Archived != *archived {
			continue
		}
		items = append(items, models.ProjectListItem{
			ID:          p.ID,
			BackendKind: p.BackendKind,
			Name:        p.Name,
			Description: p.Description,
			Image:       p.Image,
			Archived:    member.Archived,
		})
	}
	return items, nil
}

func (s *projectService) Get(ctx context.Context, auth models.AuthContext, projectID string) (*models.Project, error) {
	project, _, err := s.guard.load(ctx, auth, projectID, levelMember)
	if err != nil {
		return nil, err
	}
	s.withUsernames(ctx, project)
	return project, nil
}

func (s *projectService) Update(ctx context.Context, auth models.AuthContext, projectID string, req UpdateProjectRequest) (*models.Project, error) {
	project, _, err := s.guard.load(ctx, auth, projectID, levelEditor)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: project name cannot be empty", apperrors.ErrInvalidInput)
		}
		project.Name = name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.AllowUpload != nil {
		project.AllowUpload = *req.AllowUpload
	}
	if req.AllowSharing != nil {
		project.AllowSharing = *req.AllowSharing
	}
	if req.AllowedOrigins != nil {
		project.AllowedOrigins = *req.AllowedOrigins
	}

	if err := s.projects.Update(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	s.withUsernames(ctx, project)
	return project, nil
}

// Delete cascades in order: export objects, metadata, the project record
// (with its member rows), then the storage directory. Export and storage
// cleanup is best-effort and logged.
func (s *projectService) Delete(ctx context.Context, auth models.AuthContext, projectID string) (*DeleteProjectResult, error) {
	project, _, err := s.guard.load(ctx, auth, projectID, levelAdmin)
	if err != nil {
		return nil, err
	}

	result := &DeleteProjectResult{DroppedExports: []string{}}

	md, err := s.metadata.Get(ctx, project.ID)
	switch {
	case err == nil:
		for _, ref := range md.Exports {
			if !ref.HasStorageObject() {
				continue
			}
			if err := dropExportObject(ctx, s.conns, ref); err != nil {
				s.logger.Error("Failed to drop export object during project delete",
					zap.String("project_id", project.ID),
					zap.String("collection", ref.CollectionName),
					zap.Error(err))
				continue
			}
			result.DroppedExports = append(result.DroppedExports, ref.CollectionName)
		}
		mdResult, err := s.metadata.Delete(ctx, project.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to delete project metadata: %w", err)
		}
		result.MetadataRemoved = mdResult.Total > 0
	case errors.Is(err, apperrors.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to load project metadata: %w", err)
	}

	deleted, err := s.projects.Delete(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete project: %w", err)
	}
	result.Project = deleted

	if err := s.storage.DeleteProjectDirectory(ctx, project.ID); err != nil {
		s.logger.Error("Failed to delete project storage directory",
			zap.String("project_id", project.ID),
			zap.Error(err))
	}

	s.logger.Info("Deleted project",
		zap.String("project_id", project.ID),
		zap.Int64("records", deleted.Total),
		zap.Int("exports_dropped", len(result.DroppedExports)))

	return result, nil
}

func (s *projectService) Archive(ctx context.Context, auth models.AuthContext, projectID string) ([]models.ProjectListItem, error) {
	return s.setArchived(ctx, auth, projectID, true)
}

func (s *projectService) Unarchive(ctx context.Context, auth models.AuthContext, projectID string) ([]models.ProjectListItem, error) {
	return s.setArchived(ctx, auth, projectID, false)
}

// setArchived flips only the caller's member entry.
func (s *projectService) setArchived(ctx context.Context, auth models.AuthContext, projectID string, archived bool) ([]models.ProjectListItem, error) {
	if _, _, err := s.guard.load(ctx, auth, projectID, levelMember); err != nil {
		return nil, err
	}

	fields := map[string]any{
		"archived":   archived,
		"archivedBy": nil,
		"archivedAt": nil,
	}
	if archived {
		fields["archivedBy"] = auth.UserID
		fields["archivedAt"] = s.now().UTC()
	}

	if _, err := s.projects.UpdateMember(ctx, projectID, auth.UserID, fields); err != nil {
		return nil, fmt.Errorf("failed to update member: %w", err)
	}
	return s.List(ctx, auth, nil)
}

// withUsernames fills member usernames from the users entity. Lookup
// failures leave the username empty.
func (s *projectService) withUsernames(ctx context.Context, project *models.Project) {
	fillUsernames(ctx, s.users, s.logger, project.Members)
}

func fillUsernames(ctx context.Context, users repositories.UserRepository, logger *zap.Logger, members []models.Member) {
	for i := range members {
		if members[i].Username != "" {
			continue
		}
		user, err := users.Get(ctx, members[i].UserID)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				logger.Debug("Username lookup failed",
					zap.String("user_id", members[i].UserID),
					zap.Error(err))
			}
			continue
		}
		members[i].Username = user.Username
	}
}

// Ensure projectService implements ProjectService at compile time.
var _ ProjectService = (*projectService)(nil)

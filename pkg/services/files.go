package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
	"github.com/ekaya-inc/ekaya-datahub/pkg/repositories"
	"github.com/ekaya-inc/ekaya-datahub/pkg/storage"
)

// FileService manages a project's image and uploaded files in object storage.
type FileService interface {
	ListFiles(ctx context.Context, auth models.AuthContext, projectID string) ([]storage.FileInfo, error)
	// GetUploadURL presigns a file upload. The project must allow uploads.
	GetUploadURL(ctx context.Context, auth models.AuthContext, projectID, contentType string) (*storage.PresignedURL, error)
	GetImageUploadURL(ctx context.Context, auth models.AuthContext, projectID string) (*storage.PresignedURL, error)
	SetImage(ctx context.Context, auth models.AuthContext, projectID, imageURL string) (*models.Project, error)
	DeleteImage(ctx context.Context, auth models.AuthContext, projectID string) (*models.Project, error)
}

type fileService struct {
	guard    projectGuard
	projects repositories.ProjectRepository
	storage  storage.Adapter
	logger   *zap.Logger
}

// NewFileService creates a new file service with dependencies.
func NewFileService(projects repositories.ProjectRepository, store storage.Adapter, logger *zap.Logger) FileService {
	if store == nil {
		store = storage.Disabled{}
	}
	return &fileService{
		guard:    projectGuard{projects: projects},
		projects: projects,
		storage:  store,
		logger:   logger.Named("files"),
	}
}

func (s *fileService) ListFiles(ctx context.Context, auth models.AuthContext, projectID string) ([]storage.FileInfo, error) {
	if _, _, err := s.guard.load(ctx, auth, projectID, levelMember); err != nil {
		return nil, err
	}
	files, err := s.storage.ListFiles(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

func (s *fileService) GetUploadURL(ctx context.Context, auth models.AuthContext, projectID, contentType string) (*storage.PresignedURL, error) {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" || strings.Contains(contentType, "..") {
		return nil, fmt.Errorf("%w: content type is required", apperrors.ErrInvalidInput)
	}

	project, _, err := s.guard.load(ctx, auth, projectID, levelEditor)
	if err != nil {
		return nil, err
	}
	if !project.AllowUpload {
		return nil, fmt.Errorf("%w: uploads are disabled for this project", apperrors.ErrForbidden)
	}
	return s.storage.GetPresignedURL(ctx, contentType, projectID)
}

func (s *fileService) GetImageUploadURL(ctx context.Context, auth models.AuthContext, projectID string) (*storage.PresignedURL, error) {
	if _, _, err := s.guard.load(ctx, auth, projectID, levelEditor); err != nil {
		return nil, err
	}
	return s.storage.GetPresignedProjectImageURL(ctx, projectID)
}

func (s *fileService) SetImage(ctx context.Context, auth models.AuthContext, projectID, imageURL string) (*models.Project, error) {
	project, _, err := s.guard.load(ctx, auth, projectID, levelEditor)
	if err != nil {
		return nil, err
	}
	project.Image = strings.TrimSpace(imageURL)
	if err := s.projects.Update(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to set project image: %w", err)
	}
	return project, nil
}

func (s *fileService) DeleteImage(ctx context.Context, auth models.AuthContext, projectID string) (*models.Project, error) {
	project, _, err := s.guard.load(ctx, auth, projectID, levelEditor)
	if err != nil {
		return nil, err
	}
	if err := s.storage.DeleteProjectImage(ctx, projectID); err != nil {
		return nil, fmt.Errorf("failed to delete project image: %w", err)
	}

	project.Image = ""
	if err := s.projects.Update(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to clear project image: %w", err)
	}
	return project, nil
}

// Ensure fileService implements FileService at compile time.
var _ FileService = (*fileService)(nil)

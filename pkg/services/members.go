package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
	"github.com/ekaya-inc/ekaya-datahub/pkg/repositories"
)

// MemberService defines the interface for project membership operations.
type MemberService interface {
	List(ctx context.Context, auth models.AuthContext, projectID string) ([]models.Member, error)
	Add(ctx context.Context, auth models.AuthContext, projectID, userID, role string) ([]models.Member, error)
	// UpdateRole returns ErrLastAdmin when demoting the last active admin.
	UpdateRole(ctx context.Context, auth models.AuthContext, projectID, userID, role string) ([]models.Member, error)
	// Remove returns ErrLastAdmin when removing the last active admin.
	Remove(ctx context.Context, auth models.AuthContext, projectID, userID string) ([]models.Member, error)
}

type memberService struct {
	guard    projectGuard
	projects repositories.ProjectRepository
	users    repositories.UserRepository
	logger   *zap.Logger
}

// NewMemberService creates a new member service with dependencies.
func NewMemberService(projects repositories.ProjectRepository, users repositories.UserRepository, logger *zap.Logger) MemberService {
	return &memberService{
		guard:    projectGuard{projects: projects},
		projects: projects,
		users:    users,
		logger:   logger.Named("members"),
	}
}

func (s *memberService) List(ctx context.Context, auth models.AuthContext, projectID string) ([]models.Member, error) {
	project, _, err := s.guard.load(ctx, auth, projectID, levelMember)
	if err != nil {
		return nil, err
	}
	return s.members(ctx, project), nil
}

func (s *memberService) members(ctx context.Context, project *models.Project) []models.Member {
	members := project.Members
	if members == nil {
		members = []models.Member{}
	}
	fillUsernames(ctx, s.users, s.logger, members)
	return members
}

// Add adds a user to a project with the specified role.
func (s *memberService) Add(ctx context.Context, auth models.AuthContext, projectID, userID, role string) ([]models.Member, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", apperrors.ErrInvalidInput)
	}
	if !models.IsValidRole(role) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRole, role)
	}

	project, _, err := s.guard.load(ctx, auth, projectID, levelAdmin)
	if err != nil {
		return nil, err
	}
	if project.Member(userID) != nil {
		return nil, fmt.Errorf("%w: user %s is already a member", apperrors.ErrConflict, userID)
	}

	updated, err := s.projects.AddMember(ctx, projectID, models.Member{UserID: userID, Role: role})
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	return s.members(ctx, updated), nil
}

func (s *memberService) UpdateRole(ctx context.Context, auth models.AuthContext, projectID, userID, role string) ([]models.Member, error) {
	if !models.IsValidRole(role) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRole, role)
	}

	project, _, err := s.guard.load(ctx, auth, projectID, levelAdmin)
	if err != nil {
		return nil, err
	}
	target := project.Member(userID)
	if target == nil {
		return nil, fmt.Errorf("member %s: %w", userID, apperrors.ErrNotFound)
	}

	if isActiveAdmin(target) && role != models.RoleAdmin && project.AdminCount() <= 1 {
		return nil, apperrors.ErrLastAdmin
	}

	updated, err := s.projects.UpdateMember(ctx, projectID, userID, map[string]any{"role": role})
	if err != nil {
		return nil, fmt.Errorf("failed to update member role: %w", err)
	}
	return s.members(ctx, updated), nil
}

// Remove requires admin, except that members may remove themselves.
func (s *memberService) Remove(ctx context.Context, auth models.AuthContext, projectID, userID string) ([]models.Member, error) {
	need := levelAdmin
	if userID == auth.UserID {
		need = levelMember
	}

	project, _, err := s.guard.load(ctx, auth, projectID, need)
	if err != nil {
		return nil, err
	}
	target := project.Member(userID)
	if target == nil {
		return nil, fmt.Errorf("member %s: %w", userID, apperrors.ErrNotFound)
	}

	if isActiveAdmin(target) && project.AdminCount() <= 1 {
		return nil, apperrors.ErrLastAdmin
	}

	updated, err := s.projects.RemoveMember(ctx, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove member: %w", err)
	}
	return s.members(ctx, updated), nil
}

func isActiveAdmin(m *models.Member) bool {
	return m.Role == models.RoleAdmin && !m.Archived
}

// Ensure memberService implements MemberService at compile time.
var _ MemberService = (*memberService)(nil)

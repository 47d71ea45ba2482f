package services

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
	"github.com/ekaya-inc/ekaya-datahub/pkg/repositories"
)

// accessLevel is the minimum project role an operation needs.
type accessLevel int

const (
	levelMember accessLevel = iota
	levelEditor
	levelAdmin
)

func (l accessLevel) permits(role string) bool {
	switch l {
	case levelAdmin:
		return role == models.RoleAdmin
	case levelEditor:
		return models.CanEdit(role)
	default:
		return models.IsValidRole(role)
	}
}

// projectGuard loads a project and checks the caller's membership.
type projectGuard struct {
	projects repositories.ProjectRepository
}

// load returns the project and the caller's member entry. Non-members and
// members below the required level get apperrors.ErrForbidden.
func (g projectGuard) load(ctx context.Context, auth models.AuthContext, projectID string, need accessLevel) (*models.Project, *models.Member, error) {
	if auth.UserID == "" {
		return nil, nil, fmt.Errorf("%w: authentication required", apperrors.ErrForbidden)
	}

	project, err := g.projects.Get(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	member := project.Member(auth.UserID)
	if member == nil {
		return nil, nil, fmt.Errorf("%w: not a member of project %s", apperrors.ErrForbidden, projectID)
	}
	if !need.permits(member.Role) {
		return nil, nil, fmt.Errorf("%w: role %s cannot perform this operation", apperrors.ErrForbidden, member.Role)
	}
	return project, member, nil
}

package repositories

import (
	"github.com/ekaya-inc/ekaya-datahub/pkg/federation"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// Entity names registered with the federation registry.
const (
	EntityProject  = "Project"
	EntityMetadata = "ProjectMetadata"
	EntityUser     = "User"
)

// ProjectDefinition spans every backend. Members are embedded in documents
// and kept in project_members on relational backends.
func ProjectDefinition() federation.Definition {
	return federation.Definition{
		Name: EntityProject,
		Embedded: []federation.EmbeddedCollection{{
			Field:     fieldMembers,
			Table:     "project_members",
			ParentKey: fieldProjectID,
			KeyField:  fieldUserID,
		}},
	}
}

// MetadataDefinition holds credentials and export references of every
// project, always on a document backend.
func MetadataDefinition() federation.Definition {
	return federation.Definition{
		Name:   EntityMetadata,
		Object: "project_metadata",
		Kinds:  []models.BackendKind{models.BackendDocument},
	}
}

// UserDefinition reads users from the primary connection only.
func UserDefinition(primaryConnectionID string) federation.Definition {
	def := federation.Definition{Name: EntityUser}
	if primaryConnectionID != "" {
		def.ConnectionIDs = []string{primaryConnectionID}
	}
	return def
}

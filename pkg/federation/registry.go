package federation

import (
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
)

// Registry defines federated models over one set of connections.
type Registry struct {
	connections *backend.ConnectionRegistry
	logger      *zap.Logger
}

// NewRegistry creates a model registry.
func NewRegistry(connections *backend.ConnectionRegistry, logger *zap.Logger) *Registry {
	return &Registry{
		connections: connections,
		logger:      logger,
	}
}

// Define creates the model for def.
func (r *Registry) Define(def Definition) *Model {
	return NewModel(def, r.connections, r.logger)
}

// defaultObjectName turns an entity name into a table/collection name:
// "Project" -> "projects", "ProjectMember" -> "project_members".
func defaultObjectName(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return inflection.Plural(b.String())
}

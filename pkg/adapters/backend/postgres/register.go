package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

func init() {
	backend.Register(backend.AdapterRegistration{
		Info: backend.AdapterInfo{
			Kind:        models.BackendRelational,
			DisplayName: "PostgreSQL",
		},
		Factory: func(ctx context.Context, cfg backend.ConnectionConfig, logger *zap.Logger) (backend.Adapter, error) {
			return NewAdapter(ctx, cfg, logger)
		},
	})
}

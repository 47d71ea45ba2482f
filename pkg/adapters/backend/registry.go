package backend

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// AdapterInfo describes a registered backend implementation.
type AdapterInfo struct {
	Kind        models.BackendKind `json:"kind"`
	DisplayName string             `json:"display_name"`
}

// Factory connects to a backend and returns a ready adapter.
type Factory func(ctx context.Context, cfg ConnectionConfig, logger *zap.Logger) (Adapter, error)

// AdapterRegistration pairs adapter info with its factory.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.BackendKind]AdapterRegistration)
)

// Register is called by each backend package's init() function.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Kind] = reg
}

// RegisteredAdapters returns info for all registered backends, ordered by kind.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result
}

// GetFactory returns the factory for a backend kind, or nil if not registered.
func GetFactory(kind models.BackendKind) Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[kind]; ok {
		return reg.Factory
	}
	return nil
}

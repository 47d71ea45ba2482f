package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/logging"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultBootstrapTimeout = 30 * time.Second
)

// ConnectionConfig describes one configured backend connection.
type ConnectionConfig struct {
	ID               string             `yaml:"id" json:"id"`
	Kind             models.BackendKind `yaml:"kind" json:"kind"`
	ConnectionString string             `yaml:"connection_string" json:"connection_string"`
	IsPrimary        bool               `yaml:"is_primary" json:"is_primary"`
	// Database overrides the database named in a document connection string.
	Database string `yaml:"database" json:"database"`
	// Schema is the relational schema holding all tables (default "datahub").
	Schema       string `yaml:"schema" json:"schema"`
	PoolMaxConns int32  `yaml:"pool_max_conns" json:"pool_max_conns"`
	PoolMinConns int32  `yaml:"pool_min_conns" json:"pool_min_conns"`
}

// Connection is an established backend connection.
type Connection struct {
	ID        string
	Kind      models.BackendKind
	IsPrimary bool
	Adapter   Adapter
}

// Pinger is implemented by adapters that support health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionRegistry holds the connections established at startup.
// A connection that failed to establish is absent for the process lifetime.
type ConnectionRegistry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	order  []string
	logger *zap.Logger
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry(logger *zap.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:  make(map[string]*Connection),
		logger: logger.Named("connections"),
	}
}

// Connect establishes every configured connection in order. Failures are
// logged and skipped; they are never fatal and never retried.
func (r *ConnectionRegistry) Connect(ctx context.Context, configs []ConnectionConfig) {
	for _, cfg := range configs {
		if cfg.ConnectionString == "" {
			r.logger.Warn("skipping connection without connection string", zap.String("connection_id", cfg.ID))
			continue
		}
		if err := r.connectOne(ctx, cfg); err != nil {
			r.logger.Error("failed to establish connection",
				zap.String("connection_id", cfg.ID),
				zap.String("kind", cfg.Kind.String()),
				zap.String("connection_string", logging.SanitizeConnectionString(cfg.ConnectionString)),
				zap.String("error", logging.SanitizeError(err)),
			)
			continue
		}
		r.logger.Info("connection established",
			zap.String("connection_id", cfg.ID),
			zap.String("kind", cfg.Kind.String()),
			zap.Bool("primary", cfg.IsPrimary),
		)
	}
}

func (r *ConnectionRegistry) connectOne(ctx context.Context, cfg ConnectionConfig) error {
	if r.Has(cfg.ID) {
		return fmt.Errorf("duplicate connection id %q", cfg.ID)
	}

	factory := GetFactory(cfg.Kind)
	if factory == nil {
		return fmt.Errorf("%w: %q", apperrors.ErrUnsupportedBackendKind, cfg.Kind)
	}

	connectCtx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	adapter, err := factory(connectCtx, cfg, r.logger)
	if err != nil {
		return err
	}

	if b, ok := adapter.(Bootstrapper); ok {
		bootCtx, cancelBoot := context.WithTimeout(ctx, DefaultBootstrapTimeout)
		err := b.Bootstrap(bootCtx)
		cancelBoot()
		if err != nil {
			r.logger.Error("backend bootstrap failed",
				zap.String("connection_id", cfg.ID),
				zap.String("error", logging.SanitizeError(err)),
			)
		}
	}

	r.Add(&Connection{ID: cfg.ID, Kind: cfg.Kind, IsPrimary: cfg.IsPrimary, Adapter: adapter})
	return nil
}

// Add registers an already established connection.
func (r *ConnectionRegistry) Add(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[conn.ID]; !exists {
		r.order = append(r.order, conn.ID)
	}
	r.conns[conn.ID] = conn
}

// Get returns the connection with the given id.
func (r *ConnectionRegistry) Get(id string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrConnectionNotFound, id)
	}
	return conn, nil
}

// Has reports whether id is connected.
func (r *ConnectionRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

// ListConnected returns the connected ids in configuration order.
func (r *ConnectionRegistry) ListConnected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Primary returns the primary connection, falling back to the first connected one.
func (r *ConnectionRegistry) Primary() (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if r.conns[id].IsPrimary {
			return r.conns[id], nil
		}
	}
	if len(r.order) > 0 {
		return r.conns[r.order[0]], nil
	}
	return nil, fmt.Errorf("%w: no connections established", apperrors.ErrConnectionNotFound)
}

// ForKind returns a connection of the given kind, preferring the primary one.
func (r *ConnectionRegistry) ForKind(kind models.BackendKind) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var first *Connection
	for _, id := range r.order {
		conn := r.conns[id]
		if conn.Kind != kind {
			continue
		}
		if conn.IsPrimary {
			return conn, nil
		}
		if first == nil {
			first = conn
		}
	}
	if first == nil {
		return nil, fmt.Errorf("%w: no %s connection established", apperrors.ErrUnsupportedBackendKind, kind)
	}
	return first, nil
}

// Ping checks every connection that supports health checks and returns
// the per-connection result ("ok" or the sanitized error).
func (r *ConnectionRegistry) Ping(ctx context.Context) map[string]string {
	result := make(map[string]string)
	for _, id := range r.ListConnected() {
		conn, err := r.Get(id)
		if err != nil {
			continue
		}
		p, ok := conn.Adapter.(Pinger)
		if !ok {
			result[id] = "ok"
			continue
		}
		if err := p.Ping(ctx); err != nil {
			result[id] = logging.SanitizeError(err)
			continue
		}
		result[id] = "ok"
	}
	return result
}

// Close closes every connection and empties the registry.
func (r *ConnectionRegistry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, id := range r.order {
		if err := r.conns[id].Adapter.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	r.conns = make(map[string]*Connection)
	r.order = nil
	return errors.Join(errs...)
}

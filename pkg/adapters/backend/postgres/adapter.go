// Package postgres implements the relational backend on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/logging"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

const (
	DefaultSchema       = "datahub"
	DefaultPoolMaxConns = 10
	DefaultPoolMinConns = 1
)

// Adapter provides relational storage on PostgreSQL. Every table lives in
// a single configured schema.
type Adapter struct {
	pool   *pgxpool.Pool
	schema string
	logger *zap.Logger
}

var (
	_ backend.Adapter      = (*Adapter)(nil)
	_ backend.Bootstrapper = (*Adapter)(nil)
	_ backend.Pinger       = (*Adapter)(nil)
)

// NewAdapter opens a pool for cfg and verifies it with a ping.
func NewAdapter(ctx context.Context, cfg backend.ConnectionConfig, logger *zap.Logger) (*Adapter, error) {
	schema := cfg.Schema
	if schema == "" {
		schema = DefaultSchema
	}
	if !schemaNamePattern.MatchString(schema) {
		return nil, fmt.Errorf("%w: schema name %q", apperrors.ErrInvalidInput, schema)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MaxConns = DefaultPoolMaxConns
	poolCfg.MinConns = DefaultPoolMinConns
	if cfg.PoolMaxConns > 0 {
		poolCfg.MaxConns = cfg.PoolMaxConns
	}
	if cfg.PoolMinConns > 0 {
		poolCfg.MinConns = cfg.PoolMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewAdapterFromPool(pool, schema, logger), nil
}

// NewAdapterFromPool wraps an existing pool.
func NewAdapterFromPool(pool *pgxpool.Pool, schema string, logger *zap.Logger) *Adapter {
	return &Adapter{
		pool:   pool,
		schema: schema,
		logger: logger.Named("postgres"),
	}
}

func (a *Adapter) Kind() models.BackendKind {
	return models.BackendRelational
}

// Schema returns the schema holding every table.
func (a *Adapter) Schema() string {
	return a.schema
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *Adapter) Find(ctx context.Context, object string, filter backend.Filter) ([]backend.Record, error) {
	if !validIdentity(filter) {
		return []backend.Record{}, nil
	}
	return a.query(ctx, object, filter, 0)
}

func (a *Adapter) FindOne(ctx context.Context, object string, filter backend.Filter) (backend.Record, error) {
	if !validIdentity(filter) {
		return nil, nil
	}
	records, err := a.query(ctx, object, filter, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

func (a *Adapter) query(ctx context.Context, object string, filter backend.Filter, limit int) ([]backend.Record, error) {
	sql, args, err := buildSelect(tableName(a.schema, object), filter, limit)
	if err != nil {
		return nil, err
	}
	rows, err := a.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", object, err)
	}
	return collectRecords(rows)
}

// Create inserts rec, assigning a UUID when it has no valid id.
func (a *Adapter) Create(ctx context.Context, object string, rec backend.Record) (backend.Record, error) {
	row := rec.Clone()
	if _, err := uuid.Parse(row.ID()); err != nil {
		row[backend.IDField] = uuid.NewString()
	}

	sql, args := buildInsert(tableName(a.schema, object), row)
	rows, err := a.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", object, err)
	}
	records, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", object, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("insert into %s: no row returned", object)
	}
	return records[0], nil
}

// Update supports attribute replacement only.
func (a *Adapter) Update(ctx context.Context, object string, filter backend.Filter, patch backend.Patch) (backend.Record, error) {
	var fields map[string]any
	switch p := patch.(type) {
	case backend.ReplaceFields:
		fields = p
	case backend.NativeOperators, backend.ElementPatch, backend.ElementAppend, backend.ElementRemove:
		return nil, fmt.Errorf("%w: %T on relational backend", apperrors.ErrUnsupportedPatch, patch)
	default:
		return nil, fmt.Errorf("%w: %T", apperrors.ErrUnsupportedPatch, patch)
	}

	if !validIdentity(filter) {
		return nil, nil
	}

	sql, args, err := buildUpdate(tableName(a.schema, object), fields, filter)
	if err != nil {
		return nil, err
	}
	rows, err := a.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", object, err)
	}
	records, err := collectRecords(rows)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

func (a *Adapter) Delete(ctx context.Context, object string, filter backend.Filter) (int64, error) {
	if !validIdentity(filter) {
		return 0, nil
	}
	sql, args, err := buildDelete(tableName(a.schema, object), filter)
	if err != nil {
		return 0, err
	}
	tag, err := a.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", object, err)
	}
	return tag.RowsAffected(), nil
}

// CreateObject creates the export table if it does not exist.
func (a *Adapter) CreateObject(ctx context.Context, spec backend.ObjectSpec) error {
	if len(spec.Name) > MaxIdentifierLength {
		return fmt.Errorf("%w: table name %q exceeds %d bytes", apperrors.ErrInvalidInput, spec.Name, MaxIdentifierLength)
	}
	ddl, err := buildCreateTable(a.schema, spec)
	if err != nil {
		return err
	}
	if _, err := a.pool.Exec(ctx, ddl); err != nil {
		a.logger.Error("create export table failed",
			zap.String("table", spec.Name),
			zap.String("ddl", logging.SanitizeQuery(ddl)),
			zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	a.logger.Info("created export table", zap.String("table", spec.Name), zap.Bool("raw", spec.Raw))
	return nil
}

func (a *Adapter) DropObject(ctx context.Context, name string) error {
	if _, err := a.pool.Exec(ctx, "DROP TABLE IF EXISTS "+tableName(a.schema, name)); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	return nil
}

func (a *Adapter) Close(ctx context.Context) error {
	a.pool.Close()
	return nil
}

// collectRecords reads every row into a Record.
func collectRecords(rows pgx.Rows) ([]backend.Record, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []backend.Record{}, nil
		}
		return nil, err
	}
	out := make([]backend.Record, len(maps))
	for i, m := range maps {
		out[i] = normalizeRow(m)
	}
	return out, nil
}

// normalizeRow converts driver values that do not round-trip through the
// rest of the application as plain Go values.
func normalizeRow(m map[string]any) backend.Record {
	rec := make(backend.Record, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case [16]byte:
			rec[k] = uuid.UUID(t).String()
		case time.Time:
			rec[k] = t.UTC()
		default:
			rec[k] = v
		}
	}
	return rec
}

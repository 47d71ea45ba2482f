package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/logging"
)

// SetupResult reports what Bootstrap had to create.
type SetupResult struct {
	DidCreateSchema bool
	DidCreateTables bool
}

// advisoryLockKey is hashed server-side so concurrent startups against the
// same schema serialize on one lock.
func advisoryLockKey(schema string) string {
	return "datahub:setup:" + schema
}

// coreTables are the fixed tables every relational connection needs.
var coreTables = []string{"projects", "project_members", "users"}

func setupStatements(schema string) []string {
	t := func(name string) string { return tableName(schema, name) }
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, column(schema)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"id" TEXT PRIMARY KEY,
	"userId" TEXT NOT NULL UNIQUE,
	"username" TEXT NOT NULL,
	"email" TEXT,
	"createdAt" TIMESTAMPTZ NOT NULL DEFAULT now()
)`, t("users")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"id" TEXT PRIMARY KEY,
	"backendKind" TEXT NOT NULL DEFAULT 'relational',
	"name" TEXT NOT NULL,
	"description" TEXT NOT NULL DEFAULT '',
	"image" TEXT NOT NULL DEFAULT '',
	"createdAt" TIMESTAMPTZ NOT NULL DEFAULT now(),
	"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT now()
)`, t("projects")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"id" TEXT PRIMARY KEY,
	"projectId" TEXT NOT NULL REFERENCES %s ("id") ON DELETE CASCADE,
	"userId" TEXT NOT NULL,
	"role" TEXT NOT NULL,
	"archived" BOOLEAN NOT NULL DEFAULT false,
	"archivedBy" TEXT,
	"archivedAt" TIMESTAMPTZ,
	UNIQUE ("projectId", "userId")
)`, t("project_members"), t("projects")),
		// Columns added after the first release; tolerated on existing tables.
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS "allowUpload" BOOLEAN NOT NULL DEFAULT false`, t("projects")),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS "allowSharing" BOOLEAN NOT NULL DEFAULT false`, t("projects")),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS "allowedOrigins" JSONB NOT NULL DEFAULT '[]'::jsonb`, t("projects")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "project_members_user_idx" ON %s ("userId")`, t("project_members")),
	}
}

// Bootstrap creates the schema and core tables idempotently. It holds a
// session advisory lock for the duration of the setup transaction and
// always releases it.
func (a *Adapter) Bootstrap(ctx context.Context) error {
	_, err := a.Setup(ctx)
	return err
}

// Setup is Bootstrap returning what was created.
func (a *Adapter) Setup(ctx context.Context) (*SetupResult, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	lockKey := advisoryLockKey(a.schema)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, lockKey); err != nil {
		return nil, fmt.Errorf("acquire setup lock: %w", err)
	}
	defer func() {
		// The caller's context may already be cancelled; the lock must still go.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, lockKey); err != nil {
			a.logger.Error("failed to release setup lock", zap.String("schema", a.schema), zap.Error(err))
		}
	}()

	result := &SetupResult{}

	var schemaExists bool
	if err := conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		a.schema,
	).Scan(&schemaExists); err != nil {
		return nil, fmt.Errorf("check schema: %w", err)
	}
	result.DidCreateSchema = !schemaExists

	var existing int
	if err := conn.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = ANY($2)`,
		a.schema, coreTables,
	).Scan(&existing); err != nil {
		return nil, fmt.Errorf("check tables: %w", err)
	}
	result.DidCreateTables = existing < len(coreTables)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin setup: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, stmt := range setupStatements(a.schema) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			a.logger.Error("setup statement failed", zap.String("statement", logging.SanitizeQuery(stmt)))
			return nil, fmt.Errorf("setup schema %s: %w", a.schema, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit setup: %w", err)
	}

	a.logger.Info("relational schema ready",
		zap.String("schema", a.schema),
		zap.Bool("created_schema", result.DidCreateSchema),
		zap.Bool("created_tables", result.DidCreateTables),
	)
	return result, nil
}

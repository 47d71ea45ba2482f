package postgres

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
)

// MaxIdentifierLength is PostgreSQL's NAMEDATALEN-1; longer names are truncated by the server.
const MaxIdentifierLength = 63

var schemaNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// tableName returns the schema-qualified, quoted table identifier.
func tableName(schema, object string) string {
	return pgx.Identifier{schema, object}.Sanitize()
}

func column(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// validIdentity reports whether the filter's id term (if any) can exist in a
// relational table. Ids are UUID strings.
func validIdentity(filter backend.Filter) bool {
	id, ok := filter.ID()
	if !ok {
		for _, t := range filter.Terms() {
			if t.Field == backend.IDField {
				return false
			}
		}
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// buildWhere renders the filter as a parameterized AND clause whose
// placeholders start at $argStart. An empty filter yields "".
func buildWhere(filter backend.Filter, argStart int) (string, []any, error) {
	terms := filter.Terms()
	if len(terms) == 0 {
		return "", nil, nil
	}

	conds := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms))
	for _, t := range terms {
		if strings.Contains(t.Field, ".") {
			return "", nil, fmt.Errorf("%w: nested field %q not supported by relational backend", apperrors.ErrInvalidInput, t.Field)
		}
		if t.Value == nil {
			conds = append(conds, column(t.Field)+" IS NULL")
			continue
		}
		args = append(args, t.Value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column(t.Field), argStart+len(args)-1))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func buildSelect(table string, filter backend.Filter, limit int) (string, []any, error) {
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT * FROM " + table + where
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", limit)
	}
	return sql, args, nil
}

// sortedKeys returns record keys in a stable order so generated SQL is deterministic.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildInsert(table string, rec backend.Record) (string, []any) {
	keys := sortedKeys(rec)
	cols := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = column(k)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = rec[k]
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return sql, args
}

// buildUpdate updates at most one matching row, mirroring document
// find-one-and-update semantics.
func buildUpdate(table string, fields map[string]any, filter backend.Filter) (string, []any, error) {
	keys := sortedKeys(fields)
	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if k == backend.IDField {
			continue
		}
		args = append(args, fields[k])
		sets = append(sets, fmt.Sprintf("%s = $%d", column(k), len(args)))
	}
	if len(sets) == 0 {
		return "", nil, fmt.Errorf("%w: empty update", apperrors.ErrInvalidInput)
	}

	where, whereArgs, err := buildWhere(filter, len(args)+1)
	if err != nil {
		return "", nil, err
	}
	args = append(args, whereArgs...)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (SELECT %s FROM %s%s LIMIT 1) RETURNING *",
		table, strings.Join(sets, ", "), column(backend.IDField), column(backend.IDField), table, where)
	return sql, args, nil
}

func buildDelete(table string, filter backend.Filter) (string, []any, error) {
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + table + where, args, nil
}

// columnType maps an export field type to a PostgreSQL column type.
func columnType(fieldType string) string {
	switch strings.ToLower(fieldType) {
	case "number", "float", "decimal":
		return "DOUBLE PRECISION"
	case "integer", "int":
		return "BIGINT"
	case "boolean", "bool":
		return "BOOLEAN"
	case "date", "datetime", "timestamp":
		return "TIMESTAMPTZ"
	case "json", "object", "array":
		return "JSONB"
	default:
		return "TEXT"
	}
}

// reservedColumns are created for every export table and cannot be redefined by fields.
var reservedColumns = map[string]bool{
	backend.IDField: true,
	"projectId":     true,
	"metadata":      true,
	"data":          true,
	"createdAt":     true,
	"updatedAt":     true,
}

func buildCreateTable(schema string, spec backend.ObjectSpec) (string, error) {
	cols := []string{
		column(backend.IDField) + " TEXT PRIMARY KEY",
		column("projectId") + " TEXT NOT NULL",
	}

	if spec.Raw {
		cols = append(cols, column("data")+" JSONB NOT NULL")
	} else {
		cols = append(cols, column("metadata")+" JSONB NOT NULL DEFAULT '{}'::jsonb")
		for _, f := range spec.Fields {
			if reservedColumns[f.Name] {
				return "", fmt.Errorf("%w: field name %q is reserved", apperrors.ErrInvalidInput, f.Name)
			}
			def := column(f.Name) + " " + columnType(f.Type)
			if f.Required {
				def += " NOT NULL"
			}
			cols = append(cols, def)
		}
	}

	cols = append(cols,
		column("createdAt")+" TIMESTAMPTZ NOT NULL DEFAULT now()",
		column("updatedAt")+" TIMESTAMPTZ NOT NULL DEFAULT now()",
	)

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		tableName(schema, spec.Name), strings.Join(cols, ",\n\t")), nil
}

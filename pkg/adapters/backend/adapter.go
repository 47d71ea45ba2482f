// Package backend defines the uniform data-access contract implemented by
// every storage backend and the registry of live connections.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// IDField is the backend-agnostic identity attribute of every record.
const IDField = "id"

// Record is one row or document with its identity normalized to a string "id".
type Record map[string]any

// ID returns the record identity, or "" if absent.
func (r Record) ID() string {
	if r == nil {
		return ""
	}
	switch v := r[IDField].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// String returns the string attribute key, or "".
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Bool returns the boolean attribute key, or false.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Time returns the time attribute key, or the zero time.
func (r Record) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ObjectSpec describes a backend-native storage object to provision for an export.
type ObjectSpec struct {
	Name   string
	Fields []models.FieldDefinition
	// Raw objects hold a single verbatim JSON payload instead of typed columns.
	Raw bool
}

// Adapter is the closed set of operations every backend implements.
// Object names are table names (relational) or collection names (document).
//
// An identity that does not parse as a native id for the backend is treated
// as "not found": Find returns no records, FindOne and Update return nil,
// Delete returns 0.
type Adapter interface {
	Kind() models.BackendKind
	Find(ctx context.Context, object string, filter Filter) ([]Record, error)
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, object string, filter Filter) (Record, error)
	Create(ctx context.Context, object string, record Record) (Record, error)
	// Update returns the updated record, or nil, nil when nothing matches.
	Update(ctx context.Context, object string, filter Filter, patch Patch) (Record, error)
	Delete(ctx context.Context, object string, filter Filter) (int64, error)
	CreateObject(ctx context.Context, spec ObjectSpec) error
	DropObject(ctx context.Context, name string) error
	Close(ctx context.Context) error
}

// Bootstrapper is implemented by adapters that prepare their schema on connect.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) error
}

package models

import "strings"

// BackendKind identifies the storage technology behind a connection.
type BackendKind string

const (
	BackendRelational BackendKind = "relational"
	BackendDocument   BackendKind = "document"
)

// ParseBackendKind accepts the canonical names plus the short aliases
// "sql"/"postgres" and "nosql"/"mongo".
func ParseBackendKind(s string) (BackendKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "relational", "sql", "postgres", "postgresql":
		return BackendRelational, true
	case "document", "nosql", "mongo", "mongodb":
		return BackendDocument, true
	}
	return "", false
}

func (k BackendKind) String() string {
	return string(k)
}

package models

import "time"

// ExportType distinguishes how an export's data is stored and served.
type ExportType string

const (
	ExportStructured  ExportType = "structured"
	ExportRaw         ExportType = "raw"
	ExportJSON        ExportType = "json"
	ExportExternalAPI ExportType = "externalApi"
)

// DefaultAuthPrefix is used for external API exports without a prefix.
const DefaultAuthPrefix = "Bearer"

// FieldDefinition describes one column/attribute of a structured export.
type FieldDefinition struct {
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Label    string `json:"label,omitempty"`
	Required bool   `json:"required"`
}

// ExportRef is the reference to an export kept in the project metadata.
// The export's data lives in the backend object named CollectionName.
type ExportRef struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	CollectionName string            `json:"collection_name,omitempty"`
	Type           ExportType        `json:"type"`
	BackendKind    BackendKind       `json:"backend_kind,omitempty"`
	Fields         []FieldDefinition `json:"fields,omitempty"`
	Private        bool              `json:"private"`
	AllowedOrigins []string          `json:"allowed_origins"`
	APIURL         string            `json:"api_url,omitempty"`
	CredentialID   string            `json:"credential_id,omitempty"`
	Prefix         string            `json:"prefix,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// HasStorageObject reports whether the export owns a backend table/collection.
func (e *ExportRef) HasStorageObject() bool {
	return e.Type != ExportExternalAPI && e.CollectionName != ""
}

// AuthPrefix returns the configured header prefix or the default.
func (e *ExportRef) AuthPrefix() string {
	if e.Prefix == "" {
		return DefaultAuthPrefix
	}
	return e.Prefix
}

// Credential is a third-party API secret. EncryptedValue is never plaintext.
type Credential struct {
	ID             string `json:"id"`
	Key            string `json:"key"`
	EncryptedValue string `json:"-"`
}

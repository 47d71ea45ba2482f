package repositories

import (
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// Attribute names as stored in both backends.
const (
	fieldID             = backend.IDField
	fieldBackendKind    = "backendKind"
	fieldName           = "name"
	fieldDescription    = "description"
	fieldImage          = "image"
	fieldAllowUpload    = "allowUpload"
	fieldAllowSharing   = "allowSharing"
	fieldAllowedOrigins = "allowedOrigins"
	fieldMembers        = "members"
	fieldCreatedAt      = "createdAt"
	fieldUpdatedAt      = "updatedAt"

	fieldUserID     = "userId"
	fieldRole       = "role"
	fieldArchived   = "archived"
	fieldArchivedBy = "archivedBy"
	fieldArchivedAt = "archivedAt"

	fieldProjectID   = "projectId"
	fieldCredentials = "credentials"
	fieldExports     = "exports"
)

func projectToRecord(p *models.Project) backend.Record {
	rec := backend.Record{
		fieldBackendKind:    string(p.BackendKind),
		fieldName:           p.Name,
		fieldDescription:    p.Description,
		fieldImage:          p.Image,
		fieldAllowUpload:    p.AllowUpload,
		fieldAllowSharing:   p.AllowSharing,
		fieldAllowedOrigins: stringsOrEmpty(p.AllowedOrigins),
		fieldMembers:        membersToList(p.Members),
		fieldCreatedAt:      p.CreatedAt,
		fieldUpdatedAt:      p.UpdatedAt,
	}
	if p.ID != "" {
		rec[fieldID] = p.ID
	}
	return rec
}

func recordToProject(rec backend.Record) *models.Project {
	kind, _ := models.ParseBackendKind(rec.String(fieldBackendKind))
	return &models.Project{
		ID:             rec.ID(),
		BackendKind:    kind,
		Name:           rec.String(fieldName),
		Description:    rec.String(fieldDescription),
		Image:          rec.String(fieldImage),
		AllowUpload:    rec.Bool(fieldAllowUpload),
		AllowSharing:   rec.Bool(fieldAllowSharing),
		AllowedOrigins: asStringSlice(rec[fieldAllowedOrigins]),
		Members:        listToMembers(rec[fieldMembers]),
		CreatedAt:      asTime(rec[fieldCreatedAt]),
		UpdatedAt:      asTime(rec[fieldUpdatedAt]),
	}
}

func memberToMap(m models.Member) map[string]any {
	out := map[string]any{
		fieldUserID:     m.UserID,
		fieldRole:       m.Role,
		fieldArchived:   m.Archived,
		fieldArchivedBy: nil,
		fieldArchivedAt: nil,
	}
	if m.ArchivedBy != "" {
		out[fieldArchivedBy] = m.ArchivedBy
	}
	if m.ArchivedAt != nil {
		out[fieldArchivedAt] = *m.ArchivedAt
	}
	return out
}

func membersToList(members []models.Member) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = memberToMap(m)
	}
	return out
}

func listToMembers(v any) []models.Member {
	maps := asMapSlice(v)
	out := make([]models.Member, 0, len(maps))
	for _, m := range maps {
		rec := backend.Record(m)
		out = append(out, models.Member{
			UserID:     rec.String(fieldUserID),
			Role:       rec.String(fieldRole),
			Archived:   rec.Bool(fieldArchived),
			ArchivedBy: rec.String(fieldArchivedBy),
			ArchivedAt: asTimePtr(m[fieldArchivedAt]),
		})
	}
	return out
}

func credentialToMap(c models.Credential) map[string]any {
	return map[string]any{
		fieldID:          c.ID,
		"key":            c.Key,
		"encryptedValue": c.EncryptedValue,
	}
}

func exportRefToMap(e models.ExportRef) map[string]any {
	fields := make([]any, len(e.Fields))
	for i, f := range e.Fields {
		fields[i] = map[string]any{
			"name":     f.Name,
			"type":     f.Type,
			"label":    f.Label,
			"required": f.Required,
		}
	}
	return map[string]any{
		fieldID:             e.ID,
		fieldName:           e.Name,
		"collectionName":    e.CollectionName,
		"type":              string(e.Type),
		fieldBackendKind:    string(e.BackendKind),
		"fields":            fields,
		"private":           e.Private,
		fieldAllowedOrigins: stringsOrEmpty(e.AllowedOrigins),
		"apiUrl":            e.APIURL,
		"credentialId":      e.CredentialID,
		"prefix":            e.Prefix,
		fieldCreatedAt:      e.CreatedAt,
		fieldUpdatedAt:      e.UpdatedAt,
	}
}

func recordToMetadata(rec backend.Record) *models.ProjectMetadata {
	md := &models.ProjectMetadata{
		ID:          rec.ID(),
		ProjectID:   rec.String(fieldProjectID),
		Credentials: []models.Credential{},
		Exports:     []models.ExportRef{},
	}
	for _, m := range asMapSlice(rec[fieldCredentials]) {
		r := backend.Record(m)
		md.Credentials = append(md.Credentials, models.Credential{
			ID:             r.ID(),
			Key:            r.String("key"),
			EncryptedValue: r.String("encryptedValue"),
		})
	}
	for _, m := range asMapSlice(rec[fieldExports]) {
		md.Exports = append(md.Exports, mapToExportRef(m))
	}
	return md
}

func mapToExportRef(m map[string]any) models.ExportRef {
	r := backend.Record(m)
	kind, _ := models.ParseBackendKind(r.String(fieldBackendKind))
	ref := models.ExportRef{
		ID:             r.ID(),
		Name:           r.String(fieldName),
		CollectionName: r.String("collectionName"),
		Type:           models.ExportType(r.String("type")),
		BackendKind:    kind,
		Private:        r.Bool("private"),
		AllowedOrigins: asStringSlice(r[fieldAllowedOrigins]),
		APIURL:         r.String("apiUrl"),
		CredentialID:   r.String("credentialId"),
		Prefix:         r.String("prefix"),
		CreatedAt:      asTime(r[fieldCreatedAt]),
		UpdatedAt:      asTime(r[fieldUpdatedAt]),
	}
	for _, f := range asMapSlice(r["fields"]) {
		fr := backend.Record(f)
		ref.Fields = append(ref.Fields, models.FieldDefinition{
			Name:     fr.String("name"),
			Type:     fr.String("type"),
			Label:    fr.String("label"),
			Required: fr.Bool("required"),
		})
	}
	return ref
}

func recordToUser(rec backend.Record) *models.User {
	return &models.User{
		ID:       rec.String(fieldUserID),
		Username: rec.String("username"),
		Email:    rec.String("email"),
	}
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func asStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			} else if e != nil {
				out = append(out, fmt.Sprint(e))
			}
		}
		return out
	}
	return []string{}
}

func asMapSlice(v any) []map[string]any {
	switch t := v.(type) {
	case []map[string]any:
		return t
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, e := range t {
			switch m := e.(type) {
			case map[string]any:
				out = append(out, m)
			case backend.Record:
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func asTimePtr(v any) *time.Time {
	t := asTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

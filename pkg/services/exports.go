package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/access"
	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/audit"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
	"github.com/ekaya-inc/ekaya-datahub/pkg/repositories"
	"github.com/ekaya-inc/ekaya-datahub/pkg/sql"
	"github.com/ekaya-inc/ekaya-datahub/pkg/upstream"
)

// MaxObjectNameLength is the longest table/collection name an export may get.
// PostgreSQL truncates identifiers beyond 63 bytes.
const MaxObjectNameLength = 63

// Truncated slugs end in "-" plus this many hex digits of the full slug's hash.
const slugHashLength = 8

const (
	exportPrefix    = "export_"
	rawExportPrefix = "raw_"

	fieldProjectID = "projectId"
	fieldData      = "data"
	fieldMetadata  = "metadata"
	fieldKind      = "kind"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"

	// Document-backed structured exports keep one descriptor document next to the rows.
	metadataDocKind = "metadata"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

	// Attributes every export object carries; fields may not redefine them.
	reservedFieldNames = map[string]bool{
		backend.IDField: true,
		fieldProjectID:  true,
		fieldMetadata:   true,
		fieldData:       true,
		fieldCreatedAt:  true,
		fieldUpdatedAt:  true,
		fieldKind:       true,
	}
)

// Slug lower-cases name, collapses runs of non-alphanumerics to one hyphen
// and trims hyphens at both ends.
func Slug(name string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}

// CollectionName returns the backend object name of a structured export.
func CollectionName(projectID, name string) string {
	return objectName("", projectID, name)
}

// RawCollectionName returns the backend object name of a raw or json export.
func RawCollectionName(projectID, name string) string {
	return objectName(rawExportPrefix, projectID, name)
}

func objectName(prefix, projectID, name string) string {
	base := prefix + exportPrefix + projectID + "_"
	slug := Slug(name)
	room := MaxObjectNameLength - len(base)
	if room < 0 {
		room = 0
	}
	if len(slug) > room {
		slug = truncateSlug(slug, room)
	}
	return base + slug
}

// truncateSlug shortens slug to at most room bytes while keeping names that
// differ only past the cut distinct.
func truncateSlug(slug string, room int) string {
	sum := sha256.Sum256([]byte(slug))
	hash := hex.EncodeToString(sum[:])[:slugHashLength]
	keep := room - slugHashLength - 1
	if keep <= 0 {
		return hash[:min(room, slugHashLength)]
	}
	return strings.TrimRight(slug[:keep], "-") + "-" + hash
}

// UpstreamFetcher performs the live fetch behind an externalApi export.
type UpstreamFetcher interface {
	Fetch(ctx context.Context, req upstream.Request) (any, error)
}

// ExportOptions are the settings shared by every export type.
type ExportOptions struct {
	Name string
	// BackendKind selects where the export object lives. Empty means the project's backend.
	BackendKind    models.BackendKind
	Private        bool
	AllowedOrigins []string
}

// CreateStructuredExportRequest defines a typed table/collection export.
type CreateStructuredExportRequest struct {
	ExportOptions
	Fields []models.FieldDefinition
}

// CreateRawExportRequest stores one verbatim JSON payload.
type CreateRawExportRequest struct {
	ExportOptions
	// JSON selects type "json" instead of "raw".
	JSON bool
	// Data must be a JSON object or array.
	Data any
}

// CreateExternalAPIExportRequest proxies a live upstream API.
type CreateExternalAPIExportRequest struct {
	ExportOptions
	APIURL       string
	CredentialID string
	Prefix       string
	// Fields, when set, project the upstream response to these names.
	Fields []models.FieldDefinition
}

// UpdateExportRequest holds optional changes; nil fields are left as they are.
type UpdateExportRequest struct {
	Name           *string
	Private        *bool
	AllowedOrigins *[]string
	// Data replaces the payload of raw and json exports.
	Data any
	// Upstream settings apply to externalApi exports only.
	APIURL       *string
	CredentialID *string
	Prefix       *string
	Fields       *[]models.FieldDefinition
}

// PublicExportResult is the payload served to anonymous callers together
// with the value for the Access-Control-Allow-Origin header.
type PublicExportResult struct {
	Data        any
	AllowOrigin string
}

// ExportService provisions exports and serves their data.
type ExportService interface {
	CreateStructuredExport(ctx context.Context, auth models.AuthContext, projectID string, req CreateStructuredExportRequest) (*models.ExportRef, error)
	CreateRawExport(ctx context.Context, auth models.AuthContext, projectID string, req CreateRawExportRequest) (*models.ExportRef, error)
	CreateExternalAPIExport(ctx context.Context, auth models.AuthContext, projectID string, req CreateExternalAPIExportRequest) (*models.ExportRef, error)
	GetExport(ctx context.Context, auth models.AuthContext, projectID, exportID string) (*models.ExportRef, error)
	ListExports(ctx context.Context, auth models.AuthContext, projectID string) ([]models.ExportRef, error)
	UpdateExport(ctx context.Context, auth models.AuthContext, projectID, exportID string, req UpdateExportRequest) (*models.ExportRef, error)
	DeleteExport(ctx context.Context, auth models.AuthContext, projectID, exportID string) error
	// InsertExportRows appends rows to a structured export.
	InsertExportRows(ctx context.Context, auth models.AuthContext, projectID, exportID string, rows []map[string]any) ([]backend.Record, error)
	ReadExportData(ctx context.Context, auth models.AuthContext, projectID, exportID string) (any, error)
	// ReadPublicExport serves a non-private export to an anonymous caller.
	// Private and unknown exports are both reported as ErrNotFound.
	ReadPublicExport(ctx context.Context, projectID, exportID, origin string, hasOrigin bool) (*PublicExportResult, error)
	// CheckPublicAccess answers a CORS preflight and returns the allowed origin.
	CheckPublicAccess(ctx context.Context, projectID, exportID, origin string, hasOrigin bool) (string, error)
}

type exportService struct {
	guard       projectGuard
	conns       *backend.ConnectionRegistry
	projects    repositories.ProjectRepository
	metadata    repositories.ProjectMetadataRepository
	credentials CredentialService
	upstream    UpstreamFetcher
	auditor     *audit.SecurityAuditor
	now         func() time.Time
	logger      *zap.Logger
}

// NewExportService creates a new export service with dependencies.
func NewExportService(
	conns *backend.ConnectionRegistry,
	projects repositories.ProjectRepository,
	metadata repositories.ProjectMetadataRepository,
	credentials CredentialService,
	fetcher UpstreamFetcher,
	logger *zap.Logger,
) ExportService {
	return &exportService{
		guard:       projectGuard{projects: projects},
		conns:       conns,
		projects:    projects,
		metadata:    metadata,
		credentials: credentials,
		upstream:    fetcher,
		auditor:     audit.NewSecurityAuditor(logger),
		now:         time.Now,
		logger:      logger.Named("exports"),
	}
}

// draft validates the shared options and returns an unsaved reference.
func (s *exportService) draft(ctx context.Context, auth models.AuthContext, projectID string, opts ExportOptions, typ models.ExportType) (*models.ExportRef, error) {
	project, _, err := s.guard.load(ctx, auth, projectID, levelEditor)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(opts.Name)
	if Slug(name) == "" {
		return nil, fmt.Errorf("%w: export name must contain a letter or digit", apperrors.ErrInvalidInput)
	}

	if _, err := access.EffectiveOrigins(project.AllowedOrigins, opts.AllowedOrigins); err != nil {
		return nil, err
	}

	kind := opts.BackendKind
	if kind == "" {
		kind = project.BackendKind
	}

	ref := &models.ExportRef{
		ID:             uuid.NewString(),
		Name:           name,
		Type:           typ,
		Private:        opts.Private,
		AllowedOrigins: lo.Ternary(opts.AllowedOrigins == nil, []string{}, opts.AllowedOrigins),
	}

	switch typ {
	case models.ExportRaw, models.ExportJSON:
		ref.CollectionName = RawCollectionName(project.ID, name)
	default:
		ref.CollectionName = CollectionName(project.ID, name)
	}
	if typ != models.ExportExternalAPI {
		if _, err := s.conns.ForKind(kind); err != nil {
			return nil, err
		}
		ref.BackendKind = kind
	}

	md, err := s.metadata.Ensure(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project metadata: %w", err)
	}
	for _, existing := range md.Exports {
		if existing.CollectionName == ref.CollectionName {
			return nil, fmt.Errorf("%w: export %q already exists", apperrors.ErrConflict, existing.Name)
		}
	}

	now := s.now().UTC()
	ref.CreatedAt = now
	ref.UpdatedAt = now
	return ref, nil
}

func (s *exportService) CreateStructuredExport(ctx context.Context, auth models.AuthContext, projectID string, req CreateStructuredExportRequest) (*models.ExportRef, error) {
	if err := s.checkFields(ctx, auth, projectID, req.Fields, true); err != nil {
		return nil, err
	}

	ref, err := s.draft(ctx, auth, projectID, req.ExportOptions, models.ExportStructured)
	if err != nil {
		return nil, err
	}
	ref.Fields = req.Fields

	conn, err := s.conns.ForKind(ref.BackendKind)
	if err != nil {
		return nil, err
	}
	if err := s.provision(ctx, projectID, conn, backend.ObjectSpec{Name: ref.CollectionName, Fields: ref.Fields}); err != nil {
		return nil, err
	}

	if conn.Kind == models.BackendDocument {
		descriptor := backend.Record{
			fieldProjectID: projectID,
			fieldKind:      metadataDocKind,
			"fields":       fieldsToRecords(ref.Fields),
			fieldCreatedAt: ref.CreatedAt,
		}
		if _, err := conn.Adapter.Create(ctx, ref.CollectionName, descriptor); err != nil {
			s.dropQuietly(ctx, conn, ref.CollectionName)
			return nil, fmt.Errorf("failed to write export descriptor: %w", err)
		}
	}

	return s.register(ctx, projectID, ref)
}

func (s *exportService) CreateRawExport(ctx context.Context, auth models.AuthContext, projectID string, req CreateRawExportRequest) (*models.ExportRef, error) {
	if err := validatePayload(req.Data); err != nil {
		return nil, err
	}

	typ := lo.Ternary(req.JSON, models.ExportJSON, models.ExportRaw)
	ref, err := s.draft(ctx, auth, projectID, req.ExportOptions, typ)
	if err != nil {
		return nil, err
	}

	conn, err := s.conns.ForKind(ref.BackendKind)
	if err != nil {
		return nil, err
	}
	if err := s.provision(ctx, projectID, conn, backend.ObjectSpec{Name: ref.CollectionName, Raw: true}); err != nil {
		return nil, err
	}
	if _, err := conn.Adapter.Create(ctx, ref.CollectionName, backend.Record{
		fieldProjectID: projectID,
		fieldData:      req.Data,
	}); err != nil {
		s.dropQuietly(ctx, conn, ref.CollectionName)
		return nil, fmt.Errorf("failed to store export payload: %w", err)
	}

	return s.register(ctx, projectID, ref)
}

func (s *exportService) CreateExternalAPIExport(ctx context.Context, auth models.AuthContext, projectID string, req CreateExternalAPIExportRequest) (*models.ExportRef, error) {
	if err := upstream.ValidateURL(req.APIURL); err != nil {
		return nil, err
	}
	if err := s.checkFields(ctx, auth, projectID, req.Fields, false); err != nil {
		return nil, err
	}

	ref, err := s.draft(ctx, auth, projectID, req.ExportOptions, models.ExportExternalAPI)
	if err != nil {
		return nil, err
	}
	if err := s.requireCredential(ctx, projectID, req.CredentialID); err != nil {
		return nil, err
	}

	ref.APIURL = req.APIURL
	ref.CredentialID = req.CredentialID
	ref.Prefix = strings.TrimSpace(req.Prefix)
	ref.Fields = req.Fields

	if err := s.metadata.AddExport(ctx, projectID, *ref); err != nil {
		return nil, fmt.Errorf("failed to save export: %w", err)
	}
	s.logCreated(projectID, ref)
	return ref, nil
}

// provision creates the export object. draft has already checked that no
// reference owns the name, so anything found under it is an orphan from an
// earlier failed create and is dropped first.
func (s *exportService) provision(ctx context.Context, projectID string, conn *backend.Connection, spec backend.ObjectSpec) error {
	if err := conn.Adapter.DropObject(ctx, spec.Name); err != nil {
		return fmt.Errorf("failed to clear stale export object: %w", err)
	}
	if err := conn.Adapter.CreateObject(ctx, spec); err != nil {
		return fmt.Errorf("failed to create export object: %w", err)
	}
	s.logger.Debug("Provisioned export object",
		zap.String("project_id", projectID),
		zap.String("collection", spec.Name),
		zap.String("backend_kind", string(conn.Kind)))
	return nil
}

// register appends the reference once the object exists. A failure here
// leaves the object orphaned; it is logged for cleanup and never served.
func (s *exportService) register(ctx context.Context, projectID string, ref *models.ExportRef) (*models.ExportRef, error) {
	if err := s.metadata.AddExport(ctx, projectID, *ref); err != nil {
		s.logger.Error("Export object orphaned: reference could not be saved",
			zap.String("project_id", projectID),
			zap.String("collection", ref.CollectionName),
			zap.String("backend_kind", string(ref.BackendKind)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to save export: %w", err)
	}
	s.logCreated(projectID, ref)
	return ref, nil
}

func (s *exportService) logCreated(projectID string, ref *models.ExportRef) {
	s.logger.Info("Created export",
		zap.String("project_id", projectID),
		zap.String("export_id", ref.ID),
		zap.String("type", string(ref.Type)),
		zap.String("collection", ref.CollectionName))
}

func (s *exportService) dropQuietly(ctx context.Context, conn *backend.Connection, name string) {
	if err := conn.Adapter.DropObject(ctx, name); err != nil {
		s.logger.Warn("Failed to drop export object after create failure",
			zap.String("collection", name),
			zap.Error(err))
	}
}

func (s *exportService) requireCredential(ctx context.Context, projectID, credentialID string) error {
	if credentialID == "" {
		return nil
	}
	md, err := s.metadata.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if md.Credential(credentialID) == nil {
		return fmt.Errorf("%w: credential %s does not exist", apperrors.ErrInvalidInput, credentialID)
	}
	return nil
}

func (s *exportService) GetExport(ctx context.Context, auth models.AuthContext, projectID, exportID string) (*models.ExportRef, error) {
	if _, _, err := s.guard.load(ctx, auth, projectID, levelMember); err != nil {
		return nil, err
	}
	ref, _, err := s.find(ctx, projectID, exportID)
	return ref, err
}

func (s *exportService) ListExports(ctx context.Context, auth models.AuthContext, projectID string) ([]models.ExportRef, error) {
	if _, _, err := s.guard.load(ctx, auth, projectID, levelMember); err != nil {
		return nil, err
	}
	md, err := s.metadata.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return []models.ExportRef{}, nil
		}
		return nil, fmt.Errorf("failed to load project metadata: %w", err)
	}
	return md.Exports, nil
}

// UpdateExport never changes the collection name; a rename only changes
// the display name.
func (s *exportService) UpdateExport(ctx context.Context, auth models.AuthContext, projectID, exportID string, req UpdateExportRequest) (*models.ExportRef, error) {
	project, _, err := s.guard.load(ctx, auth, projectID, levelEditor)
	if err != nil {
		return nil, err
	}
	current, _, err := s.find(ctx, projectID, exportID)
	if err != nil {
		return nil, err
	}
	ref := *current

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if Slug(name) == "" {
			return nil, fmt.Errorf("%w: export name must contain a letter or digit", apperrors.ErrInvalidInput)
		}
		ref.Name = name
	}
	if req.Private != nil {
		ref.Private = *req.Private
	}
	if req.AllowedOrigins != nil {
		if _, err := access.EffectiveOrigins(project.AllowedOrigins, *req.AllowedOrigins); err != nil {
			return nil, err
		}
		ref.AllowedOrigins = *req.AllowedOrigins
	}

	if ref.Type == models.ExportExternalAPI {
		if req.APIURL != nil {
			if err := upstream.ValidateURL(*req.APIURL); err != nil {
				return nil, err
			}
			ref.APIURL = *req.APIURL
		}
		if req.CredentialID != nil {
			if err := s.requireCredential(ctx, projectID, *req.CredentialID); err != nil {
				return nil, err
			}
			ref.CredentialID = *req.CredentialID
		}
		if req.Prefix != nil {
			ref.Prefix = strings.TrimSpace(*req.Prefix)
		}
		if req.Fields != nil {
			if err := s.checkFields(ctx, auth, projectID, *req.Fields, false); err != nil {
				return nil, err
			}
			ref.Fields = *req.Fields
		}
	} else if req.APIURL != nil || req.CredentialID != nil || req.Prefix != nil || req.Fields != nil {
		return nil, fmt.Errorf("%w: upstream settings apply to externalApi exports only", apperrors.ErrInvalidInput)
	}

	if req.Data != nil {
		if ref.Type != models.ExportRaw && ref.Type != models.ExportJSON {
			return nil, fmt.Errorf("%w: only raw and json exports hold a payload", apperrors.ErrInvalidInput)
		}
		if err := s.rewritePayload(ctx, projectID, &ref, req.Data); err != nil {
			return nil, err
		}
	}

	ref.UpdatedAt = s.now().UTC()
	if err := s.metadata.UpdateExport(ctx, projectID, ref); err != nil {
		return nil, fmt.Errorf("failed to update export: %w", err)
	}
	return &ref, nil
}

func (s *exportService) rewritePayload(ctx context.Context, projectID string, ref *models.ExportRef, data any) error {
	if err := validatePayload(data); err != nil {
		return err
	}
	conn, err := s.conns.ForKind(ref.BackendKind)
	if err != nil {
		return err
	}
	updated, err := conn.Adapter.Update(ctx, ref.CollectionName, backend.Where(fieldProjectID, projectID),
		backend.ReplaceFields{fieldData: data, fieldUpdatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to update export payload: %w", err)
	}
	if updated == nil {
		if _, err := conn.Adapter.Create(ctx, ref.CollectionName, backend.Record{
			fieldProjectID: projectID,
			fieldData:      data,
		}); err != nil {
			return fmt.Errorf("failed to store export payload: %w", err)
		}
	}
	return nil
}

func (s *exportService) DeleteExport(ctx context.Context, auth models.AuthContext, projectID, exportID string) error {
	if _, _, err := s.guard.load(ctx, auth, projectID, levelEditor); err != nil {
		return err
	}
	ref, _, err := s.find(ctx, projectID, exportID)
	if err != nil {
		return err
	}

	if ref.HasStorageObject() {
		if err := dropExportObject(ctx, s.conns, *ref); err != nil {
			return fmt.Errorf("failed to drop export object: %w", err)
		}
	}
	if err := s.metadata.RemoveExport(ctx, projectID, exportID); err != nil {
		return fmt.Errorf("failed to remove export reference: %w", err)
	}

	s.logger.Info("Deleted export",
		zap.String("project_id", projectID),
		zap.String("export_id", exportID),
		zap.String("collection", ref.CollectionName))
	return nil
}

func (s *exportService) InsertExportRows(ctx context.Context, auth models.AuthContext, projectID, exportID string, rows []map[string]any) ([]backend.Record, error) {
	if _, _, err := s.guard.load(ctx, auth, projectID, levelEditor); err != nil {
		return nil, err
	}
	ref, _, err := s.find(ctx, projectID, exportID)
	if err != nil {
		return nil, err
	}
	if ref.Type != models.ExportStructured {
		return nil, fmt.Errorf("%w: rows can only be added to structured exports", apperrors.ErrInvalidInput)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows given", apperrors.ErrInvalidInput)
	}
	for i, row := range rows {
		if err := validateRow(ref.Fields, row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}

	conn, err := s.conns.ForKind(ref.BackendKind)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	out := make([]backend.Record, 0, len(rows))
	for _, row := range rows {
		rec := backend.Record(lo.Assign(row, map[string]any{fieldProjectID: projectID}))
		if conn.Kind == models.BackendDocument {
			rec[fieldCreatedAt] = now
		}
		created, err := conn.Adapter.Create(ctx, ref.CollectionName, rec)
		if err != nil {
			return nil, fmt.Errorf("failed to insert export row: %w", err)
		}
		out = append(out, stripRow(created))
	}
	return out, nil
}

func (s *exportService) ReadExportData(ctx context.Context, auth models.AuthContext, projectID, exportID string) (any, error) {
	if _, _, err := s.guard.load(ctx, auth, projectID, levelMember); err != nil {
		return nil, err
	}
	ref, _, err := s.find(ctx, projectID, exportID)
	if err != nil {
		return nil, err
	}
	return s.readData(ctx, projectID, ref)
}

func (s *exportService) ReadPublicExport(ctx context.Context, projectID, exportID, origin string, hasOrigin bool) (*PublicExportResult, error) {
	ref, allowOrigin, err := s.resolvePublic(ctx, projectID, exportID, origin, hasOrigin)
	if err != nil {
		return nil, err
	}
	data, err := s.readData(ctx, projectID, ref)
	if err != nil {
		return nil, err
	}
	return &PublicExportResult{Data: data, AllowOrigin: allowOrigin}, nil
}

func (s *exportService) CheckPublicAccess(ctx context.Context, projectID, exportID, origin string, hasOrigin bool) (string, error) {
	_, allowOrigin, err := s.resolvePublic(ctx, projectID, exportID, origin, hasOrigin)
	return allowOrigin, err
}

func (s *exportService) resolvePublic(ctx context.Context, projectID, exportID, origin string, hasOrigin bool) (*models.ExportRef, string, error) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, "", err
	}
	ref, _, err := s.find(ctx, project.ID, exportID)
	if err != nil {
		return nil, "", err
	}
	if ref.Private {
		return nil, "", fmt.Errorf("export %s: %w", exportID, apperrors.ErrNotFound)
	}

	effective, err := access.Check(project.AllowedOrigins, ref.AllowedOrigins, origin, hasOrigin)
	if err != nil {
		if errors.Is(err, apperrors.ErrOriginNotAllowed) {
			s.auditor.LogOriginDenied(ctx, projectID, exportID, origin, hasOrigin)
		}
		return nil, "", err
	}
	return ref, access.AllowOriginHeader(effective, origin, hasOrigin), nil
}

// readData returns the export payload without any wrapper: rows for
// structured exports, the stored blob for raw/json, the live upstream
// response for externalApi.
func (s *exportService) readData(ctx context.Context, projectID string, ref *models.ExportRef) (any, error) {
	switch ref.Type {
	case models.ExportStructured:
		conn, err := s.conns.ForKind(ref.BackendKind)
		if err != nil {
			return nil, err
		}
		recs, err := conn.Adapter.Find(ctx, ref.CollectionName, backend.Where(fieldProjectID, projectID))
		if err != nil {
			return nil, fmt.Errorf("failed to read export rows: %w", err)
		}
		rows := make([]backend.Record, 0, len(recs))
		for _, r := range recs {
			if r.String(fieldKind) == metadataDocKind {
				continue
			}
			rows = append(rows, stripRow(r))
		}
		return rows, nil

	case models.ExportRaw, models.ExportJSON:
		conn, err := s.conns.ForKind(ref.BackendKind)
		if err != nil {
			return nil, err
		}
		rec, err := conn.Adapter.FindOne(ctx, ref.CollectionName, backend.Where(fieldProjectID, projectID))
		if err != nil {
			return nil, fmt.Errorf("failed to read export payload: %w", err)
		}
		if rec == nil {
			return nil, fmt.Errorf("export %s payload: %w", ref.ID, apperrors.ErrNotFound)
		}
		return rec[fieldData], nil

	case models.ExportExternalAPI:
		return s.fetchUpstream(ctx, projectID, ref)

	default:
		return nil, fmt.Errorf("%w: unknown export type %q", apperrors.ErrInvalidInput, ref.Type)
	}
}

func (s *exportService) fetchUpstream(ctx context.Context, projectID string, ref *models.ExportRef) (any, error) {
	if s.upstream == nil {
		return nil, fmt.Errorf("upstream fetching is not configured")
	}
	req := upstream.Request{
		URL:    ref.APIURL,
		Fields: lo.Map(ref.Fields, func(f models.FieldDefinition, _ int) string { return f.Name }),
	}
	if ref.CredentialID != "" {
		secret, err := s.credentials.ResolveSecret(ctx, projectID, ref.CredentialID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve export credential: %w", err)
		}
		req.Authorization = ref.AuthPrefix() + " " + secret
	}
	return s.upstream.Fetch(ctx, req)
}

func (s *exportService) find(ctx context.Context, projectID, exportID string) (*models.ExportRef, *models.ProjectMetadata, error) {
	md, err := s.metadata.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, fmt.Errorf("export %s: %w", exportID, apperrors.ErrNotFound)
		}
		return nil, nil, err
	}
	ref := md.Export(exportID)
	if ref == nil {
		return nil, nil, fmt.Errorf("export %s: %w", exportID, apperrors.ErrNotFound)
	}
	return ref, md, nil
}

// dropExportObject removes the table/collection behind an export.
func dropExportObject(ctx context.Context, conns *backend.ConnectionRegistry, ref models.ExportRef) error {
	conn, err := conns.ForKind(ref.BackendKind)
	if err != nil {
		return err
	}
	return conn.Adapter.DropObject(ctx, ref.CollectionName)
}

// checkFields audits names libinjection flags before validating them.
func (s *exportService) checkFields(ctx context.Context, auth models.AuthContext, projectID string, fields []models.FieldDefinition, required bool) error {
	for _, f := range fields {
		if r := sql.CheckForInjection(f.Name, f.Name); r != nil {
			s.auditor.LogFieldInjectionAttempt(ctx, projectID, auth.UserID, audit.FieldInjectionDetails{
				FieldName:   f.Name,
				Fingerprint: r.Fingerprint,
			})
		}
	}
	return validateFields(fields, required)
}

func validateFields(fields []models.FieldDefinition, required bool) error {
	if required && len(fields) == 0 {
		return fmt.Errorf("%w: at least one field is required", apperrors.ErrInvalidInput)
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		if reservedFieldNames[f.Name] {
			return fmt.Errorf("%w: field name %q is reserved", apperrors.ErrInvalidInput, f.Name)
		}
		names[i] = f.Name
	}
	return sql.ValidateFieldNames(names)
}

func validateRow(fields []models.FieldDefinition, row map[string]any) error {
	known := lo.SliceToMap(fields, func(f models.FieldDefinition) (string, models.FieldDefinition) {
		return f.Name, f
	})
	for key := range row {
		if _, ok := known[key]; !ok {
			return fmt.Errorf("%w: unknown field %q", apperrors.ErrInvalidInput, key)
		}
	}
	for _, f := range fields {
		if v, ok := row[f.Name]; f.Required && (!ok || v == nil) {
			return fmt.Errorf("%w: field %q is required", apperrors.ErrInvalidInput, f.Name)
		}
	}
	return nil
}

// validatePayload accepts JSON objects and arrays only.
func validatePayload(data any) error {
	switch data.(type) {
	case map[string]any, []any:
		return nil
	default:
		return fmt.Errorf("%w: export data must be a JSON object or array", apperrors.ErrInvalidInput)
	}
}

// stripRow drops the internal attributes from a structured row.
func stripRow(r backend.Record) backend.Record {
	return backend.Record(lo.OmitByKeys(map[string]any(r), []string{fieldProjectID, fieldMetadata}))
}

func fieldsToRecords(fields []models.FieldDefinition) []any {
	return lo.Map(fields, func(f models.FieldDefinition, _ int) any {
		return map[string]any{"name": f.Name, "type": f.Type, "label": f.Label, "required": f.Required}
	})
}

// Ensure exportService implements ExportService at compile time.
var _ ExportService = (*exportService)(nil)

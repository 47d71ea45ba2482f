package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/auth"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
	"github.com/ekaya-inc/ekaya-datahub/pkg/services"
	"github.com/ekaya-inc/ekaya-datahub/pkg/storage"
)

// authedRequest builds a request carrying claims for userID.
func authedRequest(method, target, body, userID string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		Username:         userID + "-name",
		Role:             models.RoleEditor,
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims, "test-token"))
}

// mockAuthService accepts every request as the configured user, or rejects
// all of them when claims is nil.
type mockAuthService struct {
	claims *auth.Claims
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	if m.claims == nil {
		return nil, "", auth.ErrMissingAuthorization
	}
	return m.claims, "test-token", nil
}

type mockProjectService struct {
	project   *models.Project
	items     []models.ProjectListItem
	deleted   *services.DeleteProjectResult
	err       error
	createReq services.CreateProjectRequest
	updateReq services.UpdateProjectRequest
	archived  *bool
	auth      models.AuthContext
	calls     []string
}

func (m *mockProjectService) Create(ctx context.Context, auth models.AuthContext, req services.CreateProjectRequest) (*models.Project, error) {
	m.calls = append(m.calls, "Create")
	m.auth, m.createReq = auth, req
	return m.project, m.err
}

func (m *mockProjectService) List(ctx context.Context, auth models.AuthContext, archived *bool) ([]models.ProjectListItem, error) {
	m.calls = append(m.calls, "List")
	m.auth, m.archived = auth, archived
	return m.items, m.err
}

func (m *mockProjectService) Get(ctx context.Context, auth models.AuthContext, projectID string) (*models.Project, error) {
	m.calls = append(m.calls, "Get:"+projectID)
	m.auth = auth
	return m.project, m.err
}

func (m *mockProjectService) Update(ctx context.Context, auth models.AuthContext, projectID string, req services.UpdateProjectRequest) (*models.Project, error) {
	m.calls = append(m.calls, "Update:"+projectID)
	m.auth, m.updateReq = auth, req
	return m.project, m.err
}

func (m *mockProjectService) Delete(ctx context.Context, auth models.AuthContext, projectID string) (*services.DeleteProjectResult, error) {
	m.calls = append(m.calls, "Delete:"+projectID)
	return m.deleted, m.err
}

func (m *mockProjectService) Archive(ctx context.Context, auth models.AuthContext, projectID string) ([]models.ProjectListItem, error) {
	m.calls = append(m.calls, "Archive:"+projectID)
	return m.items, m.err
}

func (m *mockProjectService) Unarchive(ctx context.Context, auth models.AuthContext, projectID string) ([]models.ProjectListItem, error) {
	m.calls = append(m.calls, "Unarchive:"+projectID)
	return m.items, m.err
}

type mockMemberService struct {
	members []models.Member
	err     error
	calls   []string
}

func (m *mockMemberService) List(ctx context.Context, auth models.AuthContext, projectID string) ([]models.Member, error) {
	m.calls = append(m.calls, "List:"+projectID)
	return m.members, m.err
}

func (m *mockMemberService) Add(ctx context.Context, auth models.AuthContext, projectID, userID, role string) ([]models.Member, error) {
	m.calls = append(m.calls, "Add:"+userID+":"+role)
	return m.members, m.err
}

func (m *mockMemberService) UpdateRole(ctx context.Context, auth models.AuthContext, projectID, userID, role string) ([]models.Member, error) {
	m.calls = append(m.calls, "UpdateRole:"+userID+":"+role)
	return m.members, m.err
}

func (m *mockMemberService) Remove(ctx context.Context, auth models.AuthContext, projectID, userID string) ([]models.Member, error) {
	m.calls = append(m.calls, "Remove:"+userID)
	return m.members, m.err
}

type mockFileService struct {
	files       []storage.FileInfo
	url         *storage.PresignedURL
	project     *models.Project
	err         error
	contentType string
	imageURL    string
}

func (m *mockFileService) ListFiles(ctx context.Context, auth models.AuthContext, projectID string) ([]storage.FileInfo, error) {
	return m.files, m.err
}

func (m *mockFileService) GetUploadURL(ctx context.Context, auth models.AuthContext, projectID, contentType string) (*storage.PresignedURL, error) {
	m.contentType = contentType
	return m.url, m.err
}

func (m *mockFileService) GetImageUploadURL(ctx context.Context, auth models.AuthContext, projectID string) (*storage.PresignedURL, error) {
	return m.url, m.err
}

func (m *mockFileService) SetImage(ctx context.Context, auth models.AuthContext, projectID, imageURL string) (*models.Project, error) {
	m.imageURL = imageURL
	return m.project, m.err
}

func (m *mockFileService) DeleteImage(ctx context.Context, auth models.AuthContext, projectID string) (*models.Project, error) {
	return m.project, m.err
}

type mockCredentialService struct {
	summary   *services.CredentialSummary
	summaries []services.CredentialSummary
	err       error
	key       string
	value     string
	updateReq services.UpdateCredentialRequest
	deleted   string
}

func (m *mockCredentialService) Add(ctx context.Context, auth models.AuthContext, projectID, key, value string) (*services.CredentialSummary, error) {
	m.key, m.value = key, value
	return m.summary, m.err
}

func (m *mockCredentialService) Update(ctx context.Context, auth models.AuthContext, projectID, credentialID string, req services.UpdateCredentialRequest) (*services.CredentialSummary, error) {
	m.updateReq = req
	return m.summary, m.err
}

func (m *mockCredentialService) Delete(ctx context.Context, auth models.AuthContext, projectID, credentialID string) error {
	m.deleted = credentialID
	return m.err
}

func (m *mockCredentialService) List(ctx context.Context, auth models.AuthContext, projectID string) ([]services.CredentialSummary, error) {
	return m.summaries, m.err
}

func (m *mockCredentialService) ResolveSecret(ctx context.Context, projectID, credentialID string) (string, error) {
	return "", m.err
}

type mockExportService struct {
	ref         *models.ExportRef
	refs        []models.ExportRef
	data        any
	rows        []backend.Record
	public      *services.PublicExportResult
	allowOrigin string
	err         error

	structuredReq services.CreateStructuredExportRequest
	rawReq        services.CreateRawExportRequest
	externalReq   services.CreateExternalAPIExportRequest
	updateReq     services.UpdateExportRequest
	insertedRows  []map[string]any
	origin        string
	hasOrigin     bool
	calls         []string
}

func (m *mockExportService) CreateStructuredExport(ctx context.Context, auth models.AuthContext, projectID string, req services.CreateStructuredExportRequest) (*models.ExportRef, error) {
	m.structuredReq = req
	return m.ref, m.err
}

func (m *mockExportService) CreateRawExport(ctx context.Context, auth models.AuthContext, projectID string, req services.CreateRawExportRequest) (*models.ExportRef, error) {
	m.rawReq = req
	return m.ref, m.err
}

func (m *mockExportService) CreateExternalAPIExport(ctx context.Context, auth models.AuthContext, projectID string, req services.CreateExternalAPIExportRequest) (*models.ExportRef, error) {
	m.externalReq = req
	return m.ref, m.err
}

func (m *mockExportService) GetExport(ctx context.Context, auth models.AuthContext, projectID, exportID string) (*models.ExportRef, error) {
	m.calls = append(m.calls, "Get:"+exportID)
	return m.ref, m.err
}

func (m *mockExportService) ListExports(ctx context.Context, auth models.AuthContext, projectID string) ([]models.ExportRef, error) {
	return m.refs, m.err
}

func (m *mockExportService) UpdateExport(ctx context.Context, auth models.AuthContext, projectID, exportID string, req services.UpdateExportRequest) (*models.ExportRef, error) {
	m.updateReq = req
	return m.ref, m.err
}

func (m *mockExportService) DeleteExport(ctx context.Context, auth models.AuthContext, projectID, exportID string) error {
	m.calls = append(m.calls, "Delete:"+exportID)
	return m.err
}

func (m *mockExportService) InsertExportRows(ctx context.Context, auth models.AuthContext, projectID, exportID string, rows []map[string]any) ([]backend.Record, error) {
	m.insertedRows = rows
	return m.rows, m.err
}

func (m *mockExportService) ReadExportData(ctx context.Context, auth models.AuthContext, projectID, exportID string) (any, error) {
	return m.data, m.err
}

func (m *mockExportService) ReadPublicExport(ctx context.Context, projectID, exportID, origin string, hasOrigin bool) (*services.PublicExportResult, error) {
	m.origin, m.hasOrigin = origin, hasOrigin
	return m.public, m.err
}

func (m *mockExportService) CheckPublicAccess(ctx context.Context, projectID, exportID, origin string, hasOrigin bool) (string, error) {
	m.origin, m.hasOrigin = origin, hasOrigin
	return m.allowOrigin, m.err
}

type mockPinger struct {
	results map[string]string
}

func (m *mockPinger) Ping(ctx context.Context) map[string]string {
	return m.results
}

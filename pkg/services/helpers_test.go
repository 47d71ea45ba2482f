package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend/backendtest"
	"github.com/ekaya-inc/ekaya-datahub/pkg/crypto"
	"github.com/ekaya-inc/ekaya-datahub/pkg/federation"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
	"github.com/ekaya-inc/ekaya-datahub/pkg/repositories"
	"github.com/ekaya-inc/ekaya-datahub/pkg/storage"
	"github.com/ekaya-inc/ekaya-datahub/pkg/upstream"
)

const testEncryptionKey = "6b1f0c3a9e4d7b2c8a5f1e0d3c6b9a8f7e2d1c0b4a3f6e5d8c7b0a9f2e1d4c3b"

// serviceFixture wires the services against two in-memory backends:
// relational "pg" (primary) and document "mongo".
type serviceFixture struct {
	rel      *backendtest.Adapter
	doc      *backendtest.Adapter
	conns    *backend.ConnectionRegistry
	projects repositories.ProjectRepository
	metadata repositories.ProjectMetadataRepository
	users    repositories.UserRepository
	store    *fakeStorage
	fetcher  *fakeFetcher
	logger   *zap.Logger
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	return newServiceFixtureWithLogger(t, zaptest.NewLogger(t))
}

// newRelationalOnlyFixture has no document backend, so project metadata
// cannot be stored.
func newRelationalOnlyFixture(t *testing.T) *serviceFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &serviceFixture{
		rel:     backendtest.New(models.BackendRelational),
		conns:   backend.NewConnectionRegistry(logger),
		store:   &fakeStorage{},
		fetcher: &fakeFetcher{response: map[string]any{"ok": true}},
		logger:  logger,
	}
	f.conns.Add(f.rel.Connection("pg", true))
	f.wire()
	return f
}

func newServiceFixtureWithLogger(t *testing.T, logger *zap.Logger) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		rel:     backendtest.New(models.BackendRelational),
		doc:     backendtest.New(models.BackendDocument),
		conns:   backend.NewConnectionRegistry(logger),
		store:   &fakeStorage{},
		fetcher: &fakeFetcher{response: map[string]any{"ok": true}},
		logger:  logger,
	}
	f.conns.Add(f.rel.Connection("pg", true))
	f.conns.Add(f.doc.Connection("mongo", false))
	f.wire()
	return f
}

func (f *serviceFixture) wire() {
	reg := federation.NewRegistry(f.conns, f.logger)
	f.projects = repositories.NewProjectRepository(reg.Define(repositories.ProjectDefinition()))
	f.metadata = repositories.NewProjectMetadataRepository(reg.Define(repositories.MetadataDefinition()))
	f.users = repositories.NewUserRepository(reg.Define(repositories.UserDefinition("pg")))
}

func (f *serviceFixture) projectService() ProjectService {
	return NewProjectService(f.conns, f.projects, f.metadata, f.users, f.store, f.logger)
}

func (f *serviceFixture) memberService() MemberService {
	return NewMemberService(f.projects, f.users, f.logger)
}

func (f *serviceFixture) fileService() FileService {
	return NewFileService(f.projects, f.store, f.logger)
}

func (f *serviceFixture) credentialService(t *testing.T) CredentialService {
	t.Helper()
	cipher, err := crypto.NewCredentialCipher(testEncryptionKey)
	require.NoError(t, err)
	return NewCredentialService(f.projects, f.metadata, cipher, f.logger)
}

func (f *serviceFixture) exportService(t *testing.T) ExportService {
	t.Helper()
	return NewExportService(f.conns, f.projects, f.metadata, f.credentialService(t), f.fetcher, f.logger)
}

// seedProject stores a project directly. The first member is admin, the
// rest are viewers.
func (f *serviceFixture) seedProject(t *testing.T, kind models.BackendKind, origins []string, memberIDs ...string) *models.Project {
	t.Helper()
	p := &models.Project{
		BackendKind:    kind,
		Name:           "Project " + string(kind),
		AllowedOrigins: origins,
	}
	for i, id := range memberIDs {
		role := models.RoleViewer
		if i == 0 {
			role = models.RoleAdmin
		}
		p.Members = append(p.Members, models.Member{UserID: id, Role: role})
	}
	require.NoError(t, f.projects.Create(context.Background(), p))
	return p
}

func authFor(userID string) models.AuthContext {
	return models.AuthContext{UserID: userID, Username: userID + "-name", Role: models.RoleEditor}
}

// fakeStorage records calls to the storage adapter.
type fakeStorage struct {
	mu             sync.Mutex
	deletedDirs    []string
	deletedImages  []string
	presignedTypes []string
	files          []storage.FileInfo
	deleteDirErr   error
	deleteImageErr error
}

var _ storage.Adapter = (*fakeStorage)(nil)

func (s *fakeStorage) ListFiles(ctx context.Context, projectID string) ([]storage.FileInfo, error) {
	return s.files, nil
}

func (s *fakeStorage) DeleteProjectDirectory(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedDirs = append(s.deletedDirs, projectID)
	return s.deleteDirErr
}

func (s *fakeStorage) DeleteProjectImage(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedImages = append(s.deletedImages, projectID)
	return s.deleteImageErr
}

func (s *fakeStorage) GetPresignedURL(ctx context.Context, contentType, projectID string) (*storage.PresignedURL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presignedTypes = append(s.presignedTypes, contentType)
	return &storage.PresignedURL{
		URL:       "https://bucket.example.com/" + projectID + "/" + contentType + "/file?sig=x",
		PublicURL: "https://bucket.example.com/" + projectID + "/" + contentType + "/file",
	}, nil
}

func (s *fakeStorage) GetPresignedProjectImageURL(ctx context.Context, projectID string) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{
		URL:       "https://bucket.example.com/" + projectID + "/" + storage.ProjectImageName + "?sig=x",
		PublicURL: "https://bucket.example.com/" + projectID + "/" + storage.ProjectImageName,
	}, nil
}

// fakeFetcher returns a canned upstream response and records requests.
type fakeFetcher struct {
	mu       sync.Mutex
	requests []upstream.Request
	response any
	err      error
}

func (f *fakeFetcher) Fetch(ctx context.Context, req upstream.Request) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return upstream.Project(f.response, req.Fields), nil
}

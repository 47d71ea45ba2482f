package backend_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend/backendtest"
	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

const (
	testRelationalKind models.BackendKind = "test-relational"
	testDocumentKind   models.BackendKind = "test-document"
)

type bootstrappingAdapter struct {
	*backendtest.Adapter
	bootstrapped int
	bootErr      error
}

func (b *bootstrappingAdapter) Bootstrap(ctx context.Context) error {
	b.bootstrapped++
	return b.bootErr
}

func registerTestKinds(t *testing.T, created map[string]*bootstrappingAdapter) {
	t.Helper()
	factory := func(kind models.BackendKind) backend.Factory {
		return func(ctx context.Context, cfg backend.ConnectionConfig, logger *zap.Logger) (backend.Adapter, error) {
			if cfg.ConnectionString == "unreachable" {
				return nil, errors.New("dial tcp: connection refused")
			}
			a := &bootstrappingAdapter{Adapter: backendtest.New(models.BackendRelational)}
			if cfg.ConnectionString == "bad-bootstrap" {
				a.bootErr = errors.New("permission denied for schema")
			}
			created[cfg.ID] = a
			return a, nil
		}
	}
	backend.Register(backend.AdapterRegistration{
		Info:    backend.AdapterInfo{Kind: testRelationalKind, DisplayName: "Test relational"},
		Factory: factory(testRelationalKind),
	})
	backend.Register(backend.AdapterRegistration{
		Info:    backend.AdapterInfo{Kind: testDocumentKind, DisplayName: "Test document"},
		Factory: factory(testDocumentKind),
	})
}

func TestConnectionRegistry_ConnectSkipsFailures(t *testing.T) {
	created := map[string]*bootstrappingAdapter{}
	registerTestKinds(t, created)

	reg := backend.NewConnectionRegistry(zaptest.NewLogger(t))
	reg.Connect(context.Background(), []backend.ConnectionConfig{
		{ID: "main", Kind: testRelationalKind, ConnectionString: "postgres://ok", IsPrimary: true},
		{ID: "down", Kind: testRelationalKind, ConnectionString: "unreachable"},
		{ID: "empty", Kind: testDocumentKind, ConnectionString: ""},
		{ID: "unknown", Kind: "cassandra", ConnectionString: "cql://x"},
		{ID: "docs", Kind: testDocumentKind, ConnectionString: "mongodb://ok"},
		{ID: "main", Kind: testDocumentKind, ConnectionString: "mongodb://dup"},
	})

	assert.Equal(t, []string{"main", "docs"}, reg.ListConnected())

	_, err := reg.Get("down")
	assert.ErrorIs(t, err, apperrors.ErrConnectionNotFound)

	conn, err := reg.Get("main")
	require.NoError(t, err)
	assert.True(t, conn.IsPrimary)
	assert.Equal(t, testRelationalKind, conn.Kind)
	assert.Equal(t, 1, created["main"].bootstrapped)
}

func TestConnectionRegistry_BootstrapFailureKeepsConnection(t *testing.T) {
	created := map[string]*bootstrappingAdapter{}
	registerTestKinds(t, created)

	reg := backend.NewConnectionRegistry(zaptest.NewLogger(t))
	reg.Connect(context.Background(), []backend.ConnectionConfig{
		{ID: "main", Kind: testRelationalKind, ConnectionString: "bad-bootstrap"},
	})

	assert.True(t, reg.Has("main"))
	assert.Equal(t, 1, created["main"].bootstrapped)
}

func TestConnectionRegistry_PrimaryAndForKind(t *testing.T) {
	reg := backend.NewConnectionRegistry(zap.NewNop())

	_, err := reg.Primary()
	assert.ErrorIs(t, err, apperrors.ErrConnectionNotFound)

	rel := backendtest.New(models.BackendRelational)
	doc1 := backendtest.New(models.BackendDocument)
	doc2 := backendtest.New(models.BackendDocument)
	reg.Add(rel.Connection("pg", false))
	reg.Add(doc1.Connection("mongo-a", false))
	reg.Add(doc2.Connection("mongo-b", true))

	primary, err := reg.Primary()
	require.NoError(t, err)
	assert.Equal(t, "mongo-b", primary.ID)

	doc, err := reg.ForKind(models.BackendDocument)
	require.NoError(t, err)
	assert.Equal(t, "mongo-b", doc.ID, "primary of the kind is preferred")

	relConn, err := reg.ForKind(models.BackendRelational)
	require.NoError(t, err)
	assert.Equal(t, "pg", relConn.ID)

	_, err = reg.ForKind("columnar")
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedBackendKind)
}

func TestConnectionRegistry_PrimaryFallsBackToFirst(t *testing.T) {
	reg := backend.NewConnectionRegistry(zap.NewNop())
	reg.Add(backendtest.New(models.BackendDocument).Connection("first", false))
	reg.Add(backendtest.New(models.BackendRelational).Connection("second", false))

	primary, err := reg.Primary()
	require.NoError(t, err)
	assert.Equal(t, "first", primary.ID)
}

func TestConnectionRegistry_CloseAndPing(t *testing.T) {
	reg := backend.NewConnectionRegistry(zap.NewNop())
	a := backendtest.New(models.BackendDocument)
	reg.Add(a.Connection("docs", true))

	assert.Equal(t, map[string]string{"docs": "ok"}, reg.Ping(context.Background()))

	require.NoError(t, reg.Close(context.Background()))
	assert.True(t, a.Closed())
	assert.Empty(t, reg.ListConnected())
}

func TestRegisteredAdapters(t *testing.T) {
	registerTestKinds(t, map[string]*bootstrappingAdapter{})

	assert.NotNil(t, backend.GetFactory(testRelationalKind))
	assert.Nil(t, backend.GetFactory("cassandra"))

	kinds := []models.BackendKind{}
	for _, info := range backend.RegisteredAdapters() {
		kinds = append(kinds, info.Kind)
	}
	assert.Contains(t, kinds, testDocumentKind)
}

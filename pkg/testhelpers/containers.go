package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend/mongodb"
	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend/postgres"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

const (
	// PostgresImage backs relational integration tests.
	PostgresImage = "postgres:16-alpine"
	// MongoImage backs document integration tests.
	MongoImage = "mongo:7"
)

// TestContainer is a started database container and its connection string.
type TestContainer struct {
	Container testcontainers.Container
	ConnStr   string
}

var (
	sharedPostgres     *TestContainer
	sharedPostgresOnce sync.Once
	sharedPostgresErr  error

	sharedMongo     *TestContainer
	sharedMongoOnce sync.Once
	sharedMongoErr  error
)

// GetPostgres returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetPostgres(t *testing.T) *TestContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedPostgresOnce.Do(func() {
		sharedPostgres, sharedPostgresErr = startContainer(testcontainers.ContainerRequest{
			Image:        PostgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "datahub_test",
				"POSTGRES_USER":     "datahub",
				"POSTGRES_PASSWORD": "test_password",
			},
			// Postgres logs readiness twice: once for the init server, once for the real one.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		}, "5432", "postgres://datahub:test_password@%s:%s/datahub_test?sslmode=disable")
	})

	if sharedPostgresErr != nil {
		t.Fatalf("Failed to setup postgres container: %v", sharedPostgresErr)
	}
	return sharedPostgres
}

// GetMongo returns a shared MongoDB container for integration tests.
func GetMongo(t *testing.T) *TestContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedMongoOnce.Do(func() {
		sharedMongo, sharedMongoErr = startContainer(testcontainers.ContainerRequest{
			Image:        MongoImage,
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor: wait.ForListeningPort("27017/tcp").
				WithStartupTimeout(60 * time.Second),
		}, "27017", "mongodb://%s:%s")
	})

	if sharedMongoErr != nil {
		t.Fatalf("Failed to setup mongo container: %v", sharedMongoErr)
	}
	return sharedMongo
}

func startContainer(req testcontainers.ContainerRequest, port, connFormat string) (*TestContainer, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s container: %w", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &TestContainer{
		Container: container,
		ConnStr:   fmt.Sprintf(connFormat, host, mapped.Port()),
	}, nil
}

// RelationalConnection connects a bootstrapped postgres adapter in its own
// schema so tests do not see each other's tables.
func RelationalConnection(t *testing.T, schema string) *backend.Connection {
	t.Helper()
	ctx := context.Background()

	c := GetPostgres(t)
	adapter, err := postgres.NewAdapter(ctx, backend.ConnectionConfig{
		ID:               "pg",
		Kind:             models.BackendRelational,
		ConnectionString: c.ConnStr,
		Schema:           schema,
		PoolMaxConns:     4,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to connect postgres adapter: %v", err)
	}
	if err := adapter.Bootstrap(ctx); err != nil {
		t.Fatalf("Failed to bootstrap postgres schema %s: %v", schema, err)
	}
	t.Cleanup(func() { _ = adapter.Close(context.Background()) })

	return &backend.Connection{ID: "pg", Kind: models.BackendRelational, IsPrimary: true, Adapter: adapter}
}

// DocumentConnection connects a bootstrapped mongo adapter to its own database.
func DocumentConnection(t *testing.T, database string) *backend.Connection {
	t.Helper()
	ctx := context.Background()

	c := GetMongo(t)
	adapter, err := mongodb.NewAdapter(ctx, backend.ConnectionConfig{
		ID:               "mongo",
		Kind:             models.BackendDocument,
		ConnectionString: c.ConnStr,
		Database:         database,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to connect mongo adapter: %v", err)
	}
	if err := adapter.Bootstrap(ctx); err != nil {
		t.Fatalf("Failed to bootstrap mongo database %s: %v", database, err)
	}
	t.Cleanup(func() { _ = adapter.Close(context.Background()) })

	return &backend.Connection{ID: "mongo", Kind: models.BackendDocument, Adapter: adapter}
}

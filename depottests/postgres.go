// Package depottests provides shared helpers for integration tests that
// need a live PostgreSQL instance.
package depottests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pitabwire/util"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// PostgresqlDBImage is the PostgreSQL image used for integration tests.
	PostgresqlDBImage = "postgres:latest"

	// DBUser is the default username for the PostgreSQL test database.
	DBUser = "depot"
	// DBPassword is the default password for the PostgreSQL test database.
	DBPassword = "d3p0t"
	// DBName is the default database name for the PostgreSQL test database.
	DBName = "depot_test"

	// OccurrenceValue is the number of occurrences to wait for in the log pattern.
	OccurrenceValue = 2
	// TimeoutInSeconds is the timeout duration for container startup in seconds.
	TimeoutInSeconds = 60
)

// PostgresDep wraps a running PostgreSQL testcontainer.
type PostgresDep struct {
	container *tcPostgres.PostgresContainer
	dbName    string
}

// NewPostgres starts a PostgreSQL container and waits for it to accept
// connections. Callers must invoke Cleanup when done.
func NewPostgres(ctx context.Context) (*PostgresDep, error) {
	return NewPostgresWithOpts(ctx, DBName)
}

func NewPostgresWithOpts(ctx context.Context, dbName string) (*PostgresDep, error) {
	pgContainer, err := tcPostgres.Run(ctx, PostgresqlDBImage,
		tcPostgres.WithDatabase(dbName),
		tcPostgres.WithUsername(DBUser),
		tcPostgres.WithPassword(DBPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(OccurrenceValue).
				WithStartupTimeout(TimeoutInSeconds*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	return &PostgresDep{container: pgContainer, dbName: dbName}, nil
}

// DSN returns a connection string pointing at the containerised database.
func (d *PostgresDep) DSN(ctx context.Context) (string, error) {
	return d.container.ConnectionString(ctx, "sslmode=disable")
}

// Cleanup terminates the container. Errors are logged, not returned, so
// it is safe to defer.
func (d *PostgresDep) Cleanup(ctx context.Context) {
	if d.container == nil {
		return
	}
	if err := d.container.Terminate(ctx); err != nil {
		util.Log(ctx).WithError(err).Warn("could not terminate postgres container")
	}
}

// Setup starts a PostgreSQL container for the supplied test and registers
// its teardown. Tests are skipped when the container runtime is unavailable.
func Setup(ctx context.Context, t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dep, err := NewPostgres(ctx)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() {
		dep.Cleanup(context.Background())
	})

	dsn, err := dep.DSN(ctx)
	if err != nil {
		t.Fatalf("could not resolve postgres connection string: %v", err)
	}
	return dsn
}

package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/josh-kwaku/folio-ledger/internal/repository"
)

// SetupTestDB returns a migrated SQLite store in a temp dir.
func SetupTestDB(t *testing.T) *repository.DB {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "portfolio.db")
	db, err := repository.NewSQLiteDB(ctx, "file:"+path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

// SetupPostgresDB starts a throwaway Postgres container. Skipped with -short
// or when no container runtime is reachable.
func SetupPostgresDB(t *testing.T) *repository.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("folio_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	db, err := repository.NewPostgresDB(ctx, connStr, repository.PoolConfig{
		MaxOpenConns: 5, MaxIdleConns: 2, ConnMaxLifetimeS: 60, ConnMaxIdleTimeS: 30,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

// ForEachBackend runs fn against SQLite and Postgres.
func ForEachBackend(t *testing.T, fn func(t *testing.T, db *repository.DB)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		fn(t, SetupTestDB(t))
	})
	t.Run("postgres", func(t *testing.T) {
		fn(t, SetupPostgresDB(t))
	})
}

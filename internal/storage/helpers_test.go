package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pushgate/internal/config"
	"github.com/pushgate/internal/storage"
)

const testMigrationsPath = "../../migrations/postgres"

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// openTestDB connects to the test database and rebuilds the schema. It skips
// the test when Postgres is not reachable.
func openTestDB(t *testing.T) *storage.PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.PostgresConfig{
		Host:           getenv("POSTGRES_TEST_HOST", "localhost"),
		Port:           getenv("POSTGRES_TEST_PORT", "5432"),
		DB:             getenv("POSTGRES_TEST_DB", "pushgate_test"),
		User:           getenv("POSTGRES_TEST_USER", "pushgate"),
		Password:       getenv("POSTGRES_TEST_PASSWORD", "pushgate_dev_password"),
		MaxConnections: 10,
	}

	db, err := storage.NewPostgresDB(context.Background(), cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := storage.ResetMigrations(cfg.DSN(), testMigrationsPath); err != nil {
		t.Fatalf("reset migrations: %v", err)
	}
	if err := storage.RunMigrations(cfg.DSN(), testMigrationsPath); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

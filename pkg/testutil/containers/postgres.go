//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"certify/internal/platform/config"
	"certify/internal/platform/database"
)

// registryTables lists every table the ledger and outbox write to.
var registryTables = []string{"credentials", "credential_commits", "outbox"}

// PostgresContainer is a migrated Postgres instance reached through the same
// pool the server uses.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	Pool      *database.Pool
	DB        *sql.DB
}

// NewPostgresContainer starts Postgres and applies the embedded migrations.
// Ryuk removes the container when the test binary exits.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("certify_test"),
		postgres.WithUsername("certify"),
		postgres.WithPassword("certify_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("postgres connection string: %v", err)
	}
	if err := database.Migrate(dsn); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("migrate: %v", err)
	}

	pool, err := database.New(ctx, config.DatabaseConfig{
		URL:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("open pool: %v", err)
	}

	return &PostgresContainer{Container: container, DSN: dsn, Pool: pool, DB: pool.DB()}
}

// TruncateAll empties the registry tables and restarts commit sequences.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	stmt := "TRUNCATE TABLE " + strings.Join(registryTables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := p.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("truncate registry tables: %w", err)
	}
	return nil
}

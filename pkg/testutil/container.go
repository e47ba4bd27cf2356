package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance with the
// platform schema applied.
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// NewPostgresContainer starts a PostgreSQL test container and applies the
// schema from migrations/schema.sql.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//	    os.Exit(m.Run())
//	}
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("bimatrack_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	c := &PostgresContainer{PostgresContainer: container, DSN: dsn}

	if err := c.applySchema(ctx); err != nil {
		container.Terminate(ctx)
		return nil, err
	}
	return c, nil
}

// Connect returns a database handle bound to the container.
func (c *PostgresContainer) Connect(ctx context.Context) (*database.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return database.NewWithDB(db, logger.New("test", "test")), nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

func (c *PostgresContainer) applySchema(ctx context.Context) error {
	schema, err := os.ReadFile(schemaPath())
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect for schema apply: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// schemaPath resolves migrations/schema.sql relative to this source file,
// so tests work from any package directory.
func schemaPath() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations", "schema.sql")
}

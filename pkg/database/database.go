package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/bimatrack/bimatrack-backend/pkg/config"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// DB wraps sqlx.DB with transaction propagation through context.
// Repository calls made inside Transaction reuse the transaction
// automatically, which is how mutations, audit entries and history
// snapshots end up in the same commit.
type DB struct {
	*sqlx.DB
	logger *logger.Logger
}

type txKey struct{}

// New creates a new database connection
func New(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &DB{DB: db, logger: log}, nil
}

// NewWithDB wraps an existing sqlx handle. Used by tests.
func NewWithDB(db *sqlx.DB, log *logger.Logger) *DB {
	return &DB{DB: db, logger: log}
}

// Ping checks the database connection
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) map[string]string {
	status := map[string]string{"status": "up"}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
	}

	return status
}

// Transaction executes fn within a transaction. The transaction is stored in
// the context passed to fn, so any DB call made through this wrapper inside
// fn joins the same transaction. Nested calls reuse the outer transaction.
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// InTransaction reports whether the context carries an open transaction.
func (db *DB) InTransaction(ctx context.Context) bool {
	return txFromContext(ctx) != nil
}

// AdvisoryXactLock takes a transaction-scoped advisory lock on key. It
// serializes concurrent activation attempts for the same (tenant, vehicle
// [, permit_type]) tuple; the lock releases on commit or rollback.
func (db *DB) AdvisoryXactLock(ctx context.Context, key string) error {
	if txFromContext(ctx) == nil {
		return fmt.Errorf("advisory lock requires an open transaction")
	}
	_, err := db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	if err != nil {
		return fmt.Errorf("failed to take advisory lock on %s: %w", key, err)
	}
	return nil
}

// Get runs a single-row query through the active transaction if present.
func (db *DB) Get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, db.ext(ctx), dest, query, args...)
}

// Select runs a multi-row query through the active transaction if present.
func (db *DB) Select(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, db.ext(ctx), dest, query, args...)
}

// Exec runs a statement through the active transaction if present.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.ext(ctx).ExecContext(ctx, query, args...)
}

// QueryRowx runs a row query through the active transaction if present.
func (db *DB) QueryRowx(ctx context.Context, query string, args ...any) *sqlx.Row {
	return db.ext(ctx).QueryRowxContext(ctx, query, args...)
}

// Queryx runs a query through the active transaction if present.
func (db *DB) Queryx(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return db.ext(ctx).QueryxContext(ctx, query, args...)
}

func (db *DB) ext(ctx context.Context) sqlx.ExtContext {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db.DB
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

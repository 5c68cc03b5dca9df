// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/ingestkeeper/internal/dbx"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/extractions"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/outbox"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/preferences"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/uploads"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Uploads returns an uploads.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Uploads(db dbx.DBTX) uploads.Repository {
	return uploads.NewPostgresRepository(db)
}

// Outbox returns an outbox.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Outbox(db dbx.DBTX) outbox.Repository {
	return outbox.NewPostgresRepository(db)
}

// Extractions returns an extractions.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Extractions(db dbx.DBTX) extractions.Repository {
	return extractions.NewPostgresRepository(db)
}

// Preferences returns a preferences.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Preferences(db dbx.DBTX) preferences.Repository {
	return preferences.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}

// OpenDB opens a pgx-backed *sql.DB and verifies the connection.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

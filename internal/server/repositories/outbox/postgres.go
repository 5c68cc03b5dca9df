// Package outbox stores the append-only processing log in PostgreSQL.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/dbx"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
)

const (
	// ProcessStatusKey is unique(process_id, sequence_status).
	ProcessStatusKey = "outbox_entries_process_status_key"
	// OneTerminalIndex allows a single terminal row per process.
	OneTerminalIndex = "outbox_entries_one_terminal_idx"

	entryColumns = `id, process_id, sequence_status, upload_id, external_id, owner_id, content_type, error_message, created_at`
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.OutboxEntry, error) {
	e := &models.OutboxEntry{}
	var status string
	if err := row.Scan(&e.ID, &e.ProcessID, &status, &e.UploadID, &e.ExternalID, &e.OwnerID, &e.ContentType,
		&e.ErrorMessage, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.SequenceStatus = models.OutboxStatus(status)
	return e, nil
}

func translate(err error) error {
	if name, ok := dbx.UniqueViolation(err); ok {
		switch name {
		case ProcessStatusKey:
			return fmt.Errorf("%w: %v", common.ErrDuplicateTransition, err)
		case OneTerminalIndex:
			return fmt.Errorf("%w: process already has a terminal status: %v", common.ErrInvalidStateTransition, err)
		}
		return fmt.Errorf("%w: %v", common.ErrInvariantViolation, err)
	}
	if dbx.IsCheckViolation(err) || dbx.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %v", common.ErrInvariantViolation, err)
	}
	return fmt.Errorf("db error: %w", err)
}

// LockProcess takes a transaction-scoped advisory lock keyed by the process
// id. It works before the first row of a process exists.
func (r *PostgresRepository) LockProcess(ctx context.Context, processID string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, processID); err != nil {
		return fmt.Errorf("failed to lock process %s: %w", processID, err)
	}
	return nil
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.OutboxEntry) (*models.OutboxEntry, error) {
	query := `
		INSERT INTO outbox_entries (process_id, sequence_status, upload_id, external_id, owner_id, content_type, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + entryColumns
	created, err := scanEntry(r.db.QueryRowContext(ctx, query,
		e.ProcessID, string(e.SequenceStatus), e.UploadID, e.ExternalID, e.OwnerID, e.ContentType, e.ErrorMessage))
	if err != nil {
		return nil, translate(err)
	}
	return created, nil
}

func (r *PostgresRepository) AppendIfCurrent(ctx context.Context, processID string, expected, next models.OutboxStatus) (*models.OutboxEntry, error) {
	query := `
		WITH latest AS (
			SELECT process_id, sequence_status, upload_id, external_id, owner_id, content_type
			FROM outbox_entries
			WHERE process_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
		INSERT INTO outbox_entries (process_id, sequence_status, upload_id, external_id, owner_id, content_type)
		SELECT process_id, $3, upload_id, external_id, owner_id, content_type
		FROM latest
		WHERE sequence_status = $2
		ON CONFLICT ON CONSTRAINT outbox_entries_process_status_key DO NOTHING
		RETURNING ` + entryColumns
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, processID, string(expected), string(next)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

// Current returns the newest row of a process.
func (r *PostgresRepository) Current(ctx context.Context, processID string) (*models.OutboxEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM outbox_entries
		WHERE process_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, processID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select outbox entry: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) CurrentByUpload(ctx context.Context, uploadID string) (*models.OutboxEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM outbox_entries
		WHERE upload_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, uploadID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select outbox entry: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) History(ctx context.Context, processID string) ([]*models.OutboxEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM outbox_entries
		WHERE process_id = $1
		ORDER BY created_at, id`
	return r.selectEntries(ctx, query, processID)
}

func (r *PostgresRepository) FindPending(ctx context.Context, limit int, createdBefore time.Time) ([]*models.OutboxEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM outbox_entries o
		WHERE o.sequence_status = 'pending'
			AND o.created_at <= $2
			AND NOT EXISTS (
				SELECT 1 FROM outbox_entries n
				WHERE n.process_id = o.process_id AND n.sequence_status <> 'pending'
			)
		ORDER BY o.created_at, o.id
		LIMIT $1`
	return r.selectEntries(ctx, query, limit, createdBefore)
}

func (r *PostgresRepository) selectEntries(ctx context.Context, query string, args ...any) ([]*models.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select outbox entries: %w", err)
	}
	defer rows.Close()

	var result []*models.OutboxEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Package uploads stores upload lifecycle records in PostgreSQL.
package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/dbx"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
)

const (
	uploadsTable = "uploads"

	// CanonicalIndex is the partial unique index guarding canonical claims.
	CanonicalIndex = "uploads_canonical_owner_hash_idx"

	uploadColumns = `id, external_id, process_id, object_key, filename, content_type, owner_id, status,
		content_hash, size, is_canonical, canonical_reference, extracted_text, created_at, updated_at`

	defaultListLimit = 50
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db      dbx.DBTX
	builder squirrel.StatementBuilderType
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*models.Upload, error) {
	u := &models.Upload{}
	var status string
	err := row.Scan(&u.ID, &u.ExternalID, &u.ProcessID, &u.ObjectKey, &u.Filename, &u.ContentType, &u.OwnerID, &status,
		&u.ContentHash, &u.Size, &u.IsCanonical, &u.CanonicalReference, &u.ExtractedText, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Status = models.UploadStatus(status)
	return u, nil
}

// translate maps constraint errors onto domain sentinels.
func translate(err error) error {
	if name, ok := dbx.UniqueViolation(err); ok {
		if name == CanonicalIndex {
			return fmt.Errorf("%w: %v", common.ErrTransientConflict, err)
		}
		return fmt.Errorf("%w: %v", common.ErrInvariantViolation, err)
	}
	if dbx.IsCheckViolation(err) || dbx.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %v", common.ErrInvariantViolation, err)
	}
	return fmt.Errorf("db error: %w", err)
}

// expectOne converts the affected row count of a guarded update into an error.
func expectOne(res sql.Result, onZero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return onZero
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// Create inserts a pending record and returns it with server-assigned fields.
func (r *PostgresRepository) Create(ctx context.Context, u *models.Upload) (*models.Upload, error) {
	query := `
		INSERT INTO uploads (external_id, process_id, object_key, filename, content_type, owner_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING ` + uploadColumns
	created, err := scanUpload(r.db.QueryRowContext(ctx, query,
		u.ExternalID, u.ProcessID, u.ObjectKey, u.Filename, u.ContentType, u.OwnerID))
	if err != nil {
		return nil, translate(err)
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1`
	u, err := scanUpload(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select upload: %w", err)
	}
	return u, nil
}

// GetByExternalID loads a record by its client-visible id. With forUpdate
// the row stays locked until the surrounding transaction ends.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string, forUpdate bool) (*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE external_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	u, err := scanUpload(r.db.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select upload: %w", err)
	}
	return u, nil
}

// FindCanonical locks and returns the canonical record for (owner, hash),
// or common.ErrorNotFound when there is none.
func (r *PostgresRepository) FindCanonical(ctx context.Context, ownerID, contentHash string) (*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads
		WHERE owner_id = $1 AND content_hash = $2 AND is_canonical
		FOR UPDATE`
	u, err := scanUpload(r.db.QueryRowContext(ctx, query, ownerID, contentHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select canonical upload: %w", err)
	}
	return u, nil
}

// MarkUploaded moves a pending record to uploaded and claims canonical
// status for its hash.
func (r *PostgresRepository) MarkUploaded(ctx context.Context, id, objectKey, contentHash string, size int64, extractedText *string) error {
	query := `
		UPDATE uploads
		SET status = 'uploaded', object_key = $2, content_hash = $3, size = $4, extracted_text = $5,
			is_canonical = TRUE, updated_at = now()
		WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, objectKey, contentHash, size, extractedText)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, common.ErrInvalidStateTransition)
}

func (r *PostgresRepository) MarkDeduplicated(ctx context.Context, id, canonicalID, contentHash string, size int64, extractedText *string) error {
	query := `
		UPDATE uploads
		SET status = 'deduplicated', canonical_reference = $2, content_hash = $3, size = $4, extracted_text = $5,
			is_canonical = FALSE, updated_at = now()
		WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, canonicalID, contentHash, size, extractedText)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, common.ErrInvalidStateTransition)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id string) error {
	query := `UPDATE uploads SET status = 'failed', updated_at = now() WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, common.ErrInvalidStateTransition)
}

// MarkDeletedByUser keeps is_canonical untouched: a deleted canonical stays
// canonical until a new upload replaces it. The canonical reference of a
// deduplicated record is dropped together with its status.
func (r *PostgresRepository) MarkDeletedByUser(ctx context.Context, id string) error {
	query := `
		UPDATE uploads SET status = 'deleted-by-user', canonical_reference = NULL, updated_at = now()
		WHERE id = $1 AND status <> 'deleted-by-user'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, common.ErrInvalidStateTransition)
}

// RevokeCanonical clears is_canonical on a record that currently holds it.
func (r *PostgresRepository) RevokeCanonical(ctx context.Context, id string) error {
	query := `UPDATE uploads SET is_canonical = FALSE, updated_at = now() WHERE id = $1 AND is_canonical`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return expectOne(res, common.ErrTransientConflict)
}

// List returns the owner's uploads, newest first.
func (r *PostgresRepository) List(ctx context.Context, ownerID string, filter models.UploadFilter) ([]*models.Upload, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	q := r.builder.
		Select(uploadColumns).
		From(uploadsTable).
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC", "id").
		Limit(limit).
		Offset(filter.Offset)
	if filter.Status != "" {
		q = q.Where(squirrel.Eq{"status": string(filter.Status)})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

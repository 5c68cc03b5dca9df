// Package extractions stores structured extraction results reported by the
// worker.
package extractions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/dbx"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores the data for an upload. A second insert for the same upload
// fails with common.ErrDuplicateTransition.
func (r *PostgresRepository) Insert(ctx context.Context, e *models.Extraction) error {
	query := `INSERT INTO extractions (upload_id, process_id, data) VALUES ($1, $2, $3::jsonb)`
	_, err := r.db.ExecContext(ctx, query, e.UploadID, e.ProcessID, string(e.Data))
	if err != nil {
		if _, ok := dbx.UniqueViolation(err); ok {
			return fmt.Errorf("%w: extraction already stored for upload %s", common.ErrDuplicateTransition, e.UploadID)
		}
		if dbx.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %v", common.ErrInvariantViolation, err)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByUploadID(ctx context.Context, uploadID string) (*models.Extraction, error) {
	query := `SELECT upload_id, process_id, data, created_at FROM extractions WHERE upload_id = $1`
	e := &models.Extraction{}
	var data []byte
	err := r.db.QueryRowContext(ctx, query, uploadID).Scan(&e.UploadID, &e.ProcessID, &data, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select extraction: %w", err)
	}
	e.Data = data
	return e, nil
}

// Package preferences stores user preferences that reference uploads.
package preferences

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) SetSelectedUpload(ctx context.Context, ownerID, uploadID string) error {
	query := `
		INSERT INTO user_preferences (owner_id, selected_upload_id)
		VALUES ($1, $2)
		ON CONFLICT (owner_id) DO UPDATE SET selected_upload_id = EXCLUDED.selected_upload_id, updated_at = now()`
	if _, err := r.db.ExecContext(ctx, query, ownerID, uploadID); err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: upload %s", common.ErrorNotFound, uploadID)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ClearSelectedUpload(ctx context.Context, uploadID string) (int64, error) {
	query := `UPDATE user_preferences SET selected_upload_id = NULL, updated_at = now() WHERE selected_upload_id = $1`
	res, err := r.db.ExecContext(ctx, query, uploadID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

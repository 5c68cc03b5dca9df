package extractions

import (
	"context"

	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, e *models.Extraction) error
	GetByUploadID(ctx context.Context, uploadID string) (*models.Extraction, error)
}

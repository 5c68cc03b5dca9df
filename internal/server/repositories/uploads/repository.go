package uploads

import (
	"context"

	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
)

// Repository persists upload records. Every status-changing method is
// conditional on the current status and reports
// common.ErrInvalidStateTransition when the guard does not hold.
type Repository interface {
	Create(ctx context.Context, u *models.Upload) (*models.Upload, error)
	GetByID(ctx context.Context, id string) (*models.Upload, error)
	GetByExternalID(ctx context.Context, externalID string, forUpdate bool) (*models.Upload, error)
	FindCanonical(ctx context.Context, ownerID, contentHash string) (*models.Upload, error)
	MarkUploaded(ctx context.Context, id, objectKey, contentHash string, size int64, extractedText *string) error
	MarkDeduplicated(ctx context.Context, id, canonicalID, contentHash string, size int64, extractedText *string) error
	MarkFailed(ctx context.Context, id string) error
	MarkDeletedByUser(ctx context.Context, id string) error
	RevokeCanonical(ctx context.Context, id string) error
	List(ctx context.Context, ownerID string, filter models.UploadFilter) ([]*models.Upload, error)
}

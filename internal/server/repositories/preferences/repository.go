package preferences

import "context"

// Repository owns per-user preferences that may point at an upload.
type Repository interface {
	SetSelectedUpload(ctx context.Context, ownerID, uploadID string) error
	// ClearSelectedUpload unsets every preference pointing at uploadID and
	// returns how many were cleared.
	ClearSelectedUpload(ctx context.Context, uploadID string) (int64, error)
}

package outbox

import (
	"context"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
)

// Repository is the append-only processing log. It offers no update or
// delete: a transition is always a new row.
type Repository interface {
	// LockProcess blocks other writers of processID until the surrounding
	// transaction ends. Every read-then-append of one process takes it first.
	LockProcess(ctx context.Context, processID string) error
	// Append inserts a transition. A repeated (process, status) pair yields
	// common.ErrDuplicateTransition; a second terminal status yields
	// common.ErrInvalidStateTransition.
	Append(ctx context.Context, e *models.OutboxEntry) (*models.OutboxEntry, error)
	// AppendIfCurrent inserts next only while the newest row still has status
	// expected. It returns nil, nil when another actor advanced the process.
	AppendIfCurrent(ctx context.Context, processID string, expected, next models.OutboxStatus) (*models.OutboxEntry, error)
	Current(ctx context.Context, processID string) (*models.OutboxEntry, error)
	CurrentByUpload(ctx context.Context, uploadID string) (*models.OutboxEntry, error)
	History(ctx context.Context, processID string) ([]*models.OutboxEntry, error)
	// FindPending returns, oldest first, processes whose newest row is
	// pending and was created at or before createdBefore.
	FindPending(ctx context.Context, limit int, createdBefore time.Time) ([]*models.OutboxEntry, error)
}

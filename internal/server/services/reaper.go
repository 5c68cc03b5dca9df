package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/dbx"
	"github.com/dmitrijs2005/ingestkeeper/internal/logging"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/repomanager"
)

// OutboxReaper exposes the primitives a relay needs to find undelivered
// processes and claim them for delivery. Several relays may run at once;
// MarkAsSending is the hand-off point that keeps them from double delivery.
type OutboxReaper struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	txFn        dbx.TxFunc
	now         func() time.Time
}

func NewOutboxReaper(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger) *OutboxReaper {
	return &OutboxReaper{
		db:          db,
		repomanager: rm,
		logger:      logger.With("module", "reaper"),
		txFn:        dbx.WithTx,
		now:         time.Now,
	}
}

// FindPendingLogs returns up to limit processes, oldest first, whose newest
// row is still pending.
func (r *OutboxReaper) FindPendingLogs(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	return r.FindStalePendingLogs(ctx, limit, 0)
}

// FindStalePendingLogs is FindPendingLogs restricted to rows at least minAge
// old, so fresh finalizes get a chance to deliver on their own.
func (r *OutboxReaper) FindStalePendingLogs(ctx context.Context, limit int, minAge time.Duration) ([]*models.OutboxEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", common.ErrorValidation)
	}
	return r.repomanager.Outbox(r.db).FindPending(ctx, limit, r.now().Add(-minAge))
}

// MarkAsSending appends sending if pending is still the newest row and
// returns it. It returns nil, nil when another actor got there first.
func (r *OutboxReaper) MarkAsSending(ctx context.Context, processID string) (*models.OutboxEntry, error) {
	if processID == "" {
		return nil, fmt.Errorf("%w: processId is required", common.ErrorValidation)
	}
	var entry *models.OutboxEntry
	err := r.txFn(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		log := r.repomanager.Outbox(tx)
		if err := log.LockProcess(ctx, processID); err != nil {
			return err
		}
		var err error
		entry, err = log.AppendIfCurrent(ctx, processID, models.OutboxPending, models.OutboxSending)
		return err
	})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		r.logger.Debug(ctx, "process already advanced", "process_id", processID)
	}
	return entry, nil
}

// MarkDeliveryFailed closes a process the relay could not deliver. It only
// applies while sending is the newest row; otherwise it returns nil, nil.
func (r *OutboxReaper) MarkDeliveryFailed(ctx context.Context, processID, message string) (*models.OutboxEntry, error) {
	if processID == "" {
		return nil, fmt.Errorf("%w: processId is required", common.ErrorValidation)
	}
	var failed *models.OutboxEntry
	err := r.txFn(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		log := r.repomanager.Outbox(tx)
		if err := log.LockProcess(ctx, processID); err != nil {
			return err
		}

		current, err := log.Current(ctx, processID)
		if err != nil {
			return err
		}
		if current.SequenceStatus != models.OutboxSending {
			return nil
		}

		failed, err = log.Append(ctx, current.Next(models.OutboxFailed, &message))
		return err
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

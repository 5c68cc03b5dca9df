package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/dbx"
	"github.com/dmitrijs2005/ingestkeeper/internal/logging"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/repomanager"
)

// Publisher hands a processing request to the extraction queue.
type Publisher interface {
	Publish(ctx context.Context, req models.ProcessingRequest) error
}

// finalizeAttempts is the first try plus one retry on a canonical race.
const finalizeAttempts = 2

// UploadFinalizer turns a pending upload into uploaded or deduplicated once
// the client has stored the bytes.
type UploadFinalizer struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	publisher   Publisher
	resolver    CanonicalResolver
	logger      logging.Logger
	txFn        dbx.TxFunc
}

func NewUploadFinalizer(db *sql.DB, rm repomanager.RepositoryManager, publisher Publisher, logger logging.Logger) *UploadFinalizer {
	return &UploadFinalizer{
		db:          db,
		repomanager: rm,
		publisher:   publisher,
		logger:      logger.With("module", "finalizer"),
		txFn:        dbx.WithTx,
	}
}

func validateFinalize(req models.FinalizeRequest) error {
	switch {
	case req.OwnerID == "":
		return fmt.Errorf("%w: owner is required", common.ErrorValidation)
	case req.ExternalID == "":
		return fmt.Errorf("%w: externalId is required", common.ErrorValidation)
	case req.ProcessID == "":
		return fmt.Errorf("%w: processId is required", common.ErrorValidation)
	case strings.TrimSpace(req.ContentHash) == "":
		return fmt.Errorf("%w: contentHash is required", common.ErrorValidation)
	case req.Size < 0:
		return fmt.Errorf("%w: size must not be negative", common.ErrorValidation)
	}
	return nil
}

// Finalize resolves canonical status and commits the outcome. A losing
// canonical race is retried once before ErrTransientConflict surfaces. Queue
// delivery happens after commit and never fails the call.
func (f *UploadFinalizer) Finalize(ctx context.Context, req models.FinalizeRequest) (*models.FinalizeResult, error) {
	if err := validateFinalize(req); err != nil {
		return nil, err
	}

	var (
		result *models.FinalizeResult
		entry  *models.OutboxEntry
		err    error
	)
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		result, entry, err = f.finalizeTx(ctx, req)
		if !errors.Is(err, common.ErrTransientConflict) {
			break
		}
		f.logger.Warn(ctx, "canonical claim conflict", "external_id", req.ExternalID, "attempt", attempt)
	}
	if err != nil {
		return nil, err
	}

	if entry != nil {
		f.deliver(ctx, entry)
	}

	f.logger.Info(ctx, "upload finalized", "external_id", result.ExternalID, "status", result.Status)
	return result, nil
}

func (f *UploadFinalizer) finalizeTx(ctx context.Context, req models.FinalizeRequest) (*models.FinalizeResult, *models.OutboxEntry, error) {
	var (
		result *models.FinalizeResult
		entry  *models.OutboxEntry
	)

	err := f.txFn(ctx, f.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := f.repomanager.Uploads(tx)

		u, err := repo.GetByExternalID(ctx, req.ExternalID, true)
		if err != nil {
			return err
		}
		if u.OwnerID != req.OwnerID || u.Status != models.UploadPending {
			return fmt.Errorf("%w: no pending upload %s", common.ErrorNotFound, req.ExternalID)
		}
		if u.ProcessID != req.ProcessID {
			return fmt.Errorf("%w: processId does not match upload %s", common.ErrorValidation, req.ExternalID)
		}

		res, err := f.resolver.Resolve(ctx, repo, u, req.ContentHash)
		if err != nil {
			return err
		}

		var extractedText *string
		if req.ExtractedText != "" {
			extractedText = &req.ExtractedText
		}

		store := NewUploadStore(f.repomanager, tx, f.logger)

		if res.Decision == Deduplicate {
			if err := store.MarkDeduplicated(ctx, u, res.Existing, req.ContentHash, req.Size, extractedText); err != nil {
				return err
			}
			result = &models.FinalizeResult{
				ExternalID:     u.ExternalID,
				Status:         models.UploadDeduplicated,
				ExistingFileID: res.Existing.ExternalID,
			}
			return nil
		}

		if res.Existing != nil {
			if err := repo.RevokeCanonical(ctx, res.Existing.ID); err != nil {
				return fmt.Errorf("revoke canonical %s: %w", res.Existing.ID, err)
			}
		}

		entry, err = store.MarkUploaded(ctx, u, u.ObjectKey, req.ContentHash, req.Size, extractedText)
		if err != nil {
			return err
		}
		result = &models.FinalizeResult{ExternalID: u.ExternalID, Status: models.UploadUploaded}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return result, entry, nil
}

// deliver is best effort: a pending row left behind is picked up by the
// reaper.
func (f *UploadFinalizer) deliver(ctx context.Context, entry *models.OutboxEntry) {
	if f.publisher == nil {
		return
	}
	if err := f.publisher.Publish(ctx, models.RequestFromEntry(entry)); err != nil {
		err = fmt.Errorf("%w: %v", common.ErrDeliveryFailure, err)
		f.logger.Warn(ctx, "queue handoff failed, left for reaper", "process_id", entry.ProcessID, "error", err)
		return
	}
	f.logger.Debug(ctx, "processing request published", "process_id", entry.ProcessID)
}

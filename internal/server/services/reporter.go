package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/dbx"
	"github.com/dmitrijs2005/ingestkeeper/internal/logging"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/outbox"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/repomanager"
)

// PayloadValidator checks completed extraction data before it is stored.
type PayloadValidator interface {
	Validate(data []byte) error
}

const defaultFailureMessage = "worker reported failure"

// OutboxStatusReporter records worker outcomes in the outbox log.
type OutboxStatusReporter struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	validator   PayloadValidator
	logger      logging.Logger
	txFn        dbx.TxFunc
}

func NewOutboxStatusReporter(db *sql.DB, rm repomanager.RepositoryManager, validator PayloadValidator, logger logging.Logger) *OutboxStatusReporter {
	return &OutboxStatusReporter{
		db:          db,
		repomanager: rm,
		validator:   validator,
		logger:      logger.With("module", "reporter"),
		txFn:        dbx.WithTx,
	}
}

// ReportOutcome appends the outcome's status to the process log. A completed
// outcome stores its data in the same transaction, so a failed data write
// leaves the process at its previous status. Repeating a recorded status is
// an idempotent success with Duplicate set; a status that cannot follow the
// current one is ErrInvalidStateTransition.
func (r *OutboxStatusReporter) ReportOutcome(ctx context.Context, processID string, outcome models.Outcome) (*models.ReportResult, error) {
	if processID == "" {
		return nil, fmt.Errorf("%w: processId is required", common.ErrorValidation)
	}
	status, ok := outcome.Status()
	if !ok {
		return nil, fmt.Errorf("%w: unknown outcome %q", common.ErrorValidation, outcome.Kind)
	}
	if status == models.OutboxCompleted && r.validator != nil {
		if err := r.validator.Validate(outcome.Data); err != nil {
			return nil, err
		}
	}

	var errMsg *string
	if status == models.OutboxFailed {
		msg := outcome.Message
		if msg == "" {
			msg = defaultFailureMessage
		}
		errMsg = &msg
	}

	var result *models.ReportResult
	err := r.txFn(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		log := r.repomanager.Outbox(tx)
		if err := log.LockProcess(ctx, processID); err != nil {
			return err
		}

		current, err := log.Current(ctx, processID)
		if err != nil {
			return err
		}

		if recorded, err := alreadyRecorded(ctx, log, current, status); err != nil || recorded {
			if recorded {
				result = &models.ReportResult{ProcessID: processID, Status: current.SequenceStatus, Duplicate: true}
			}
			return err
		}

		if !models.CanFollow(current.SequenceStatus, status) {
			return fmt.Errorf("%w: %s -> %s (process %s)", common.ErrInvalidStateTransition, current.SequenceStatus, status, processID)
		}

		if _, err := log.Append(ctx, current.Next(status, errMsg)); err != nil {
			return err
		}

		if status == models.OutboxCompleted {
			err := r.repomanager.Extractions(tx).Insert(ctx, &models.Extraction{
				UploadID:  current.UploadID,
				ProcessID: processID,
				Data:      outcome.Data,
			})
			if errors.Is(err, common.ErrDuplicateTransition) {
				return fmt.Errorf("%w: %v", common.ErrInvariantViolation, err)
			}
			if err != nil {
				return fmt.Errorf("store extraction: %w", err)
			}
		}

		result = &models.ReportResult{ProcessID: processID, Status: status}
		return nil
	})

	if errors.Is(err, common.ErrDuplicateTransition) {
		// A concurrent report with the same status won the unique index.
		current, cerr := r.repomanager.Outbox(r.db).Current(ctx, processID)
		if cerr != nil {
			return nil, cerr
		}
		r.logger.Info(ctx, "duplicate outcome report", "process_id", processID, "status", status)
		return &models.ReportResult{ProcessID: processID, Status: current.SequenceStatus, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		r.logger.Info(ctx, "duplicate outcome report", "process_id", processID, "status", status)
	} else {
		r.logger.Info(ctx, "outcome recorded", "process_id", processID, "status", status)
	}
	return result, nil
}

// alreadyRecorded reports whether status is already part of the process
// history.
func alreadyRecorded(ctx context.Context, log outbox.Repository, current *models.OutboxEntry, status models.OutboxStatus) (bool, error) {
	if current.SequenceStatus == status {
		return true, nil
	}
	if models.CanFollow(current.SequenceStatus, status) {
		return false, nil
	}

	history, err := log.History(ctx, current.ProcessID)
	if err != nil {
		return false, err
	}
	for _, e := range history {
		if e.SequenceStatus == status {
			return true, nil
		}
	}
	return false, nil
}

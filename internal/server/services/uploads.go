package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/dbx"
	"github.com/dmitrijs2005/ingestkeeper/internal/logging"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/storage"
	"github.com/google/uuid"
)

// maxListLimit caps one page of an owner's uploads.
const maxListLimit = 200

// Presigner issues upload URLs for object keys.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string) (string, error)
}

// UploadService implements the client-facing upload lifecycle around
// finalization: init, client-reported failure, deletion and reads.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	presigner   Presigner
	logger      logging.Logger
	txFn        dbx.TxFunc
	now         func() time.Time
}

// NewUploadService constructs an UploadService. presigner may be nil, in
// which case init returns no upload URL.
func NewUploadService(db *sql.DB, rm repomanager.RepositoryManager, presigner Presigner, logger logging.Logger) *UploadService {
	return &UploadService{
		db:          db,
		repomanager: rm,
		presigner:   presigner,
		logger:      logger.With("module", "uploads"),
		txFn:        dbx.WithTx,
		now:         time.Now,
	}
}

// Init reserves a pending upload and, when configured, a presigned URL for
// the bytes.
func (s *UploadService) Init(ctx context.Context, ownerID, filename, contentType string) (*models.InitResult, error) {
	filename = strings.TrimSpace(filename)
	contentType = strings.TrimSpace(contentType)
	if ownerID == "" || filename == "" || contentType == "" {
		return nil, fmt.Errorf("%w: filename and contentType are required", common.ErrorValidation)
	}

	externalID := uuid.NewString()
	objectKey := storage.ObjectKey(ownerID, externalID, s.now())

	var uploadURL string
	if s.presigner != nil {
		url, err := s.presigner.PresignPut(ctx, objectKey, contentType)
		if err != nil {
			return nil, fmt.Errorf("presign upload: %w", err)
		}
		uploadURL = url
	}

	store := NewUploadStore(s.repomanager, s.db, s.logger)
	u, err := store.CreatePending(ctx, &models.Upload{
		ExternalID:  externalID,
		ProcessID:   uuid.NewString(),
		ObjectKey:   objectKey,
		Filename:    filename,
		ContentType: contentType,
		OwnerID:     ownerID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "upload initialized", "external_id", u.ExternalID, "owner_id", ownerID)
	return &models.InitResult{
		ExternalID: u.ExternalID,
		ObjectKey:  u.ObjectKey,
		ProcessID:  u.ProcessID,
		UploadURL:  uploadURL,
	}, nil
}

// loadOwned locks the record and hides other owners' uploads behind
// ErrorNotFound.
func (s *UploadService) loadOwned(ctx context.Context, db dbx.DBTX, ownerID, externalID string, forUpdate bool) (*models.Upload, error) {
	u, err := s.repomanager.Uploads(db).GetByExternalID(ctx, externalID, forUpdate)
	if err != nil {
		return nil, err
	}
	if u.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: upload %s", common.ErrorNotFound, externalID)
	}
	return u, nil
}

// Fail records a client-side upload failure. Uploads that already left
// pending are returned unchanged.
func (s *UploadService) Fail(ctx context.Context, ownerID, externalID string) (*models.Upload, error) {
	var result *models.Upload
	err := s.txFn(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.loadOwned(ctx, tx, ownerID, externalID, true)
		if err != nil {
			return err
		}
		result, err = NewUploadStore(s.repomanager, tx, s.logger).MarkFailed(ctx, u.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete soft-deletes an upload. Absent, foreign and already deleted
// uploads are all ErrorNotFound.
func (s *UploadService) Delete(ctx context.Context, ownerID, externalID string) (*models.Upload, error) {
	var result *models.Upload
	err := s.txFn(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.loadOwned(ctx, tx, ownerID, externalID, true)
		if err != nil {
			return err
		}
		if u.Status == models.UploadDeletedByUser {
			return fmt.Errorf("%w: upload %s", common.ErrorNotFound, externalID)
		}
		result, err = NewUploadStore(s.repomanager, tx, s.logger).MarkDeletedByUser(ctx, u.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "upload deleted", "external_id", externalID)
	return result, nil
}

// List pages through the owner's uploads, newest first.
func (s *UploadService) List(ctx context.Context, ownerID string, filter models.UploadFilter) ([]*models.Upload, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrorValidation, filter.Status)
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.repomanager.Uploads(s.db).List(ctx, ownerID, filter)
}

// Status joins an upload with the newest outbox row of its process and, once
// completed, its extraction. Deduplicated uploads have no process of their
// own and report the canonical's.
func (s *UploadService) Status(ctx context.Context, ownerID, externalID string) (*models.UploadStatusView, error) {
	u, err := s.loadOwned(ctx, s.db, ownerID, externalID, false)
	if err != nil {
		return nil, err
	}

	view := &models.UploadStatusView{Upload: u}

	resultID := u.ID
	if u.Status == models.UploadDeduplicated && u.CanonicalReference != nil {
		resultID = *u.CanonicalReference
	}

	entry, err := s.repomanager.Outbox(s.db).CurrentByUpload(ctx, resultID)
	if errors.Is(err, common.ErrorNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	view.ProcessStatus = entry.SequenceStatus
	view.ErrorMessage = entry.ErrorMessage
	if entry.SequenceStatus != models.OutboxCompleted {
		return view, nil
	}

	extraction, err := s.repomanager.Extractions(s.db).GetByUploadID(ctx, resultID)
	if errors.Is(err, common.ErrorNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	view.Data = extraction.Data
	return view, nil
}

// Select stores the upload as the owner's selected document.
func (s *UploadService) Select(ctx context.Context, ownerID, externalID string) error {
	u, err := s.loadOwned(ctx, s.db, ownerID, externalID, false)
	if err != nil {
		return err
	}
	if u.Status == models.UploadDeletedByUser {
		return fmt.Errorf("%w: upload %s", common.ErrorNotFound, externalID)
	}
	return s.repomanager.Preferences(s.db).SetSelectedUpload(ctx, ownerID, u.ID)
}

// Package services contains server-side business logic: the upload
// lifecycle, canonical resolution, finalization, worker outcome reporting
// and the reaper primitives over the outbox log.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/dbx"
	"github.com/dmitrijs2005/ingestkeeper/internal/logging"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/outbox"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/uploads"
	"github.com/google/uuid"
)

// PreferenceClearer drops preferences that point at an upload.
type PreferenceClearer interface {
	ClearSelectedUpload(ctx context.Context, uploadID string) (int64, error)
}

// UploadStore applies lifecycle transitions to upload records. It is bound
// to one DBTX, normally the caller's transaction, so a transition and its
// side effects commit or roll back together.
type UploadStore struct {
	uploads     uploads.Repository
	outbox      outbox.Repository
	preferences PreferenceClearer
	logger      logging.Logger
}

// NewUploadStore binds the lifecycle operations to db.
func NewUploadStore(rm repomanager.RepositoryManager, db dbx.DBTX, logger logging.Logger) *UploadStore {
	return &UploadStore{
		uploads:     rm.Uploads(db),
		outbox:      rm.Outbox(db),
		preferences: rm.Preferences(db),
		logger:      logger,
	}
}

// CreatePending inserts a new pending record. Missing external and process
// ids are generated.
func (s *UploadStore) CreatePending(ctx context.Context, u *models.Upload) (*models.Upload, error) {
	if u.ExternalID == "" {
		u.ExternalID = uuid.NewString()
	}
	if u.ProcessID == "" {
		u.ProcessID = uuid.NewString()
	}
	u.Status = models.UploadPending
	u.IsCanonical = false
	u.CanonicalReference = nil

	if err := u.Validate(); err != nil {
		return nil, err
	}

	created, err := s.uploads.Create(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("create pending upload: %w", err)
	}
	return created, nil
}

// MarkUploaded moves a pending record to uploaded, makes it canonical for
// its hash and appends the first outbox row of its process. The caller must
// have revoked any previous canonical in the same transaction.
func (s *UploadStore) MarkUploaded(ctx context.Context, u *models.Upload, objectKey, contentHash string, size int64, extractedText *string) (*models.OutboxEntry, error) {
	if !models.CanTransition(u.Status, models.UploadUploaded) {
		return nil, fmt.Errorf("%w: %s -> %s (upload %s)", common.ErrInvalidStateTransition, u.Status, models.UploadUploaded, u.ExternalID)
	}

	next := *u
	next.Status = models.UploadUploaded
	next.ObjectKey = objectKey
	next.ContentHash = &contentHash
	next.Size = size
	next.IsCanonical = true
	next.ExtractedText = extractedText
	if err := next.Validate(); err != nil {
		return nil, err
	}

	if err := s.uploads.MarkUploaded(ctx, u.ID, objectKey, contentHash, size, extractedText); err != nil {
		return nil, err
	}

	entry, err := s.outbox.Append(ctx, &models.OutboxEntry{
		ProcessID:      u.ProcessID,
		SequenceStatus: models.OutboxPending,
		UploadID:       u.ID,
		ExternalID:     u.ExternalID,
		OwnerID:        u.OwnerID,
		ContentType:    u.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("append pending outbox entry: %w", err)
	}

	*u = next
	return entry, nil
}

// MarkDeduplicated points a pending record at the canonical upload holding
// the same content.
func (s *UploadStore) MarkDeduplicated(ctx context.Context, u, canonical *models.Upload, contentHash string, size int64, extractedText *string) error {
	if !models.CanTransition(u.Status, models.UploadDeduplicated) {
		return fmt.Errorf("%w: %s -> %s (upload %s)", common.ErrInvalidStateTransition, u.Status, models.UploadDeduplicated, u.ExternalID)
	}
	if canonical == nil || !canonical.IsCanonical {
		return fmt.Errorf("%w: deduplication target is not canonical", common.ErrInvariantViolation)
	}

	next := *u
	next.Status = models.UploadDeduplicated
	next.CanonicalReference = &canonical.ID
	next.ContentHash = &contentHash
	next.Size = size
	next.IsCanonical = false
	next.ExtractedText = extractedText
	if err := next.Validate(); err != nil {
		return err
	}

	if err := s.uploads.MarkDeduplicated(ctx, u.ID, canonical.ID, contentHash, size, extractedText); err != nil {
		return err
	}

	*u = next
	return nil
}

// MarkFailed records a client-reported failure. A record that already left
// pending is returned unchanged: failure reports race with finalize.
func (s *UploadStore) MarkFailed(ctx context.Context, id string) (*models.Upload, error) {
	u, err := s.uploads.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if u.Status.IsTerminal() {
		s.logger.Info(ctx, "mark failed ignored, upload already terminal", "upload_id", id, "status", u.Status)
		return u, nil
	}

	err = s.uploads.MarkFailed(ctx, id)
	if errors.Is(err, common.ErrInvalidStateTransition) {
		s.logger.Info(ctx, "mark failed lost race", "upload_id", id)
		return s.uploads.GetByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	u.Status = models.UploadFailed
	return u, nil
}

// MarkDeletedByUser soft-deletes a record and clears any preference that
// selected it.
func (s *UploadStore) MarkDeletedByUser(ctx context.Context, id string) (*models.Upload, error) {
	u, err := s.uploads.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(u.Status, models.UploadDeletedByUser) {
		return nil, fmt.Errorf("%w: %s -> %s (upload %s)", common.ErrInvalidStateTransition, u.Status, models.UploadDeletedByUser, u.ExternalID)
	}

	if err := s.uploads.MarkDeletedByUser(ctx, id); err != nil {
		return nil, err
	}

	cleared, err := s.preferences.ClearSelectedUpload(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("clear selected upload: %w", err)
	}
	if cleared > 0 {
		s.logger.Debug(ctx, "cleared selected upload preferences", "upload_id", id, "count", cleared)
	}

	u.Status = models.UploadDeletedByUser
	u.CanonicalReference = nil
	return u, nil
}

// Package models defines server-side data models persisted in the database
// together with the lifecycle rules attached to them.
package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
)

// UploadStatus is the lifecycle state of an uploaded file.
type UploadStatus string

const (
	UploadPending       UploadStatus = "pending"
	UploadUploaded      UploadStatus = "uploaded"
	UploadDeduplicated  UploadStatus = "deduplicated"
	UploadFailed        UploadStatus = "failed"
	UploadRejected      UploadStatus = "rejected"
	UploadDeletedByUser UploadStatus = "deleted-by-user"
)

// UploadStatuses lists every known status. Tests iterate it so that a new
// status cannot be added without classifying it.
var UploadStatuses = []UploadStatus{
	UploadPending,
	UploadUploaded,
	UploadDeduplicated,
	UploadFailed,
	UploadRejected,
	UploadDeletedByUser,
}

func (s UploadStatus) Valid() bool {
	for _, v := range UploadStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a pending-only operation can no longer apply.
func (s UploadStatus) IsTerminal() bool {
	return s != UploadPending
}

// CanTransition reports whether the state machine allows from -> to.
//
//	pending -> uploaded | deduplicated | failed
//	any non-deleted status -> deleted-by-user
func CanTransition(from, to UploadStatus) bool {
	switch to {
	case UploadUploaded, UploadDeduplicated, UploadFailed:
		return from == UploadPending
	case UploadDeletedByUser:
		return from.Valid() && from != UploadDeletedByUser
	default:
		return false
	}
}

// Upload is the per-file lifecycle record.
type Upload struct {
	ID          string
	ExternalID  string
	ProcessID   string
	ObjectKey   string
	Filename    string
	ContentType string
	OwnerID     string
	Status      UploadStatus
	// ContentHash stays nil until the bytes are stored.
	ContentHash *string
	Size        int64
	IsCanonical bool
	// CanonicalReference points at the canonical upload this one duplicates.
	CanonicalReference *string
	ExtractedText      *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate checks the standing invariants of a single record.
func (u *Upload) Validate() error {
	if !u.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", common.ErrInvariantViolation, u.Status)
	}
	if u.IsCanonical && u.Status == UploadDeduplicated {
		return fmt.Errorf("%w: deduplicated upload %s cannot be canonical", common.ErrInvariantViolation, u.ID)
	}
	hasRef := u.CanonicalReference != nil
	if hasRef != (u.Status == UploadDeduplicated) {
		return fmt.Errorf("%w: canonical reference must be set iff status is deduplicated (upload %s)", common.ErrInvariantViolation, u.ID)
	}
	if hasRef && *u.CanonicalReference == u.ID {
		return fmt.Errorf("%w: upload %s references itself", common.ErrInvariantViolation, u.ID)
	}
	return nil
}

// UploadFilter narrows owner upload listings.
type UploadFilter struct {
	Status UploadStatus
	Limit  uint64
	Offset uint64
}

// InitResult is returned when an upload slot is requested.
type InitResult struct {
	ExternalID string
	ObjectKey  string
	ProcessID  string
	// UploadURL is a presigned PUT URL when a presigner is configured.
	UploadURL string
}

// FinalizeRequest carries the client's view of the stored bytes.
type FinalizeRequest struct {
	OwnerID       string
	ExternalID    string
	ProcessID     string
	Size          int64
	ContentHash   string
	ExtractedText string
}

// FinalizeResult is the outcome of a finalize call. ExistingFileID is the
// canonical upload's external id when the upload was deduplicated.
type FinalizeResult struct {
	ExternalID     string
	Status         UploadStatus
	ExistingFileID string
}

package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus is one step of a processing attempt.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxSending    OutboxStatus = "sending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxCompleted  OutboxStatus = "completed"
	OutboxFailed     OutboxStatus = "failed"
	OutboxNotACV     OutboxStatus = "not-a-cv"
)

var OutboxStatuses = []OutboxStatus{
	OutboxPending,
	OutboxSending,
	OutboxProcessing,
	OutboxCompleted,
	OutboxFailed,
	OutboxNotACV,
}

func (s OutboxStatus) Valid() bool {
	for _, v := range OutboxStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxCompleted || s == OutboxFailed || s == OutboxNotACV
}

// rank orders the non-terminal steps of a path. Terminal statuses share the
// highest rank.
func (s OutboxStatus) rank() int {
	switch s {
	case OutboxPending:
		return 0
	case OutboxSending:
		return 1
	case OutboxProcessing:
		return 2
	default:
		return 3
	}
}

// CanFollow reports whether next may be appended after prev:
//
//	pending -> [sending] -> [processing] -> completed | failed | not-a-cv
//
// Optional steps may be skipped; nothing follows a terminal status.
func CanFollow(prev, next OutboxStatus) bool {
	if !prev.Valid() || !next.Valid() || prev.IsTerminal() || next == OutboxPending {
		return false
	}
	return next.rank() > prev.rank()
}

// OutboxEntry is one immutable row of the processing log.
type OutboxEntry struct {
	ID             int64
	ProcessID      string
	SequenceStatus OutboxStatus
	UploadID       string
	ExternalID     string
	OwnerID        string
	ContentType    string
	// ErrorMessage is only set on failed rows.
	ErrorMessage *string
	CreatedAt    time.Time
}

// Next derives the following row of the same process.
func (e *OutboxEntry) Next(status OutboxStatus, errMsg *string) *OutboxEntry {
	return &OutboxEntry{
		ProcessID:      e.ProcessID,
		SequenceStatus: status,
		UploadID:       e.UploadID,
		ExternalID:     e.ExternalID,
		OwnerID:        e.OwnerID,
		ContentType:    e.ContentType,
		ErrorMessage:   errMsg,
	}
}

// UploadStatusView joins an upload with the current status of its process.
// A deduplicated upload reports the process and extraction of its canonical.
type UploadStatusView struct {
	Upload        *Upload
	ProcessStatus OutboxStatus
	ErrorMessage  *string
	// Data is the extraction, set once the process completed.
	Data json.RawMessage
}

package models

import (
	"encoding/json"
	"time"
)

// Extraction is the structured result a worker produced for an upload.
type Extraction struct {
	UploadID  string
	ProcessID string
	Data      json.RawMessage
	CreatedAt time.Time
}

// OutcomeKind is what the worker reports for a process.
type OutcomeKind string

const (
	OutcomeProcessing OutcomeKind = "processing"
	OutcomeCompleted  OutcomeKind = "completed"
	OutcomeFailed     OutcomeKind = "failed"
	OutcomeNotACV     OutcomeKind = "not-a-cv"
)

// Outcome is a worker report. Data is used by completed, Message by failed.
type Outcome struct {
	Kind    OutcomeKind
	Data    json.RawMessage
	Message string
}

// Status maps the outcome onto the outbox row it appends.
func (o Outcome) Status() (OutboxStatus, bool) {
	switch o.Kind {
	case OutcomeProcessing:
		return OutboxProcessing, true
	case OutcomeCompleted:
		return OutboxCompleted, true
	case OutcomeFailed:
		return OutboxFailed, true
	case OutcomeNotACV:
		return OutboxNotACV, true
	default:
		return "", false
	}
}

func Completed(data json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeCompleted, Data: data}
}

func Failed(message string) Outcome {
	return Outcome{Kind: OutcomeFailed, Message: message}
}

func NotACV() Outcome {
	return Outcome{Kind: OutcomeNotACV}
}

func Processing() Outcome {
	return Outcome{Kind: OutcomeProcessing}
}

// ReportResult echoes the process and its status after a report.
type ReportResult struct {
	ProcessID string
	Status    OutboxStatus
	// Duplicate is set when the same transition had already been recorded.
	Duplicate bool
}

package models

// ProcessingRequest is the message handed to the extraction queue. ProcessID
// doubles as the idempotency key.
type ProcessingRequest struct {
	UploadID    string `json:"uploadId"`
	ExternalID  string `json:"externalId"`
	ProcessID   string `json:"processId"`
	OwnerID     string `json:"ownerId"`
	ContentType string `json:"contentType"`
}

// RequestFromEntry builds the queue message for an outbox row.
func RequestFromEntry(e *OutboxEntry) ProcessingRequest {
	return ProcessingRequest{
		UploadID:    e.UploadID,
		ExternalID:  e.ExternalID,
		ProcessID:   e.ProcessID,
		OwnerID:     e.OwnerID,
		ContentType: e.ContentType,
	}
}

// Package queue hands processing requests to the extraction workers. Every
// backend delivers at least once and tags each message with the process id
// so consumers can drop redeliveries.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
)

// Publisher enqueues processing requests.
type Publisher interface {
	Publish(ctx context.Context, req models.ProcessingRequest) error
	Close() error
}

func encode(req models.ProcessingRequest) ([]byte, error) {
	if req.ProcessID == "" {
		return nil, fmt.Errorf("%w: processing request without process id", common.ErrorValidation)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal processing request: %w", err)
	}
	return body, nil
}

// NopPublisher accepts and drops every request. Pending outbox rows are then
// left for an external relay.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, req models.ProcessingRequest) error {
	_, err := encode(req)
	return err
}

func (NopPublisher) Close() error { return nil }

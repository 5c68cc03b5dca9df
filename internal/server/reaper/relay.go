// Package reaper redelivers processes whose queue hand-off did not happen
// after finalize.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/logging"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/sethvargo/go-retry"
)

// Store is the part of the outbox the relay drives.
type Store interface {
	FindStalePendingLogs(ctx context.Context, limit int, minAge time.Duration) ([]*models.OutboxEntry, error)
	MarkAsSending(ctx context.Context, processID string) (*models.OutboxEntry, error)
	MarkDeliveryFailed(ctx context.Context, processID, message string) (*models.OutboxEntry, error)
}

type Publisher interface {
	Publish(ctx context.Context, req models.ProcessingRequest) error
}

// Settings tune the relay. Each publish is retried MaxRetries times with a
// wait starting at Backoff and doubling up to MaxBackoff.
type Settings struct {
	Interval   time.Duration
	BatchSize  int
	MinAge     time.Duration
	MaxRetries uint64
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Relay periodically claims stale pending processes and publishes them.
type Relay struct {
	store     Store
	publisher Publisher
	logger    logging.Logger
	settings  Settings
}

func New(store Store, publisher Publisher, logger logging.Logger, s Settings) *Relay {
	if s.Interval <= 0 {
		s.Interval = 30 * time.Second
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 100
	}
	if s.Backoff <= 0 {
		s.Backoff = time.Second
	}
	if s.MaxBackoff < s.Backoff {
		s.MaxBackoff = max(30*time.Second, s.Backoff)
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		logger:    logger.With("module", "relay"),
		settings:  s,
	}
}

// Run ticks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info(ctx, "relay started", "interval", r.settings.Interval.String())

	ticker := time.NewTicker(r.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info(ctx, "relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error(ctx, "relay pass failed", "error", err)
			}
		}
	}
}

// RunOnce processes one batch and returns how many processes were
// delivered. A delivery that exhausts its retries is marked failed and ends
// the pass; the rest of the batch stays pending for the next tick.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	entries, err := r.store.FindStalePendingLogs(ctx, r.settings.BatchSize, r.settings.MinAge)
	if err != nil {
		return 0, fmt.Errorf("find pending logs: %w", err)
	}

	delivered := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		claimed, err := r.store.MarkAsSending(ctx, e.ProcessID)
		if err != nil {
			r.logger.Error(ctx, "mark as sending", "process_id", e.ProcessID, "error", err)
			continue
		}
		if claimed == nil {
			continue
		}

		if err := r.publish(ctx, models.RequestFromEntry(claimed)); err != nil {
			r.logger.Warn(ctx, "redelivery failed", "process_id", e.ProcessID, "error", err)
			msg := fmt.Sprintf("queue delivery failed: %v", err)
			if _, ferr := r.store.MarkDeliveryFailed(ctx, e.ProcessID, msg); ferr != nil {
				r.logger.Error(ctx, "mark delivery failed", "process_id", e.ProcessID, "error", ferr)
			}
			return delivered, nil
		}

		delivered++
		r.logger.Info(ctx, "process redelivered", "process_id", e.ProcessID)
	}
	return delivered, nil
}

func (r *Relay) publish(ctx context.Context, req models.ProcessingRequest) error {
	b := retry.NewExponential(r.settings.Backoff)
	b = retry.WithCappedDuration(r.settings.MaxBackoff, b)
	b = retry.WithMaxRetries(r.settings.MaxRetries, b)
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := r.publisher.Publish(ctx, req); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

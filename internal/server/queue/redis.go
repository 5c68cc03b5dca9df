package queue

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/redis/go-redis/v9"
)

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisPublisher appends requests to a Redis stream.
type RedisPublisher struct {
	client streamAdder
	stream string
}

// NewRedisPublisher accepts either a redis:// URL or a bare host:port.
func NewRedisPublisher(ctx context.Context, url, stream string) (*RedisPublisher, error) {
	var client *redis.Client
	if opt, err := redis.ParseURL(url); err == nil {
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: url})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisPublisher{client: client, stream: stream}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, req models.ProcessingRequest) error {
	body, err := encode(req)
	if err != nil {
		return err
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			common.IdempotencyKeyHeader: req.ProcessID,
			"payload":                   string(body),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", req.ProcessID, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

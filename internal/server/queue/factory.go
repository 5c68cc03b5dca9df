package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/logging"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/config"
)

// New picks the publisher configured in cfg.QueueBackend.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (Publisher, error) {
	switch cfg.QueueBackend {
	case config.QueueKafka:
		logger.Info(ctx, "using kafka queue", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case config.QueueRabbitMQ:
		logger.Info(ctx, "using rabbitmq queue", "queue", cfg.RabbitQueue)
		return NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitQueue, 10, 2*time.Second)
	case config.QueueRedis:
		logger.Info(ctx, "using redis stream queue", "stream", cfg.RedisStream)
		return NewRedisPublisher(ctx, cfg.RedisURL, cfg.RedisStream)
	case config.QueueNone, "":
		logger.Warn(ctx, "queue disabled, pending processes wait for an external relay")
		return NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

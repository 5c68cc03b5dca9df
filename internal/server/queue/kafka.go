package queue

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per request, keyed by process id so
// every message of a process lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher builds a writer for topic. Connections are opened lazily
// on the first write.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("kafka publisher: brokers and topic are required")
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, req models.ProcessingRequest) error {
	body, err := encode(req)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(req.ProcessID),
		Value: body,
		Headers: []kafka.Header{
			{Key: common.IdempotencyKeyHeader, Value: []byte(req.ProcessID)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", req.ProcessID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

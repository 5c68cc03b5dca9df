package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes persistent messages to a durable queue through
// the default exchange.
type RabbitPublisher struct {
	conn      *amqp.Connection
	channel   amqpChannel
	queueName string
}

var dialAMQP = amqp.Dial

// NewRabbitPublisher connects (retrying up to attempts times) and declares
// the durable queue.
func NewRabbitPublisher(url, queueName string, attempts int, delay time.Duration) (*RabbitPublisher, error) {
	conn, err := connectWithRetry(url, attempts, delay)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &RabbitPublisher{
		conn:      conn,
		channel:   channel,
		queueName: queueName,
	}, nil
}

func connectWithRetry(url string, attempts int, delay time.Duration) (*amqp.Connection, error) {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		var conn *amqp.Connection
		conn, err = dialAMQP(url)
		if err == nil {
			return conn, nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempts, err)
}

func (p *RabbitPublisher) Publish(ctx context.Context, req models.ProcessingRequest) error {
	body, err := encode(req)
	if err != nil {
		return err
	}

	err = p.channel.PublishWithContext(ctx,
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    req.ProcessID,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{common.IdempotencyKeyHeader: req.ProcessID},
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", req.ProcessID, err)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Package events publishes trade notifications to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"virtual_market/internal/domain"

	"github.com/segmentio/kafka-go"
)

// Compile-time checks
var (
	_ domain.EventPublisher = (*KafkaPublisher)(nil)
	_ domain.EventPublisher = NopPublisher{}
)

// MessageWriter is the subset of *kafka.Writer used by the publisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ExecutionEvent is the wire form of a filled order
type ExecutionEvent struct {
	Type      string            `json:"type"` // "execution"
	Execution *domain.Execution `json:"execution"`
	SentAt    time.Time         `json:"sentAt"`
}

// KafkaPublisher writes one message per execution keyed by user id,
// so every user's trades land on one partition in order.
type KafkaPublisher struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewKafkaPublisher creates an asynchronous publisher. Delivery failures are logged.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("Execution notifications dropped", slog.Int("count", len(msgs)), slog.Any("error", err))
			}
		},
	}
	return NewPublisherWithWriter(w, logger)
}

// NewPublisherWithWriter wraps an existing writer
func NewPublisherWithWriter(w MessageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) PublishExecution(ctx context.Context, exec *domain.Execution) error {
	payload, err := json.Marshal(ExecutionEvent{
		Type:      "execution",
		Execution: exec,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode execution %s: %w", exec.ID, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(exec.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "side", Value: []byte(exec.Side)},
			{Key: "symbol", Value: []byte(exec.Symbol)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish execution %s: %w", exec.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards notifications
type NopPublisher struct{}

func (NopPublisher) PublishExecution(context.Context, *domain.Execution) error { return nil }
func (NopPublisher) Close() error                                             { return nil }

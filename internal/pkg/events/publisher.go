// Package events publishes absence status changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const EventAbsenceStatusChanged = "absence.status_changed"

// AbsenceStatusChangedEvent is the message body of EventAbsenceStatusChanged.
type AbsenceStatusChangedEvent struct {
	RequestID     string          `json:"request_id"`
	UserID        string          `json:"user_id"`
	Kind          string          `json:"kind"`
	Category      string          `json:"category"`
	Status        string          `json:"status"`
	Units         decimal.Decimal `json:"units"`
	ActorID       string          `json:"actor_id"`
	RefusalReason *string         `json:"refusal_reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type Publisher interface {
	PublishAbsenceStatusChanged(ctx context.Context, event AbsenceStatusChangedEvent) error
	Close() error
}

type noopPublisher struct{}

// NewNoopPublisher returns a publisher that drops every event. It is used when
// no broker is configured.
func NewNoopPublisher() Publisher { return noopPublisher{} }

func (noopPublisher) PublishAbsenceStatusChanged(context.Context, AbsenceStatusChangedEvent) error {
	return nil
}

func (noopPublisher) Close() error { return nil }

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	writer MessageWriter
	topic  string
}

func NewKafkaPublisher(writer MessageWriter, topic string) Publisher {
	return &kafkaPublisher{writer: writer, topic: topic}
}

// NewKafkaWriter builds a writer that balances by key, so every event of
// one request lands on the same partition.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

func (p *kafkaPublisher) PublishAbsenceStatusChanged(ctx context.Context, event AbsenceStatusChangedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", EventAbsenceStatusChanged, err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.RequestID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventAbsenceStatusChanged)},
			{Key: "status", Value: []byte(event.Status)},
		},
	})
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/segmentio/kafka-go"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ChatEvent represents a conversation lifecycle event. The recipient fields
// identify who the downstream notification service should notify.
type ChatEvent struct {
	EventType      string    `json:"event_type"` // message.new, chat.closed, chat.reopened
	ConversationID string    `json:"conversation_id"`
	ChatType       string    `json:"chat_type"`
	JobID          *string   `json:"job_id,omitempty"`
	JobTitle       *string   `json:"job_title,omitempty"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	RecipientID    string    `json:"recipient_id"`
	Preview        string    `json:"preview,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// PublishChatEvent publishes a chat event to Kafka. Keying on the
// conversation ID keeps events for one conversation in order.
func (p *Producer) PublishChatEvent(ctx context.Context, event *ChatEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishChatEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ConversationID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "chat_type", Value: []byte(event.ChatType)},
			{Key: "recipient_id", Value: []byte(event.RecipientID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish chat event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":      event.EventType,
		"conversation_id": event.ConversationID,
		"recipient_id":    event.RecipientID,
	}).Debug("Published chat event")

	return nil
}

// Package events handles notification event emission for conversation
// lifecycle changes. Emission is best effort: callers log and count
// failures but never fail the originating operation on a broker error.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/aster/pkg/kafka"
)

// Event types carried on the chat events topic
const (
	EventNewMessage   = "message.new"
	EventChatClosed   = "chat.closed"
	EventChatReopened = "chat.reopened"
)

// ChatNotification describes a conversation change addressed to one recipient
type ChatNotification struct {
	ConversationID string
	ChatType       string
	JobID          *string
	JobTitle       *string
	SenderID       string
	SenderName     string
	RecipientID    string
	Preview        string
}

// Emitter publishes chat notifications
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitNewMessage emits a message.new event
func (e *Emitter) EmitNewMessage(ctx context.Context, n ChatNotification) error {
	return e.emit(ctx, EventNewMessage, n)
}

// EmitChatClosed emits a chat.closed event
func (e *Emitter) EmitChatClosed(ctx context.Context, n ChatNotification) error {
	return e.emit(ctx, EventChatClosed, n)
}

// EmitChatReopened emits a chat.reopened event
func (e *Emitter) EmitChatReopened(ctx context.Context, n ChatNotification) error {
	return e.emit(ctx, EventChatReopened, n)
}

func (e *Emitter) emit(ctx context.Context, eventType string, n ChatNotification) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.emit")
	defer span.End()

	event := &kafka.ChatEvent{
		EventType:      eventType,
		ConversationID: n.ConversationID,
		ChatType:       n.ChatType,
		JobID:          n.JobID,
		JobTitle:       n.JobTitle,
		SenderID:       n.SenderID,
		SenderName:     n.SenderName,
		RecipientID:    n.RecipientID,
		Preview:        n.Preview,
	}

	if err := e.producer.PublishChatEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type":      eventType,
			"conversation_id": n.ConversationID,
		}).Error("Failed to emit chat event")
		return err
	}

	return nil
}

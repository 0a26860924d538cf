package models

import "time"

// Message is owned by its conversation and is append-only: nothing mutates
// after insert except the read flag flipping false to true. Messages are
// never deleted individually; deleting a conversation cascades.
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	SenderID       string    `json:"sender_id" db:"sender_id"`
	SenderRole     UserRole  `json:"sender_role" db:"sender_role"`
	Body           string    `json:"body" db:"body"`
	Read           bool      `json:"read" db:"read"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

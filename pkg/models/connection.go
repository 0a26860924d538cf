package models

import "time"

// ConnectionStatus is the lifecycle status of a connection request
type ConnectionStatus string

const (
	ConnectionStatusPending  ConnectionStatus = "pending"
	ConnectionStatusAccepted ConnectionStatus = "accepted"
	ConnectionStatusRejected ConnectionStatus = "rejected"
)

// MaxConnectionMessageLength caps the optional note attached to a request
const MaxConnectionMessageLength = 300

// ConnectionRequest is a directed request between two users. At most one
// request exists per unordered pair regardless of direction; a rejected
// request is reused on resend instead of creating a new row.
type ConnectionRequest struct {
	ID          string           `json:"id" db:"id"`
	SenderID    string           `json:"sender_id" db:"sender_id"`
	ReceiverID  string           `json:"receiver_id" db:"receiver_id"`
	Status      ConnectionStatus `json:"status" db:"status"`
	Message     *string          `json:"message,omitempty" db:"message"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty" db:"responded_at"`
}

// Connection standing values as seen from one user's perspective
const (
	StandingConnected = "connected" // accepted request exists
	StandingPending   = "pending"   // this user sent a request, awaiting response
	StandingReceived  = "received"  // the other user sent a request, this user can respond
	StandingNone      = "none"      // no live request between the pair
)

// ConnectionStanding describes the relationship between two users.
// RequestID is set only for "received" so the caller can respond to it.
type ConnectionStanding struct {
	Status    string  `json:"status"`
	RequestID *string `json:"request_id,omitempty"`
}

// CanonicalPair orders two user IDs deterministically so unordered-pair
// lookups are commutative regardless of which user initiates.
func CanonicalPair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

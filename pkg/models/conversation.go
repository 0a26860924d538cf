package models

import "time"

// ChatType distinguishes job-scoped conversations from permanent direct ones
type ChatType string

const (
	ChatTypeJob    ChatType = "job"    // tied to a posting, subject to job closure
	ChatTypeDirect ChatType = "direct" // permanent channel between connected users
)

// Conversation is a message thread between an employer and a job seeker.
// The two participant slots are canonical roles regardless of who initiated.
// Job-scoped conversations start pending employer acceptance; direct ones are
// created permanent and accepted, since the accepted connection that gates
// their creation already establishes consent.
//
// acceptedByEmployer and closedByEmployer are independent flags: a
// conversation can be both accepted and closed, and closing never clears
// acceptance.
type Conversation struct {
	ID                 string     `json:"id" db:"id"`
	JobID              *string    `json:"job_id,omitempty" db:"job_id"`
	EmployerID         string     `json:"employer_id" db:"employer_id"`
	JobSeekerID        string     `json:"job_seeker_id" db:"job_seeker_id"`
	ChatType           ChatType   `json:"chat_type" db:"chat_type"`
	LastMessage        *string    `json:"last_message,omitempty" db:"last_message"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
	UnreadEmployer     int        `json:"unread_employer" db:"unread_employer"`
	UnreadJobSeeker    int        `json:"unread_job_seeker" db:"unread_job_seeker"`
	AcceptedByEmployer bool       `json:"accepted_by_employer" db:"accepted_by_employer"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	IsPermanent        bool       `json:"is_permanent" db:"is_permanent"`
	ClosedByEmployer   bool       `json:"closed_by_employer" db:"closed_by_employer"`
	ClosedAt           *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// HasParticipant reports whether userID occupies either slot
func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.EmployerID || userID == c.JobSeekerID
}

// RoleOf returns the slot role of a participant
func (c *Conversation) RoleOf(userID string) (UserRole, bool) {
	switch userID {
	case c.EmployerID:
		return RoleEmployer, true
	case c.JobSeekerID:
		return RoleJobSeeker, true
	default:
		return "", false
	}
}

// Counterpart returns the other participant's ID
func (c *Conversation) Counterpart(userID string) string {
	if userID == c.EmployerID {
		return c.JobSeekerID
	}
	return c.EmployerID
}

// UnreadFor returns the unread counter maintained for a participant
func (c *Conversation) UnreadFor(role UserRole) int {
	if role == RoleEmployer {
		return c.UnreadEmployer
	}
	return c.UnreadJobSeeker
}

// ConversationSummary is the list view of a conversation, enriched with the
// counterpart's display name and the job title for job-scoped threads.
type ConversationSummary struct {
	Conversation
	CounterpartName string  `json:"counterpart_name" db:"counterpart_name"`
	JobTitle        *string `json:"job_title,omitempty" db:"job_title"`
}

// ResolveDirectSlots maps two users onto the (employer, jobSeeker) slots of
// a direct conversation. Mixed-role pairs map by role; same-role pairs fall
// back to canonical ID ordering so either initiator resolves to the same
// conversation row.
func ResolveDirectSlots(a, b *User) (employerID, jobSeekerID string) {
	if a.Role == RoleEmployer && b.Role != RoleEmployer {
		return a.ID, b.ID
	}
	if b.Role == RoleEmployer && a.Role != RoleEmployer {
		return b.ID, a.ID
	}
	low, high := CanonicalPair(a.ID, b.ID)
	return low, high
}

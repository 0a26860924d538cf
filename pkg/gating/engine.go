// Package gating decides whether two parties may currently exchange messages.
// It is pure decision logic over conversation and job state; it holds no
// state of its own and performs no I/O.
package gating

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/aster/pkg/models"
)

// Decision is the outcome of a gating check
type Decision int

const (
	Allow Decision = iota
	DenyJobClosed
	DenyChatClosed
	DenyNotConnected
)

// Allowed reports whether the gated action may proceed
func (d Decision) Allowed() bool {
	return d == Allow
}

// Reason returns a stable machine tag for metrics and logging
func (d Decision) Reason() string {
	switch d {
	case DenyJobClosed:
		return "job_closed"
	case DenyChatClosed:
		return "chat_closed"
	case DenyNotConnected:
		return "not_connected"
	default:
		return "allow"
	}
}

// Err maps a denial to a typed HTTP error with an actionable message.
// Returns nil for Allow.
func (d Decision) Err() error {
	switch d {
	case DenyJobClosed:
		return httperror.NewHTTPError(http.StatusConflict, "this job has been closed and no longer accepts messages")
	case DenyChatClosed:
		return httperror.NewHTTPError(http.StatusConflict, "the employer has closed this conversation")
	case DenyNotConnected:
		return httperror.NewHTTPError(http.StatusForbidden, "you must be connected with this user first")
	default:
		return nil
	}
}

// CanMessage decides whether a message may be sent in a conversation.
// Direct and permanent conversations always allow: once two users are
// connected their private channel persists independent of any job's
// lifecycle, so neither job closure nor employer chat closure applies.
// Job-scoped conversations deny on a closed or inactive job before the
// employer's chat-closed flag is consulted; job is nil when the referenced
// posting no longer resolves, which gates the same as closed.
func CanMessage(conv *models.Conversation, job *models.Job) Decision {
	if conv.ChatType == models.ChatTypeDirect || conv.IsPermanent {
		return Allow
	}
	if !job.Open() {
		return DenyJobClosed
	}
	if conv.ClosedByEmployer {
		return DenyChatClosed
	}
	return Allow
}

// CanCreate decides whether a conversation may be created at all.
// Job-scoped creation passes job=the posting and requireConnection=false:
// applying to a job is itself the connection signal, so no prior accepted
// connection is needed. Direct creation passes job=nil and
// requireConnection=true. The asymmetry is deliberate.
func CanCreate(job *models.Job, connected bool, requireConnection bool) Decision {
	if job != nil && !job.Open() {
		return DenyJobClosed
	}
	if requireConnection && !connected {
		return DenyNotConnected
	}
	return Allow
}

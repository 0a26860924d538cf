// Package connection persists directed connection requests between users.
// Pair uniqueness is enforced in both directions: the table carries a
// canonical (user_low, user_high) pair under a unique constraint, so a
// reverse-direction duplicate fails at insert time instead of silently
// merging.
package connection

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/models"
)

var requestColumns = []string{"id", "sender_id", "receiver_id", "status", "message", "created_at", "responded_at"}

// Repository handles connection request persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new connection repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Request creates a pending request from sender to receiver. A rejected
// request between the pair is reused: it flips back to pending with
// responded_at cleared and the row ID preserved, re-pointed at the current
// direction. An accepted or pending request in either direction fails.
func (r *Repository) Request(ctx context.Context, senderID, receiverID string, message *string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.Request")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Request",
		"sender_id":   senderID,
		"receiver_id": receiverID,
	})

	if senderID == receiverID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "you cannot send a connection request to yourself")
	}

	existing, err := r.getByPair(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		switch existing.Status {
		case models.ConnectionStatusAccepted:
			return nil, httperror.NewHTTPError(http.StatusConflict, "you are already connected with this user")
		case models.ConnectionStatusPending:
			return nil, httperror.NewHTTPError(http.StatusConflict, "a connection request between you is already pending")
		case models.ConnectionStatusRejected:
			return r.resend(ctx, existing.ID, senderID, receiverID, message)
		}
	}

	now := time.Now().UTC()
	req := &models.ConnectionRequest{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.ConnectionStatusPending,
		Message:    message,
		CreatedAt:  now,
	}

	low, high := models.CanonicalPair(senderID, receiverID)

	// ON CONFLICT DO NOTHING keeps a concurrent first-request race from
	// producing two rows for the pair; the loser surfaces as already-pending.
	query := `
		INSERT INTO connection_requests (id, sender_id, receiver_id, user_low, user_high, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_low, user_high) DO NOTHING
		RETURNING id
	`
	var insertedID string
	err = r.db.GetContext(ctx, &insertedID, query, req.ID, senderID, receiverID, low, high, req.Status, message, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPError(http.StatusConflict, "a connection request between you is already pending")
	}
	if err != nil {
		log.WithError(err).Error("Failed to create connection request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to send connection request")
	}

	log.WithFields(map[string]any{"id": req.ID}).Info("Created connection request")
	return req, nil
}

// resend flips a rejected request back to pending, keeping the row ID
func (r *Repository) resend(ctx context.Context, id, senderID, receiverID string, message *string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.resend")
	defer span.End()

	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("connection_requests")
	sb.Set(
		sb.Assign("sender_id", senderID),
		sb.Assign("receiver_id", receiverID),
		sb.Assign("status", models.ConnectionStatusPending),
		sb.Assign("message", message),
		sb.Assign("created_at", now),
		sb.Assign("responded_at", nil),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.ConnectionStatusRejected),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resend connection request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to send connection request")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Lost a race with a concurrent resend or response
		return nil, httperror.NewHTTPError(http.StatusConflict, "a connection request between you is already pending")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Resent rejected connection request")
	return &models.ConnectionRequest{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.ConnectionStatusPending,
		Message:    message,
		CreatedAt:  now,
	}, nil
}

// Get retrieves a connection request by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requestColumns...)
	sb.From("connection_requests")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var req models.ConnectionRequest
	if err := r.db.GetContext(ctx, &req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "connection request not found")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get connection request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get connection request")
	}

	return &req, nil
}

// Respond accepts or rejects a pending request. Only the receiver may
// respond; accepting an already-accepted request is an error, not a no-op.
func (r *Repository) Respond(ctx context.Context, id, responderID string, accept bool) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.Respond")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":       "Respond",
		"request_id":   id,
		"responder_id": responderID,
		"accept":       accept,
	})

	req, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != responderID {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "not authorized to respond to this connection request")
	}
	if req.Status == models.ConnectionStatusAccepted {
		return nil, httperror.NewHTTPError(http.StatusConflict, "this connection request has already been accepted")
	}
	if req.Status != models.ConnectionStatusPending {
		return nil, httperror.NewHTTPError(http.StatusConflict, "this connection request has already been processed")
	}

	status := models.ConnectionStatusRejected
	if accept {
		status = models.ConnectionStatusAccepted
	}
	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("connection_requests")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("responded_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.ConnectionStatusPending),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("Failed to respond to connection request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to respond to connection request")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusConflict, "this connection request has already been processed")
	}

	req.Status = status
	req.RespondedAt = &now
	log.Info("Responded to connection request")
	return req, nil
}

// Cancel hard-deletes a still-pending request. Only the sender may cancel.
func (r *Repository) Cancel(ctx context.Context, id, requesterID string) error {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.Cancel")
	defer span.End()

	req, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.SenderID != requesterID {
		return httperror.NewHTTPError(http.StatusForbidden, "not authorized to cancel this connection request")
	}
	if req.Status != models.ConnectionStatusPending {
		return httperror.NewHTTPError(http.StatusConflict, "only pending connection requests can be cancelled")
	}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("connection_requests")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.ConnectionStatusPending),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to cancel connection request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to cancel connection request")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Cancelled connection request")
	return nil
}

// IsConnected reports whether an accepted request exists for the pair
func (r *Repository) IsConnected(ctx context.Context, userA, userB string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.IsConnected")
	defer span.End()

	req, err := r.getByPair(ctx, userA, userB)
	if err != nil {
		return false, err
	}
	return req != nil && req.Status == models.ConnectionStatusAccepted, nil
}

// StatusBetween describes the pair's standing from userID's perspective
func (r *Repository) StatusBetween(ctx context.Context, userID, otherID string) (*models.ConnectionStanding, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.StatusBetween")
	defer span.End()

	req, err := r.getByPair(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return &models.ConnectionStanding{Status: models.StandingNone}, nil
	}

	switch req.Status {
	case models.ConnectionStatusAccepted:
		return &models.ConnectionStanding{Status: models.StandingConnected}, nil
	case models.ConnectionStatusPending:
		if req.SenderID == userID {
			return &models.ConnectionStanding{Status: models.StandingPending}, nil
		}
		return &models.ConnectionStanding{Status: models.StandingReceived, RequestID: &req.ID}, nil
	default:
		// A rejected request is invisible; the sender may try again
		return &models.ConnectionStanding{Status: models.StandingNone}, nil
	}
}

// ListIncoming returns pending requests addressed to the user, newest first
func (r *Repository) ListIncoming(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	return r.listByStatus(ctx, "receiver_id", userID)
}

// ListSent returns pending requests the user has sent, newest first
func (r *Repository) ListSent(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	return r.listByStatus(ctx, "sender_id", userID)
}

func (r *Repository) listByStatus(ctx context.Context, column, userID string) ([]models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.listByStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requestColumns...)
	sb.From("connection_requests")
	sb.Where(
		sb.Equal(column, userID),
		sb.Equal("status", models.ConnectionStatusPending),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var requests []models.ConnectionRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list connection requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connection requests")
	}

	return requests, nil
}

// ListConnectedUsers returns the users the given user holds an accepted
// connection with, resolved to their directory entries.
func (r *Repository) ListConnectedUsers(ctx context.Context, userID string) ([]models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "connection.Repository.ListConnectedUsers")
	defer span.End()

	query := `
		SELECT u.id, u.name, u.role
		FROM connection_requests cr
		JOIN users u ON u.id = CASE WHEN cr.sender_id = $1 THEN cr.receiver_id ELSE cr.sender_id END
		WHERE (cr.sender_id = $1 OR cr.receiver_id = $1)
		  AND cr.status = 'accepted'
		ORDER BY u.name
	`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, userID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list connected users")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connections")
	}

	return users, nil
}

// getByPair fetches the single request for the unordered pair, if any
func (r *Repository) getByPair(ctx context.Context, userA, userB string) (*models.ConnectionRequest, error) {
	low, high := models.CanonicalPair(userA, userB)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(requestColumns...)
	sb.From("connection_requests")
	sb.Where(
		sb.Equal("user_low", low),
		sb.Equal("user_high", high),
	)

	query, args := sb.Build()
	var req models.ConnectionRequest
	if err := r.db.GetContext(ctx, &req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to look up connection pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check connection status")
	}

	return &req, nil
}

// Package connections manages the connection request lifecycle between
// users. An accepted connection is the key that unlocks direct messaging.
package connections

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/redis"
)

// Store persists connection requests
type Store interface {
	Request(ctx context.Context, senderID, receiverID string, message *string) (*models.ConnectionRequest, error)
	Get(ctx context.Context, id string) (*models.ConnectionRequest, error)
	Respond(ctx context.Context, id, responderID string, accept bool) (*models.ConnectionRequest, error)
	Cancel(ctx context.Context, id, requesterID string) error
	IsConnected(ctx context.Context, userA, userB string) (bool, error)
	StatusBetween(ctx context.Context, userID, otherID string) (*models.ConnectionStanding, error)
	ListIncoming(ctx context.Context, userID string) ([]models.ConnectionRequest, error)
	ListSent(ctx context.Context, userID string) ([]models.ConnectionRequest, error)
	ListConnectedUsers(ctx context.Context, userID string) ([]models.User, error)
}

// RateLimiter throttles how fast a user may send connection requests
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*redis.RateLimitResult, error)
}

// UserDirectory resolves user IDs to directory entries
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Service implements the connection request lifecycle
type Service struct {
	store        Store
	users        UserDirectory
	limiter      RateLimiter
	requestLimit int64
	window       time.Duration
	logger       ectologger.Logger
}

// NewService creates a new connections service
func NewService(store Store, users UserDirectory, limiter RateLimiter, requestLimit int64, window time.Duration, logger ectologger.Logger) *Service {
	return &Service{
		store:        store,
		users:        users,
		limiter:      limiter,
		requestLimit: requestLimit,
		window:       window,
		logger:       logger,
	}
}

// Request sends a connection request with an optional short intro message
func (s *Service) Request(ctx context.Context, senderID, receiverID string, message *string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.Request")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Request",
		"sender_id":   senderID,
		"receiver_id": receiverID,
	})

	if message != nil && len([]rune(*message)) > models.MaxConnectionMessageLength {
		return nil, httperror.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("connection message must be %d characters or fewer", models.MaxConnectionMessageLength))
	}

	if s.limiter != nil {
		result, err := s.limiter.Allow(ctx, "connections:"+senderID, s.requestLimit, s.window)
		if err != nil {
			// Redis being down should not block connection requests
			log.WithError(err).Error("Rate limit check failed, allowing request")
		} else if !result.Allowed {
			metrics.ConnectionRequestsTotal.WithLabelValues("rate_limited").Inc()
			return nil, httperror.NewHTTPError(http.StatusTooManyRequests, "too many connection requests, try again later")
		}
	}

	// Receiver must exist before a request row points at them
	if _, err := s.users.GetUser(ctx, receiverID); err != nil {
		return nil, err
	}

	req, err := s.store.Request(ctx, senderID, receiverID, message)
	if err != nil {
		metrics.ConnectionRequestsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	metrics.ConnectionRequestsTotal.WithLabelValues("sent").Inc()
	log.WithFields(map[string]any{"request_id": req.ID}).Info("Sent connection request")
	return req, nil
}

// Accept accepts a pending request addressed to the user
func (s *Service) Accept(ctx context.Context, requestID, userID string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.Accept")
	defer span.End()

	req, err := s.store.Respond(ctx, requestID, userID, true)
	if err != nil {
		return nil, err
	}

	metrics.ConnectionRequestsTotal.WithLabelValues("accepted").Inc()
	return req, nil
}

// Reject declines a pending request addressed to the user. The sender may
// ask again later.
func (s *Service) Reject(ctx context.Context, requestID, userID string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.Reject")
	defer span.End()

	req, err := s.store.Respond(ctx, requestID, userID, false)
	if err != nil {
		return nil, err
	}

	metrics.ConnectionRequestsTotal.WithLabelValues("declined").Inc()
	return req, nil
}

// Cancel withdraws a pending request the user sent
func (s *Service) Cancel(ctx context.Context, requestID, userID string) error {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.Cancel")
	defer span.End()

	if err := s.store.Cancel(ctx, requestID, userID); err != nil {
		return err
	}

	metrics.ConnectionRequestsTotal.WithLabelValues("cancelled").Inc()
	return nil
}

// ListConnections returns the user's accepted connections
func (s *Service) ListConnections(ctx context.Context, userID string) ([]models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.ListConnections")
	defer span.End()

	return s.store.ListConnectedUsers(ctx, userID)
}

// ListIncoming returns pending requests addressed to the user
func (s *Service) ListIncoming(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.ListIncoming")
	defer span.End()

	return s.store.ListIncoming(ctx, userID)
}

// ListSent returns pending requests the user has sent
func (s *Service) ListSent(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.ListSent")
	defer span.End()

	return s.store.ListSent(ctx, userID)
}

// StatusBetween describes the user's standing with another user
func (s *Service) StatusBetween(ctx context.Context, userID, otherID string) (*models.ConnectionStanding, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Service.StatusBetween")
	defer span.End()

	if _, err := s.users.GetUser(ctx, otherID); err != nil {
		return nil, err
	}

	return s.store.StatusBetween(ctx, userID, otherID)
}

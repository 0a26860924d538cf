package connections

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/redis"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// fakeStore keeps one request per unordered pair, like the real table
type fakeStore struct {
	byPair map[string]*models.ConnectionRequest
}

func newFakeStore() *fakeStore {
	return &fakeStore{byPair: make(map[string]*models.ConnectionRequest)}
}

func pairKey(a, b string) string {
	low, high := models.CanonicalPair(a, b)
	return low + "|" + high
}

func (f *fakeStore) Request(ctx context.Context, senderID, receiverID string, message *string) (*models.ConnectionRequest, error) {
	if senderID == receiverID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "you cannot send a connection request to yourself")
	}
	key := pairKey(senderID, receiverID)
	if existing, ok := f.byPair[key]; ok {
		switch existing.Status {
		case models.ConnectionStatusAccepted:
			return nil, httperror.NewHTTPError(http.StatusConflict, "you are already connected with this user")
		case models.ConnectionStatusPending:
			return nil, httperror.NewHTTPError(http.StatusConflict, "a connection request between you is already pending")
		case models.ConnectionStatusRejected:
			existing.SenderID = senderID
			existing.ReceiverID = receiverID
			existing.Status = models.ConnectionStatusPending
			existing.Message = message
			existing.CreatedAt = time.Now().UTC()
			existing.RespondedAt = nil
			return existing, nil
		}
	}
	req := &models.ConnectionRequest{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.ConnectionStatusPending,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}
	f.byPair[key] = req
	return req, nil
}

func (f *fakeStore) find(id string) *models.ConnectionRequest {
	for _, req := range f.byPair {
		if req.ID == id {
			return req
		}
	}
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*models.ConnectionRequest, error) {
	if req := f.find(id); req != nil {
		return req, nil
	}
	return nil, httperror.NewHTTPError(http.StatusNotFound, "connection request not found")
}

func (f *fakeStore) Respond(ctx context.Context, id, responderID string, accept bool) (*models.ConnectionRequest, error) {
	req := f.find(id)
	if req == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "connection request not found")
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
	now := time.Now().UTC()
	if accept {
		req.Status = models.ConnectionStatusAccepted
	} else {
		req.Status = models.ConnectionStatusRejected
	}
	req.RespondedAt = &now
	return req, nil
}

func (f *fakeStore) Cancel(ctx context.Context, id, requesterID string) error {
	req := f.find(id)
	if req == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "connection request not found")
	}
	if req.SenderID != requesterID {
		return httperror.NewHTTPError(http.StatusForbidden, "not authorized to cancel this connection request")
	}
	if req.Status != models.ConnectionStatusPending {
		return httperror.NewHTTPError(http.StatusConflict, "only pending connection requests can be cancelled")
	}
	delete(f.byPair, pairKey(req.SenderID, req.ReceiverID))
	return nil
}

func (f *fakeStore) IsConnected(ctx context.Context, userA, userB string) (bool, error) {
	req, ok := f.byPair[pairKey(userA, userB)]
	return ok && req.Status == models.ConnectionStatusAccepted, nil
}

func (f *fakeStore) StatusBetween(ctx context.Context, userID, otherID string) (*models.ConnectionStanding, error) {
	req, ok := f.byPair[pairKey(userID, otherID)]
	if !ok || req.Status == models.ConnectionStatusRejected {
		return &models.ConnectionStanding{Status: models.StandingNone}, nil
	}
	if req.Status == models.ConnectionStatusAccepted {
		return &models.ConnectionStanding{Status: models.StandingConnected}, nil
	}
	if req.SenderID == userID {
		return &models.ConnectionStanding{Status: models.StandingPending}, nil
	}
	return &models.ConnectionStanding{Status: models.StandingReceived, RequestID: &req.ID}, nil
}

func (f *fakeStore) ListIncoming(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	var out []models.ConnectionRequest
	for _, req := range f.byPair {
		if req.ReceiverID == userID && req.Status == models.ConnectionStatusPending {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeStore) ListSent(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	var out []models.ConnectionRequest
	for _, req := range f.byPair {
		if req.SenderID == userID && req.Status == models.ConnectionStatusPending {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeStore) ListConnectedUsers(ctx context.Context, userID string) ([]models.User, error) {
	return nil, nil
}

type fakeUsers struct {
	users map[string]*models.User
}

func (f *fakeUsers) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return u, nil
}

type fakeLimiter struct {
	calls   int
	allowed bool
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*redis.RateLimitResult, error) {
	f.calls++
	return &redis.RateLimitResult{Allowed: f.allowed}, nil
}

func newTestService(limiter RateLimiter) (*Service, *fakeStore) {
	store := newFakeStore()
	users := &fakeUsers{users: map[string]*models.User{
		"user-a": {ID: "user-a", Name: "Ana", Role: models.RoleJobSeeker},
		"user-b": {ID: "user-b", Name: "Ben", Role: models.RoleEmployer},
	}}
	return NewService(store, users, limiter, 20, time.Hour, testLogger()), store
}

func TestRequestLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("request then accept connects the pair", func(t *testing.T) {
		svc, store := newTestService(nil)

		req, err := svc.Request(ctx, "user-a", "user-b", nil)
		require.NoError(t, err)
		assert.Equal(t, models.ConnectionStatusPending, req.Status)

		accepted, err := svc.Accept(ctx, req.ID, "user-b")
		require.NoError(t, err)
		assert.Equal(t, models.ConnectionStatusAccepted, accepted.Status)
		assert.NotNil(t, accepted.RespondedAt)

		connected, err := store.IsConnected(ctx, "user-b", "user-a")
		require.NoError(t, err)
		assert.True(t, connected)
	})

	t.Run("reject allows resending later", func(t *testing.T) {
		svc, _ := newTestService(nil)

		req, err := svc.Request(ctx, "user-a", "user-b", nil)
		require.NoError(t, err)
		_, err = svc.Reject(ctx, req.ID, "user-b")
		require.NoError(t, err)

		standing, err := svc.StatusBetween(ctx, "user-a", "user-b")
		require.NoError(t, err)
		assert.Equal(t, models.StandingNone, standing.Status)

		resent, err := svc.Request(ctx, "user-a", "user-b", nil)
		require.NoError(t, err)
		assert.Equal(t, models.ConnectionStatusPending, resent.Status)
		assert.Nil(t, resent.RespondedAt)
	})

	t.Run("duplicate pending request conflicts in either direction", func(t *testing.T) {
		svc, _ := newTestService(nil)

		_, err := svc.Request(ctx, "user-a", "user-b", nil)
		require.NoError(t, err)

		_, err = svc.Request(ctx, "user-a", "user-b", nil)
		assertStatus(t, err, http.StatusConflict)
		_, err = svc.Request(ctx, "user-b", "user-a", nil)
		assertStatus(t, err, http.StatusConflict)
	})

	t.Run("cancel withdraws a pending request", func(t *testing.T) {
		svc, _ := newTestService(nil)

		req, err := svc.Request(ctx, "user-a", "user-b", nil)
		require.NoError(t, err)

		// Receiver cannot cancel
		assertStatus(t, svc.Cancel(ctx, req.ID, "user-b"), http.StatusForbidden)

		require.NoError(t, svc.Cancel(ctx, req.ID, "user-a"))
		standing, err := svc.StatusBetween(ctx, "user-a", "user-b")
		require.NoError(t, err)
		assert.Equal(t, models.StandingNone, standing.Status)
	})
}

func TestRequestValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("overlong message is rejected", func(t *testing.T) {
		svc, _ := newTestService(nil)
		long := strings.Repeat("x", models.MaxConnectionMessageLength+1)
		_, err := svc.Request(ctx, "user-a", "user-b", &long)
		assertStatus(t, err, http.StatusBadRequest)
	})

	t.Run("message at the limit passes", func(t *testing.T) {
		svc, _ := newTestService(nil)
		exact := strings.Repeat("x", models.MaxConnectionMessageLength)
		_, err := svc.Request(ctx, "user-a", "user-b", &exact)
		require.NoError(t, err)
	})

	t.Run("unknown receiver is a 404", func(t *testing.T) {
		svc, _ := newTestService(nil)
		_, err := svc.Request(ctx, "user-a", "user-ghost", nil)
		assertStatus(t, err, http.StatusNotFound)
	})
}

func TestRequestRateLimit(t *testing.T) {
	ctx := context.Background()

	limiter := &fakeLimiter{allowed: false}
	svc, _ := newTestService(limiter)

	_, err := svc.Request(ctx, "user-a", "user-b", nil)
	assertStatus(t, err, http.StatusTooManyRequests)
	assert.Equal(t, 1, limiter.calls)

	limiter.allowed = true
	_, err = svc.Request(ctx, "user-a", "user-b", nil)
	require.NoError(t, err)
}

func TestStatusBetween(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(nil)

	standing, err := svc.StatusBetween(ctx, "user-a", "user-b")
	require.NoError(t, err)
	assert.Equal(t, models.StandingNone, standing.Status)

	req, err := svc.Request(ctx, "user-a", "user-b", nil)
	require.NoError(t, err)

	standing, err = svc.StatusBetween(ctx, "user-a", "user-b")
	require.NoError(t, err)
	assert.Equal(t, models.StandingPending, standing.Status)

	standing, err = svc.StatusBetween(ctx, "user-b", "user-a")
	require.NoError(t, err)
	assert.Equal(t, models.StandingReceived, standing.Status)
	require.NotNil(t, standing.RequestID)
	assert.Equal(t, req.ID, *standing.RequestID)

	_, err = svc.Accept(ctx, req.ID, "user-b")
	require.NoError(t, err)

	standing, err = svc.StatusBetween(ctx, "user-a", "user-b")
	require.NoError(t, err)
	assert.Equal(t, models.StandingConnected, standing.Status)
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err), "expected http error, got %v", err)
	assert.Equal(t, status, httperror.GetStatusCode(err))
}

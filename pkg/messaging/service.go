// Package messaging drives the conversation lifecycle: starting
// conversations, sending messages through the gate, read state, and the
// employer accept/close/reopen controls.
//
// State changes commit before any notification is emitted. Emission is
// best effort and never fails the operation.
package messaging

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/aster/pkg/events"
	"github.com/Ramsey-B/aster/pkg/gating"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
)

// ConversationStore persists conversations and messages
type ConversationStore interface {
	GetOrCreateJob(ctx context.Context, jobID, employerID, jobSeekerID string) (*models.Conversation, bool, error)
	GetOrCreateDirect(ctx context.Context, employerID, jobSeekerID string) (*models.Conversation, bool, error)
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	AppendMessage(ctx context.Context, conv *models.Conversation, senderID string, senderRole models.UserRole, body string) (*models.Message, error)
	MarkRead(ctx context.Context, conv *models.Conversation, readerID string, readerRole models.UserRole) error
	SetAccepted(ctx context.Context, id string) error
	SetClosed(ctx context.Context, id string) error
	SetReopened(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// ConnectionChecker reports whether two users hold an accepted connection
type ConnectionChecker interface {
	IsConnected(ctx context.Context, userA, userB string) (bool, error)
}

// JobProvider reads job postings
type JobProvider interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
}

// ApplicationCreator records applications idempotently
type ApplicationCreator interface {
	CreateIfAbsent(ctx context.Context, jobID, jobSeekerID, source string) (*models.Application, bool, error)
}

// UserDirectory resolves user IDs to directory entries
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Emitter publishes conversation lifecycle notifications
type Emitter interface {
	EmitNewMessage(ctx context.Context, n events.ChatNotification) error
	EmitChatClosed(ctx context.Context, n events.ChatNotification) error
	EmitChatReopened(ctx context.Context, n events.ChatNotification) error
}

// Service implements the conversation lifecycle
type Service struct {
	conversations ConversationStore
	connections   ConnectionChecker
	jobs          JobProvider
	applications  ApplicationCreator
	users         UserDirectory
	emitter       Emitter
	logger        ectologger.Logger
}

// NewService creates a new messaging service
func NewService(
	conversations ConversationStore,
	connections ConnectionChecker,
	jobs JobProvider,
	applications ApplicationCreator,
	users UserDirectory,
	emitter Emitter,
	logger ectologger.Logger,
) *Service {
	return &Service{
		conversations: conversations,
		connections:   connections,
		jobs:          jobs,
		applications:  applications,
		users:         users,
		emitter:       emitter,
		logger:        logger,
	}
}

// StartJobConversation finds or creates the conversation for (job, seeker).
// Only the job seeker initiates; the employer's side appears once the
// seeker reaches out. The job must still accept messages.
func (s *Service) StartJobConversation(ctx context.Context, initiatorID, jobID string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "messaging.Service.StartJobConversation")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"method":       "StartJobConversation",
		"initiator_id": initiatorID,
		"job_id":       jobID,
	})

	initiator, err := s.users.GetUser(ctx, initiatorID)
	if err != nil {
		return nil, err
	}
	if initiator.Role != models.RoleJobSeeker {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "only job seekers can start a job conversation")
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if decision := gating.CanCreate(job, false, false); !decision.Allowed() {
		metrics.GateDenialsTotal.WithLabelValues(decision.Reason()).Inc()
		return nil, decision.Err()
	}

	conv, created, err := s.conversations.GetOrCreateJob(ctx, jobID, job.EmployerID, initiatorID)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.ConversationsStartedTotal.WithLabelValues(string(models.ChatTypeJob)).Inc()
		log.WithFields(map[string]any{"conversation_id": conv.ID}).Info("Started job conversation")
	}

	return conv, nil
}

// StartDirectConversation finds or creates the permanent conversation
// between two connected users. Either side may initiate.
func (s *Service) StartDirectConversation(ctx context.Context, initiatorID, otherID string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "messaging.Service.StartDirectConversation")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"method":       "StartDirectConversation",
		"initiator_id": initiatorID,
		"other_id":     otherID,
	})

	if initiatorID == otherID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "you cannot start a conversation with yourself")
	}

	initiator, err := s.users.GetUser(ctx, initiatorID)
	if err != nil {
		return nil, err
	}
	other, err := s.users.GetUser(ctx, otherID)
	if err != nil {
		return nil, err
	}

	connected, err := s.connections.IsConnected(ctx, initiatorID, otherID)
	if err != nil {
		return nil, err
	}
	if decision := gating.CanCreate(nil, connected, true); !decision.Allowed() {
		metrics.GateDenialsTotal.WithLabelValues(decision.Reason()).Inc()
		return nil, decision.Err()
	}

	employerID, jobSeekerID := models.ResolveDirectSlots(initiator, other)
	conv, created, err := s.conversations.GetOrCreateDirect(ctx, employerID, jobSeekerID)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.ConversationsStartedTotal.WithLabelValues(string(models.ChatTypeDirect)).Inc()
		log.WithFields(map[string]any{"conversation_id": conv.ID}).Info("Started direct conversation")
	}

	return conv, nil
}

// SendMessage runs the gate and appends the message. Denial reasons map to
// distinct errors so clients can explain exactly why sending is blocked.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, body string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "messaging.Service.SendMessage")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"method":          "SendMessage",
		"conversation_id": conversationID,
		"sender_id":       senderID,
	})

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "message text cannot be empty")
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	senderRole, ok := conv.RoleOf(senderID)
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "you are not a participant in this conversation")
	}

	job, err := s.jobFor(ctx, conv)
	if err != nil {
		return nil, err
	}

	decision := gating.CanMessage(conv, job)
	metrics.RecordGateDecision(decision.Allowed(), decision.Reason(), string(conv.ChatType))
	if !decision.Allowed() {
		log.WithFields(map[string]any{"reason": decision.Reason()}).Info("Message blocked by gate")
		return nil, decision.Err()
	}

	msg, err := s.conversations.AppendMessage(ctx, conv, senderID, senderRole, body)
	if err != nil {
		return nil, err
	}

	s.notifyNewMessage(ctx, conv, job, msg)
	return msg, nil
}

// MarkRead marks the counterpart's messages read and clears the reader's
// unread counter.
func (s *Service) MarkRead(ctx context.Context, conversationID, readerID string) error {
	ctx, span := tracing.StartSpan(ctx, "messaging.Service.MarkRead")
	defer span.End()

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	readerRole, ok := conv.RoleOf(readerID)
	if !ok {
		return httperror.NewHTTPError(http.StatusForbidden, "you are not a participant in this conversation")
	}

	return s.conversations.MarkRead(ctx, conv, readerID, readerRole)
}

// AcceptChat marks a job conversation accepted by the employer and records
// the job seeker's application as a side effect. Accepting twice is an
// error; the application insert is idempotent either way.
func (s *Service) AcceptChat(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "messaging.Service.AcceptChat")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"method":          "AcceptChat",
		"conversation_id": conversationID,
		"user_id":         userID,
	})

	conv, err := s.employerConversation(ctx, conversationID, userID, "only the employer can accept this conversation")
	if err != nil {
		return nil, err
	}
	if conv.ChatType == models.ChatTypeDirect || conv.IsPermanent {
		return nil, httperror.NewHTTPError(http.StatusConflict, "direct conversations do not require acceptance")
	}

	if err := s.conversations.SetAccepted(ctx, conv.ID); err != nil {
		return nil, err
	}

	if _, created, err := s.applications.CreateIfAbsent(ctx, *conv.JobID, conv.JobSeekerID, "chat_accept"); err != nil {
		// The acceptance is already committed; surface the failure without undoing it
		log.WithError(err).Error("Failed to record application for accepted conversation")
	} else if created {
		log.Info("Recorded application from conversation acceptance")
	}

	return s.conversations.GetByID(ctx, conv.ID)
}

// CloseChat closes a job conversation. Closing silences the seeker until
// the employer reopens; history stays readable.
func (s *Service) CloseChat(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "messaging.Service.CloseChat")
	defer span.End()

	conv, err := s.employerConversation(ctx, conversationID, userID, "only the employer can close this conversation")
	if err != nil {
		return nil, err
	}
	if conv.ChatType == models.ChatTypeDirect || conv.IsPermanent {
		return nil, httperror.NewHTTPError(http.StatusConflict, "direct conversations cannot be closed")
	}

	if err := s.conversations.SetClosed(ctx, conv.ID); err != nil {
		return nil, err
	}

	s.notifyLifecycle(ctx, conv, userID, events.EventChatClosed)
	return s.conversations.GetByID(ctx, conv.ID)
}

// ReopenChat reopens a closed job conversation
func (s *Service) ReopenChat(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "messaging.Service.ReopenChat")
	defer span.End()

	conv, err := s.employerConversation(ctx, conversationID, userID, "only the employer can reopen this conversation")
	if err != nil {
		return nil, err
	}
	if conv.ChatType == models.ChatTypeDirect || conv.IsPermanent {
		return nil, httperror.NewHTTPError(http.StatusConflict, "direct conversations cannot be closed")
	}

	if err := s.conversations.SetReopened(ctx, conv.ID); err != nil {
		return nil, err
	}

	s.notifyLifecycle(ctx, conv, userID, events.EventChatReopened)
	return s.conversations.GetByID(ctx, conv.ID)
}

// DeleteConversation removes the conversation and its messages
func (s *Service) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	ctx, span := tracing.StartSpan(ctx, "messaging.Service.DeleteConversation")
	defer span.End()

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return httperror.NewHTTPError(http.StatusForbidden, "you are not a participant in this conversation")
	}

	return s.conversations.Delete(ctx, conv.ID)
}

// ListConversations returns the user's conversations, most recent first
func (s *Service) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "messaging.Service.ListConversations")
	defer span.End()

	return s.conversations.ListForUser(ctx, userID)
}

// ListMessages returns the conversation history for a participant
func (s *Service) ListMessages(ctx context.Context, conversationID, userID string) ([]models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "messaging.Service.ListMessages")
	defer span.End()

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "you are not a participant in this conversation")
	}

	return s.conversations.ListMessages(ctx, conv.ID)
}

// jobFor loads the gating job for a job-scoped conversation. A deleted job
// gates the same as a closed one.
func (s *Service) jobFor(ctx context.Context, conv *models.Conversation) (*models.Job, error) {
	if conv.JobID == nil {
		return nil, nil
	}

	job, err := s.jobs.GetJob(ctx, *conv.JobID)
	if err != nil {
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func (s *Service) employerConversation(ctx context.Context, conversationID, userID, forbiddenMsg string) (*models.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	role, ok := conv.RoleOf(userID)
	if !ok || role != models.RoleEmployer {
		return nil, httperror.NewHTTPError(http.StatusForbidden, forbiddenMsg)
	}
	return conv, nil
}

func (s *Service) notifyNewMessage(ctx context.Context, conv *models.Conversation, job *models.Job, msg *models.Message) {
	n := events.ChatNotification{
		ConversationID: conv.ID,
		ChatType:       string(conv.ChatType),
		JobID:          conv.JobID,
		SenderID:       msg.SenderID,
		RecipientID:    conv.Counterpart(msg.SenderID),
		Preview:        msg.Body,
	}
	if job != nil {
		n.JobTitle = &job.Title
	}
	if sender, err := s.users.GetUser(ctx, msg.SenderID); err == nil {
		n.SenderName = sender.Name
	}

	err := s.emitter.EmitNewMessage(ctx, n)
	metrics.RecordNotification(events.EventNewMessage, err)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"conversation_id": conv.ID,
		}).Error("Failed to emit new message notification")
	}
}

func (s *Service) notifyLifecycle(ctx context.Context, conv *models.Conversation, actorID, eventType string) {
	n := events.ChatNotification{
		ConversationID: conv.ID,
		ChatType:       string(conv.ChatType),
		JobID:          conv.JobID,
		SenderID:       actorID,
		RecipientID:    conv.Counterpart(actorID),
	}

	var err error
	switch eventType {
	case events.EventChatClosed:
		err = s.emitter.EmitChatClosed(ctx, n)
	case events.EventChatReopened:
		err = s.emitter.EmitChatReopened(ctx, n)
	}
	metrics.RecordNotification(eventType, err)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"conversation_id": conv.ID,
			"event_type":      eventType,
		}).Error("Failed to emit conversation lifecycle notification")
	}
}

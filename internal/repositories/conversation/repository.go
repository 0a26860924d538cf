// Package conversation persists conversations and their messages.
//
// Find-or-create for both conversation kinds leans on partial unique
// indexes: INSERT ... ON CONFLICT DO NOTHING RETURNING inserts or returns
// no rows, and a no-row result falls back to selecting the existing row.
// Two concurrent find-or-create calls for the same key therefore converge
// on one conversation.
package conversation

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

var conversationColumns = []string{
	"id", "job_id", "employer_id", "job_seeker_id", "chat_type",
	"last_message", "last_message_at", "unread_employer", "unread_job_seeker",
	"accepted_by_employer", "accepted_at", "is_permanent",
	"closed_by_employer", "closed_at", "created_at", "updated_at",
}

// Repository handles conversation and message persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new conversation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetOrCreateJob returns the conversation for (job, employer, job seeker),
// creating it if absent. The second return reports whether a row was created.
func (r *Repository) GetOrCreateJob(ctx context.Context, jobID, employerID, jobSeekerID string) (*models.Conversation, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.GetOrCreateJob")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":        "GetOrCreateJob",
		"job_id":        jobID,
		"employer_id":   employerID,
		"job_seeker_id": jobSeekerID,
	})

	now := time.Now().UTC()
	query := `
		INSERT INTO conversations (id, job_id, employer_id, job_seeker_id, chat_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'job', $5, $5)
		ON CONFLICT (job_id, employer_id, job_seeker_id) WHERE job_id IS NOT NULL DO NOTHING
		RETURNING ` + joinColumns(conversationColumns)

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, query, uuid.New().String(), jobID, employerID, jobSeekerID, now)
	if err == nil {
		log.WithFields(map[string]any{"conversation_id": conv.ID}).Info("Created job conversation")
		return &conv, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.WithError(err).Error("Failed to create job conversation")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start conversation")
	}

	// Row already existed; the insert returned nothing
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(conversationColumns...)
	sb.From("conversations")
	sb.Where(
		sb.Equal("job_id", jobID),
		sb.Equal("employer_id", employerID),
		sb.Equal("job_seeker_id", jobSeekerID),
	)
	selectQuery, args := sb.Build()
	if err := r.db.GetContext(ctx, &conv, selectQuery, args...); err != nil {
		log.WithError(err).Error("Failed to fetch existing job conversation")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start conversation")
	}
	return &conv, false, nil
}

// GetOrCreateDirect returns the direct conversation for the pair, creating
// it if absent. Direct conversations are born accepted and permanent.
func (r *Repository) GetOrCreateDirect(ctx context.Context, employerID, jobSeekerID string) (*models.Conversation, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.GetOrCreateDirect")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":        "GetOrCreateDirect",
		"employer_id":   employerID,
		"job_seeker_id": jobSeekerID,
	})

	now := time.Now().UTC()
	query := `
		INSERT INTO conversations (id, job_id, employer_id, job_seeker_id, chat_type, accepted_by_employer, accepted_at, is_permanent, created_at, updated_at)
		VALUES ($1, NULL, $2, $3, 'direct', TRUE, $4, TRUE, $4, $4)
		ON CONFLICT (employer_id, job_seeker_id) WHERE job_id IS NULL DO NOTHING
		RETURNING ` + joinColumns(conversationColumns)

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, query, uuid.New().String(), employerID, jobSeekerID, now)
	if err == nil {
		log.WithFields(map[string]any{"conversation_id": conv.ID}).Info("Created direct conversation")
		return &conv, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.WithError(err).Error("Failed to create direct conversation")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start conversation")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(conversationColumns...)
	sb.From("conversations")
	sb.Where(
		sb.IsNull("job_id"),
		sb.Equal("employer_id", employerID),
		sb.Equal("job_seeker_id", jobSeekerID),
	)
	selectQuery, args := sb.Build()
	if err := r.db.GetContext(ctx, &conv, selectQuery, args...); err != nil {
		log.WithError(err).Error("Failed to fetch existing direct conversation")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start conversation")
	}
	return &conv, false, nil
}

// GetByID retrieves a conversation by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(conversationColumns...)
	sb.From("conversations")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var conv models.Conversation
	if err := r.db.GetContext(ctx, &conv, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get conversation")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get conversation")
	}

	return &conv, nil
}

// ListForUser returns the user's conversations enriched with the
// counterpart's name and the job title, most recent activity first.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.ListForUser")
	defer span.End()

	query := `
		SELECT c.id, c.job_id, c.employer_id, c.job_seeker_id, c.chat_type,
		       c.last_message, c.last_message_at, c.unread_employer, c.unread_job_seeker,
		       c.accepted_by_employer, c.accepted_at, c.is_permanent,
		       c.closed_by_employer, c.closed_at, c.created_at, c.updated_at,
		       CASE WHEN c.employer_id = $1 THEN js.name ELSE em.name END AS counterpart_name,
		       j.title AS job_title
		FROM conversations c
		JOIN users em ON em.id = c.employer_id
		JOIN users js ON js.id = c.job_seeker_id
		LEFT JOIN jobs j ON j.id = c.job_id
		WHERE c.employer_id = $1 OR c.job_seeker_id = $1
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
	`
	var summaries []models.ConversationSummary
	if err := r.db.SelectContext(ctx, &summaries, query, userID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list conversations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list conversations")
	}

	return summaries, nil
}

// ListMessages returns the conversation's messages in chronological order
func (r *Repository) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.ListMessages")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "conversation_id", "sender_id", "sender_role", "body", "read", "created_at")
	sb.From("messages")
	sb.Where(sb.Equal("conversation_id", conversationID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list messages")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}

	return messages, nil
}

// AppendMessage inserts the message and updates the conversation preview and
// the recipient's unread counter in one transaction. The counter bump is a
// single SQL increment, so concurrent sends never lose counts.
func (r *Repository) AppendMessage(ctx context.Context, conv *models.Conversation, senderID string, senderRole models.UserRole, body string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.AppendMessage")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":          "AppendMessage",
		"conversation_id": conv.ID,
		"sender_id":       senderID,
	})

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		SenderRole:     senderRole,
		Body:           body,
		CreatedAt:      now,
	}

	insert := sqlbuilder.PostgreSQL.NewInsertBuilder()
	insert.InsertInto("messages")
	insert.Cols("id", "conversation_id", "sender_id", "sender_role", "body", "read", "created_at")
	insert.Values(msg.ID, msg.ConversationID, msg.SenderID, msg.SenderRole, msg.Body, false, now)
	query, args := insert.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to insert message")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to send message")
	}

	unreadColumn := "unread_job_seeker"
	if senderRole == models.RoleJobSeeker {
		unreadColumn = "unread_employer"
	}
	update := `
		UPDATE conversations
		SET last_message = $1,
		    last_message_at = $2,
		    updated_at = $2,
		    ` + unreadColumn + ` = ` + unreadColumn + ` + 1
		WHERE id = $3
	`
	if _, err := tx.ExecContext(ctx, update, body, now, conv.ID); err != nil {
		log.WithError(err).Error("Failed to update conversation preview")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to send message")
	}

	if err := tx.Commit(ctx); err != nil {
		log.WithError(err).Error("Failed to commit message")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to send message")
	}

	return msg, nil
}

// MarkRead flags the counterpart's messages as read and zeroes the reader's
// unread counter. Safe to call repeatedly.
func (r *Repository) MarkRead(ctx context.Context, conv *models.Conversation, readerID string, readerRole models.UserRole) error {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.MarkRead")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":          "MarkRead",
		"conversation_id": conv.ID,
		"reader_id":       readerID,
	})

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	markQuery := `
		UPDATE messages
		SET read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND read = FALSE
	`
	if _, err := tx.ExecContext(ctx, markQuery, conv.ID, readerID); err != nil {
		log.WithError(err).Error("Failed to mark messages read")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark conversation read")
	}

	unreadColumn := "unread_employer"
	if readerRole == models.RoleJobSeeker {
		unreadColumn = "unread_job_seeker"
	}
	resetQuery := `
		UPDATE conversations
		SET ` + unreadColumn + ` = 0,
		    updated_at = $1
		WHERE id = $2
	`
	if _, err := tx.ExecContext(ctx, resetQuery, time.Now().UTC(), conv.ID); err != nil {
		log.WithError(err).Error("Failed to reset unread counter")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark conversation read")
	}

	if err := tx.Commit(ctx); err != nil {
		log.WithError(err).Error("Failed to commit read state")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark conversation read")
	}

	return nil
}

// SetAccepted marks a job conversation accepted by the employer. The update
// is guarded on the flag still being unset; zero rows means someone beat us.
func (r *Repository) SetAccepted(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.SetAccepted")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("conversations")
	sb.Set(
		sb.Assign("accepted_by_employer", true),
		sb.Assign("accepted_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("accepted_by_employer", false),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to accept conversation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to accept conversation")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, "this conversation has already been accepted")
	}

	return nil
}

// SetClosed marks the conversation closed by the employer
func (r *Repository) SetClosed(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.SetClosed")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("conversations")
	sb.Set(
		sb.Assign("closed_by_employer", true),
		sb.Assign("closed_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("closed_by_employer", false),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to close conversation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to close conversation")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, "this conversation is already closed")
	}

	return nil
}

// SetReopened clears the closed flag
func (r *Repository) SetReopened(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.SetReopened")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("conversations")
	sb.Set(
		sb.Assign("closed_by_employer", false),
		sb.Assign("closed_at", nil),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("closed_by_employer", true),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to reopen conversation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reopen conversation")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, "this conversation is not closed")
	}

	return nil
}

// Delete removes the conversation; messages go with it via cascade
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("conversations")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete conversation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete conversation")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"conversation_id": id}).Info("Deleted conversation")
	return nil
}

func joinColumns(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}

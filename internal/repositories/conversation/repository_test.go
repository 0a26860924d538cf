package conversation_test

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/stem/pkg/database"

	"github.com/Ramsey-B/aster/internal/repositories/conversation"
	"github.com/Ramsey-B/aster/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "aster"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

type testPair struct {
	employerID  string
	jobSeekerID string
	jobID       string
}

func seedPair(t *testing.T, db database.DB) testPair {
	ctx := context.Background()

	employerID := uuid.New().String()
	_, err := db.ExecContext(ctx, "INSERT INTO users (id, name, role) VALUES ($1, $2, 'employer')", employerID, "emp-"+employerID[:8])
	require.NoError(t, err)

	jobSeekerID := uuid.New().String()
	_, err = db.ExecContext(ctx, "INSERT INTO users (id, name, role) VALUES ($1, $2, 'job_seeker')", jobSeekerID, "seek-"+jobSeekerID[:8])
	require.NoError(t, err)

	jobID := uuid.New().String()
	_, err = db.ExecContext(ctx, "INSERT INTO jobs (id, employer_id, title) VALUES ($1, $2, 'Backend Engineer')", jobID, employerID)
	require.NoError(t, err)

	return testPair{employerID: employerID, jobSeekerID: jobSeekerID, jobID: jobID}
}

func TestGetOrCreateJobConversation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := conversation.NewRepository(db, getTestLogger())
	ctx := context.Background()
	pair := seedPair(t, db)

	conv, created, err := repo.GetOrCreateJob(ctx, pair.jobID, pair.employerID, pair.jobSeekerID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ChatTypeJob, conv.ChatType)
	assert.False(t, conv.AcceptedByEmployer)
	assert.False(t, conv.IsPermanent)

	// Second call finds the same row
	again, created, err := repo.GetOrCreateJob(ctx, pair.jobID, pair.employerID, pair.jobSeekerID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
}

func TestGetOrCreateDirectConversation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := conversation.NewRepository(db, getTestLogger())
	ctx := context.Background()
	pair := seedPair(t, db)

	conv, created, err := repo.GetOrCreateDirect(ctx, pair.employerID, pair.jobSeekerID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ChatTypeDirect, conv.ChatType)
	assert.Nil(t, conv.JobID)
	assert.True(t, conv.IsPermanent)
	assert.True(t, conv.AcceptedByEmployer)
	require.NotNil(t, conv.AcceptedAt)

	again, created, err := repo.GetOrCreateDirect(ctx, pair.employerID, pair.jobSeekerID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)

	// A job conversation for the same pair is a separate thread
	jobConv, created, err := repo.GetOrCreateJob(ctx, pair.jobID, pair.employerID, pair.jobSeekerID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, conv.ID, jobConv.ID)
}

func TestAppendMessageAndUnread(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := conversation.NewRepository(db, getTestLogger())
	ctx := context.Background()
	pair := seedPair(t, db)

	conv, _, err := repo.GetOrCreateJob(ctx, pair.jobID, pair.employerID, pair.jobSeekerID)
	require.NoError(t, err)

	msg, err := repo.AppendMessage(ctx, conv, pair.jobSeekerID, models.RoleJobSeeker, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Body)

	_, err = repo.AppendMessage(ctx, conv, pair.jobSeekerID, models.RoleJobSeeker, "still there?")
	require.NoError(t, err)
	_, err = repo.AppendMessage(ctx, conv, pair.employerID, models.RoleEmployer, "yes, hi")
	require.NoError(t, err)

	updated, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.UnreadEmployer)
	assert.Equal(t, 1, updated.UnreadJobSeeker)
	require.NotNil(t, updated.LastMessage)
	assert.Equal(t, "yes, hi", *updated.LastMessage)
	require.NotNil(t, updated.LastMessageAt)

	messages, err := repo.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "hello", messages[0].Body)
	assert.False(t, messages[0].Read)

	// Employer reads: seeker messages flip, employer counter resets
	require.NoError(t, repo.MarkRead(ctx, conv, pair.employerID, models.RoleEmployer))

	updated, err = repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.UnreadEmployer)
	assert.Equal(t, 1, updated.UnreadJobSeeker)

	messages, err = repo.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	for _, m := range messages {
		if m.SenderID == pair.jobSeekerID {
			assert.True(t, m.Read)
		} else {
			assert.False(t, m.Read)
		}
	}

	// MarkRead is idempotent
	require.NoError(t, repo.MarkRead(ctx, conv, pair.employerID, models.RoleEmployer))
}

func TestLifecycleFlags(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := conversation.NewRepository(db, getTestLogger())
	ctx := context.Background()
	pair := seedPair(t, db)

	conv, _, err := repo.GetOrCreateJob(ctx, pair.jobID, pair.employerID, pair.jobSeekerID)
	require.NoError(t, err)

	require.NoError(t, repo.SetAccepted(ctx, conv.ID))
	err = repo.SetAccepted(ctx, conv.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	require.NoError(t, repo.SetClosed(ctx, conv.ID))
	err = repo.SetClosed(ctx, conv.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	updated, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, updated.AcceptedByEmployer)
	assert.True(t, updated.ClosedByEmployer)
	require.NotNil(t, updated.ClosedAt)

	require.NoError(t, repo.SetReopened(ctx, conv.ID))
	err = repo.SetReopened(ctx, conv.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	updated, err = repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, updated.ClosedByEmployer)
	assert.Nil(t, updated.ClosedAt)
	// Reopening never clears acceptance
	assert.True(t, updated.AcceptedByEmployer)
}

func TestListForUser(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := conversation.NewRepository(db, getTestLogger())
	ctx := context.Background()
	pair := seedPair(t, db)

	jobConv, _, err := repo.GetOrCreateJob(ctx, pair.jobID, pair.employerID, pair.jobSeekerID)
	require.NoError(t, err)
	directConv, _, err := repo.GetOrCreateDirect(ctx, pair.employerID, pair.jobSeekerID)
	require.NoError(t, err)

	// Activity on the job thread should sort it first
	_, err = repo.AppendMessage(ctx, jobConv, pair.jobSeekerID, models.RoleJobSeeker, "ping")
	require.NoError(t, err)

	summaries, err := repo.ListForUser(ctx, pair.employerID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, jobConv.ID, summaries[0].ID)
	assert.NotEmpty(t, summaries[0].CounterpartName)
	require.NotNil(t, summaries[0].JobTitle)
	assert.Equal(t, "Backend Engineer", *summaries[0].JobTitle)
	assert.Nil(t, summariesByID(summaries, directConv.ID).JobTitle)

	// Deleting cascades messages and drops the thread from the list
	require.NoError(t, repo.Delete(ctx, jobConv.ID))
	summaries, err = repo.ListForUser(ctx, pair.employerID)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)

	_, err = repo.GetByID(ctx, jobConv.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func summariesByID(summaries []models.ConversationSummary, id string) *models.ConversationSummary {
	for i := range summaries {
		if summaries[i].ID == id {
			return &summaries[i]
		}
	}
	return nil
}

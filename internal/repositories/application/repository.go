// Package application records job applications created as a side effect of
// conversation acceptance.
package application

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

// Repository handles application persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new application repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateIfAbsent inserts an application for (job, job seeker) unless one
// already exists. Returns the row and whether it was created by this call.
func (r *Repository) CreateIfAbsent(ctx context.Context, jobID, jobSeekerID, source string) (*models.Application, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "application.Repository.CreateIfAbsent")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":        "CreateIfAbsent",
		"job_id":        jobID,
		"job_seeker_id": jobSeekerID,
	})

	now := time.Now().UTC()
	query := `
		INSERT INTO applications (id, job_id, job_seeker_id, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id, job_seeker_id) DO NOTHING
		RETURNING id, job_id, job_seeker_id, source, created_at
	`
	var app models.Application
	err := r.db.GetContext(ctx, &app, query, uuid.New().String(), jobID, jobSeekerID, source, now)
	if err == nil {
		log.WithFields(map[string]any{"application_id": app.ID}).Info("Created application")
		return &app, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.WithError(err).Error("Failed to create application")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create application")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "job_id", "job_seeker_id", "source", "created_at")
	sb.From("applications")
	sb.Where(
		sb.Equal("job_id", jobID),
		sb.Equal("job_seeker_id", jobSeekerID),
	)
	selectQuery, args := sb.Build()
	if err := r.db.GetContext(ctx, &app, selectQuery, args...); err != nil {
		log.WithError(err).Error("Failed to fetch existing application")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create application")
	}
	return &app, false, nil
}

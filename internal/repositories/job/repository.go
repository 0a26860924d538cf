// Package job reads job postings for gating decisions
package job

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/models"
)

// Repository handles job lookups
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new job repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetJob retrieves a job by ID
func (r *Repository) GetJob(ctx context.Context, id string) (*models.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.GetJob")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "employer_id", "title", "status", "is_active")
	sb.From("jobs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "job not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": id}).Error("Failed to get job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get job")
	}

	return &job, nil
}

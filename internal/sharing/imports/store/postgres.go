// Package store persists import jobs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"haven/internal/platform/postgres"
	"haven/internal/sharing/models"
	"haven/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const jobColumns = `id, source_system, format, status, initiated_by, file_name, attempted, succeeded,
	failed, warned, error_log, failure_reason, created_at, updated_at, completed_at`

// Save upserts job. Terminal rows are never overwritten.
func (s *PostgresStore) Save(ctx context.Context, job models.ImportJob) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ce_import_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempted = EXCLUDED.attempted,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			warned = EXCLUDED.warned,
			error_log = EXCLUDED.error_log,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
		WHERE ce_import_jobs.status NOT IN ('COMPLETED', 'FAILED')
	`, job.ID, job.SourceSystem, string(job.Format), string(job.Status), job.InitiatedBy, job.FileName,
		job.Attempted, job.Succeeded, job.Failed, job.Warned, pq.Array(errorLog(job.ErrorLog)),
		job.FailureReason, job.CreatedAt, job.UpdatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("save import job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save import job %s: %w", job.ID, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (models.ImportJob, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM ce_import_jobs WHERE id = $1`, id)

	var (
		job         models.ImportJob
		format      string
		status      string
		log         []string
		completedAt sql.NullTime
	)
	err := row.Scan(&job.ID, &job.SourceSystem, &format, &status, &job.InitiatedBy, &job.FileName,
		&job.Attempted, &job.Succeeded, &job.Failed, &job.Warned, pq.Array(&log),
		&job.FailureReason, &job.CreatedAt, &job.UpdatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ImportJob{}, sentinel.ErrNotFound
		}
		return models.ImportJob{}, fmt.Errorf("find import job: %w", err)
	}
	job.Format = models.ImportFormat(format)
	job.Status = models.ImportJobStatus(status)
	job.ErrorLog = log
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

// errorLog keeps the column NOT NULL.
func errorLog(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/attendance-api/internal/models"
)

// ExportRepository persists export job metadata. The job rows are the source
// of truth for status and download links; the worker queue only dispatches.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository constructs the repository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Create inserts a new export job row with generated defaults.
func (r *ExportRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO export_jobs (id, scope, format, status, requested_by, file_path, download_url, error_message, created_at, finished_at, expires_at)
VALUES (:id, :scope, :format, :status, :requested_by, :file_path, :download_url, :error_message, :created_at, :finished_at, :expires_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// FindByID returns a job row by its identifier, or nil when absent.
func (r *ExportRepository) FindByID(ctx context.Context, id string) (*models.ExportJob, error) {
	const query = `SELECT id, scope, format, status, requested_by, file_path, download_url, error_message, created_at, finished_at, expires_at
FROM export_jobs WHERE id = $1`
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return &job, nil
}

// UpdateExportJobParams defines the mutable fields.
type UpdateExportJobParams struct {
	Status       *models.ExportJobStatus
	FilePath     *string
	DownloadURL  *string
	ErrorMessage *string
	FinishedAt   *time.Time
	ExpiresAt    *time.Time
}

// Update persists the provided changes for a job row.
func (r *ExportRepository) Update(ctx context.Context, id string, params UpdateExportJobParams) error {
	set := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.FilePath != nil {
		set = append(set, fmt.Sprintf("file_path = $%d", argPos))
		args = append(args, *params.FilePath)
		argPos++
	}
	if params.DownloadURL != nil {
		set = append(set, fmt.Sprintf("download_url = $%d", argPos))
		args = append(args, *params.DownloadURL)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", argPos))
		args = append(args, *params.FinishedAt)
		argPos++
	}
	if params.ExpiresAt != nil {
		set = append(set, fmt.Sprintf("expires_at = $%d", argPos))
		args = append(args, *params.ExpiresAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE export_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	return nil
}

// FailInterrupted marks jobs stranded in queued or processing state as
// failed. Called on startup: the in-memory dispatch queue did not survive,
// so those jobs will never run.
func (r *ExportRepository) FailInterrupted(ctx context.Context) (int64, error) {
	const query = `UPDATE export_jobs SET status = $1, error_message = $2, finished_at = $3
WHERE status IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, query,
		models.ExportStatusFailed, "interrupted by restart", time.Now().UTC(),
		models.ExportStatusQueued, models.ExportStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted export jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

// DeleteExpired removes rows whose download window closed before expiredBefore,
// along with failed jobs that finished before failedBefore.
func (r *ExportRepository) DeleteExpired(ctx context.Context, expiredBefore, failedBefore time.Time) (int64, error) {
	const query = `DELETE FROM export_jobs
WHERE (expires_at IS NOT NULL AND expires_at < $1)
   OR (status = $2 AND finished_at IS NOT NULL AND finished_at < $3)`
	res, err := r.db.ExecContext(ctx, query, expiredBefore, models.ExportStatusFailed, failedBefore)
	if err != nil {
		return 0, fmt.Errorf("delete expired export jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

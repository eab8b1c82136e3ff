package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/attendance-api/internal/models"
)

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// InsertIfAbsent writes one record for (session, student) unless one already
// exists. The UNIQUE(session_id, student_id) constraint arbitrates concurrent
// submissions; ON CONFLICT DO NOTHING makes the insert an idempotent no-op.
// Returns true when a new row was written.
func (r *AttendanceRepository) InsertIfAbsent(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	query := `INSERT INTO attendance_records (id, session_id, student_id, status, method, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (session_id, student_id) DO NOTHING
RETURNING id`
	var insertedID string
	err := r.db.GetContext(ctx, &insertedID, query,
		record.ID, record.SessionID, record.StudentID, record.Status, record.Method, record.RecordedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert attendance record: %w", err)
	}
	return true, nil
}

// ListBySession returns a session's records joined with student display
// fields, newest first.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	query := `SELECT ar.id, ar.status, ar.method, ar.recorded_at,
s.reg_no AS student_reg, s.first_name || ' ' || s.last_name AS student_name, s.year_level
FROM attendance_records ar
JOIN students s ON s.id = ar.student_id
WHERE ar.session_id = $1
ORDER BY ar.recorded_at DESC
LIMIT 1000`
	var rows []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	return rows, nil
}

// FindOwned returns a record only when its session belongs to the lecturer.
// An empty lecturerID skips the ownership filter (administrative access).
func (r *AttendanceRepository) FindOwned(ctx context.Context, recordID, lecturerID string) (*models.AttendanceRecord, error) {
	query := `SELECT ar.id, ar.session_id, ar.student_id, ar.status, ar.method, ar.recorded_at
FROM attendance_records ar
JOIN attendance_sessions s ON s.id = ar.session_id
WHERE ar.id = $1 AND ($2 = '' OR s.lecturer_id = $2)`
	var record models.AttendanceRecord
	err := r.db.GetContext(ctx, &record, query, recordID, lecturerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find attendance record %s: %w", recordID, err)
	}
	return &record, nil
}

// Delete removes a record by id.
func (r *AttendanceRepository) Delete(ctx context.Context, recordID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, recordID); err != nil {
		return fmt.Errorf("delete attendance record %s: %w", recordID, err)
	}
	return nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campushq/attendance-api/internal/models"
)

// RecordKey identifies one attendance record within a report cross product.
type RecordKey struct {
	SessionID string                  `db:"session_id"`
	StudentID string                  `db:"student_id"`
	Status    models.AttendanceStatus `db:"status"`
}

// ReportRepository resolves the student, session and record sets behind a
// report scope. Absence is not stored: any (student, session) pair missing
// from the record set is absent by omission.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// StudentsForScope resolves the active students a scope covers. departmentID
// is a tenant clamp applied for non-admin callers; empty means no clamp.
func (r *ReportRepository) StudentsForScope(ctx context.Context, scope models.ReportScope, departmentID string) ([]models.Student, error) {
	base := `SELECT DISTINCT s.id, s.user_id, s.reg_no, s.first_name, s.last_name, s.option_id, s.year_level, s.status, s.created_at
FROM students s
JOIN options o ON o.id = s.option_id
WHERE s.status = 'active'`
	args := []interface{}{}
	where := ""

	switch scope.Type {
	case models.ScopeDepartment:
		where = fmt.Sprintf(" AND o.department_id = $%d", len(args)+1)
		args = append(args, scope.ID)
	case models.ScopeOption:
		where = fmt.Sprintf(" AND s.option_id = $%d", len(args)+1)
		args = append(args, scope.ID)
	case models.ScopeClass:
		where = fmt.Sprintf(" AND s.year_level = $%d", len(args)+1)
		args = append(args, scope.ID)
	case models.ScopeCourse:
		where = fmt.Sprintf(` AND s.option_id IN (
SELECT DISTINCT option_id FROM attendance_sessions WHERE course_id = $%d)`, len(args)+1)
		args = append(args, scope.ID)
	default:
		return nil, fmt.Errorf("unsupported scope type %s", scope.Type)
	}

	if departmentID != "" {
		where += fmt.Sprintf(" AND o.department_id = $%d", len(args)+1)
		args = append(args, departmentID)
	}

	query := base + where + " ORDER BY s.first_name, s.last_name"
	var rows []models.Student
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("students for scope: %w", err)
	}
	return rows, nil
}

// SessionsForScope resolves the sessions a scope covers, chronologically.
func (r *ReportRepository) SessionsForScope(ctx context.Context, scope models.ReportScope, departmentID string) ([]models.AttendanceSession, error) {
	base := `SELECT DISTINCT sess.id, sess.lecturer_id, sess.course_id, sess.option_id, sess.session_date,
sess.start_time, sess.end_time, sess.biometric_method, sess.status
FROM attendance_sessions sess
JOIN courses c ON c.id = sess.course_id
WHERE 1=1`
	args := []interface{}{}
	where := ""

	switch scope.Type {
	case models.ScopeDepartment:
		where = fmt.Sprintf(" AND c.department_id = $%d", len(args)+1)
		args = append(args, scope.ID)
	case models.ScopeOption:
		where = fmt.Sprintf(" AND sess.option_id = $%d", len(args)+1)
		args = append(args, scope.ID)
	case models.ScopeClass:
		where = fmt.Sprintf(` AND sess.option_id IN (
SELECT DISTINCT option_id FROM students WHERE year_level = $%d AND status = 'active')`, len(args)+1)
		args = append(args, scope.ID)
	case models.ScopeCourse:
		where = fmt.Sprintf(" AND sess.course_id = $%d", len(args)+1)
		args = append(args, scope.ID)
	default:
		return nil, fmt.Errorf("unsupported scope type %s", scope.Type)
	}

	if departmentID != "" {
		where += fmt.Sprintf(" AND c.department_id = $%d", len(args)+1)
		args = append(args, departmentID)
	}
	if scope.DateFrom != nil {
		where += fmt.Sprintf(" AND sess.session_date >= $%d", len(args)+1)
		args = append(args, *scope.DateFrom)
	}
	if scope.DateTo != nil {
		where += fmt.Sprintf(" AND sess.session_date <= $%d", len(args)+1)
		args = append(args, *scope.DateTo)
	}

	query := base + where + " ORDER BY sess.session_date, sess.start_time"
	var rows []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sessions for scope: %w", err)
	}
	return rows, nil
}

// RecordsForSessions fetches the record keys for exactly the given sessions.
func (r *ReportRepository) RecordsForSessions(ctx context.Context, sessionIDs []string) ([]RecordKey, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	query := `SELECT session_id, student_id, status FROM attendance_records WHERE session_id = ANY($1)`
	var rows []RecordKey
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(sessionIDs)); err != nil {
		return nil, fmt.Errorf("records for sessions: %w", err)
	}
	return rows, nil
}

// StudentDetail returns a student's per-session status for one course,
// chronological, with missing records reported as absent.
func (r *ReportRepository) StudentDetail(ctx context.Context, studentID, courseID string) ([]RecordKey, error) {
	query := `SELECT sess.id AS session_id, $1 AS student_id,
COALESCE(ar.status, 'absent') AS status
FROM attendance_sessions sess
LEFT JOIN attendance_records ar ON ar.session_id = sess.id AND ar.student_id = $1
WHERE sess.course_id = $2
ORDER BY sess.session_date, sess.start_time`
	var rows []RecordKey
	if err := r.db.SelectContext(ctx, &rows, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("student detail: %w", err)
	}
	return rows, nil
}

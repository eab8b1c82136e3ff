package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campushq/attendance-api/internal/models"
)

// ErrActiveSessionExists signals the partial unique index on
// attendance_sessions(course_id) WHERE status = 'active' rejected an insert.
var ErrActiveSessionExists = errors.New("an active session already exists for this course")

const pqUniqueViolation = "23505"

// SessionRepository handles persistence for attendance sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateActive inserts a new active session. The active-per-course invariant
// is enforced by the database; a unique violation surfaces as
// ErrActiveSessionExists so the caller can fetch the competing session.
func (r *SessionRepository) CreateActive(ctx context.Context, session *models.AttendanceSession) (*models.AttendanceSession, error) {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.SessionDate.IsZero() {
		session.SessionDate = now.Truncate(24 * time.Hour)
	}
	if session.StartTime.IsZero() {
		session.StartTime = now
	}
	session.Status = models.SessionStatusActive

	query := `INSERT INTO attendance_sessions (id, lecturer_id, course_id, option_id, session_date, start_time, biometric_method, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, lecturer_id, course_id, option_id, session_date, start_time, end_time, biometric_method, status`
	var stored models.AttendanceSession
	err := r.db.GetContext(ctx, &stored, query,
		session.ID, session.LecturerID, session.CourseID, session.OptionID,
		session.SessionDate, session.StartTime, session.BiometricMethod, session.Status)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, ErrActiveSessionExists
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &stored, nil
}

// FindByID returns a session by id, or nil when it does not exist.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	query := `SELECT id, lecturer_id, course_id, option_id, session_date, start_time, end_time, biometric_method, status
FROM attendance_sessions WHERE id = $1`
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find session %s: %w", id, err)
	}
	return &session, nil
}

// FindDetail returns a session joined with course, department, option and
// lecturer display names.
func (r *SessionRepository) FindDetail(ctx context.Context, id string) (*models.SessionDetail, error) {
	query := `SELECT s.id, s.lecturer_id, s.course_id, s.option_id, s.session_date, s.start_time, s.end_time,
s.biometric_method, s.status,
c.name AS course_name, c.course_code, d.name AS department_name, o.name AS option_name,
u.first_name || ' ' || u.last_name AS lecturer_name
FROM attendance_sessions s
JOIN courses c ON c.id = s.course_id
JOIN departments d ON d.id = c.department_id
JOIN options o ON o.id = s.option_id
JOIN users u ON u.id = s.lecturer_id
WHERE s.id = $1`
	var detail models.SessionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, fmt.Errorf("find session detail %s: %w", id, err)
	}
	return &detail, nil
}

// ActiveForCourse returns the active session for a course, or nil.
func (r *SessionRepository) ActiveForCourse(ctx context.Context, courseID string) (*models.AttendanceSession, error) {
	query := `SELECT id, lecturer_id, course_id, option_id, session_date, start_time, end_time, biometric_method, status
FROM attendance_sessions WHERE course_id = $1 AND status = $2 LIMIT 1`
	var session models.AttendanceSession
	err := r.db.GetContext(ctx, &session, query, courseID, models.SessionStatusActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("active session for course %s: %w", courseID, err)
	}
	return &session, nil
}

// ActiveForLecturer returns the lecturer's most recent active session, or nil.
func (r *SessionRepository) ActiveForLecturer(ctx context.Context, lecturerID string) (*models.SessionDetail, error) {
	query := `SELECT s.id, s.lecturer_id, s.course_id, s.option_id, s.session_date, s.start_time, s.end_time,
s.biometric_method, s.status,
c.name AS course_name, c.course_code, d.name AS department_name, o.name AS option_name,
u.first_name || ' ' || u.last_name AS lecturer_name
FROM attendance_sessions s
JOIN courses c ON c.id = s.course_id
JOIN departments d ON d.id = c.department_id
JOIN options o ON o.id = s.option_id
JOIN users u ON u.id = s.lecturer_id
WHERE s.lecturer_id = $1 AND s.status = $2
ORDER BY s.start_time DESC
LIMIT 1`
	var detail models.SessionDetail
	err := r.db.GetContext(ctx, &detail, query, lecturerID, models.SessionStatusActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("active session for lecturer %s: %w", lecturerID, err)
	}
	return &detail, nil
}

// IsOwnedBy reports whether the session belongs to the given lecturer.
func (r *SessionRepository) IsOwnedBy(ctx context.Context, sessionID, lecturerID string) (bool, error) {
	query := `SELECT id FROM attendance_sessions WHERE id = $1 AND lecturer_id = $2`
	var id string
	err := r.db.GetContext(ctx, &id, query, sessionID, lecturerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("verify session ownership: %w", err)
	}
	return true, nil
}

// End completes an active session. Returns false when the session was
// already ended; the transition is one-way and idempotent.
func (r *SessionRepository) End(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	query := `UPDATE attendance_sessions SET end_time = $2, status = $3
WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, sessionID, endedAt, models.SessionStatusCompleted, models.SessionStatusActive)
	if err != nil {
		return false, fmt.Errorf("end session %s: %w", sessionID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("end session %s: %w", sessionID, err)
	}
	return affected > 0, nil
}

// Stats computes live statistics for a session in a single query. total is
// the count of active students in the session's option; attendance rate is
// computed by the caller.
func (r *SessionRepository) Stats(ctx context.Context, sessionID string) (*models.SessionStats, error) {
	query := `SELECT
COALESCE(st.total_students, 0) AS total_students,
COALESCE(ar.present_count, 0) AS present_count,
COALESCE(ar.absent_count, 0) AS absent_count
FROM attendance_sessions sess
LEFT JOIN (
    SELECT option_id, COUNT(*) AS total_students
    FROM students WHERE status = 'active' GROUP BY option_id
) st ON st.option_id = sess.option_id
LEFT JOIN (
    SELECT session_id,
        COUNT(*) FILTER (WHERE status = 'present') AS present_count,
        COUNT(*) FILTER (WHERE status = 'absent') AS absent_count
    FROM attendance_records GROUP BY session_id
) ar ON ar.session_id = sess.id
WHERE sess.id = $1`
	var stats models.SessionStats
	if err := r.db.GetContext(ctx, &stats, query, sessionID); err != nil {
		return nil, fmt.Errorf("session stats %s: %w", sessionID, err)
	}
	return &stats, nil
}

// StatusForCourse returns the latest session for a course joined with
// attendance counts, or nil when the course has never had a session.
func (r *SessionRepository) StatusForCourse(ctx context.Context, courseID string) (*models.SessionDetail, error) {
	query := `SELECT s.id, s.lecturer_id, s.course_id, s.option_id, s.session_date, s.start_time, s.end_time,
s.biometric_method, s.status,
c.name AS course_name, c.course_code, d.name AS department_name, o.name AS option_name,
u.first_name || ' ' || u.last_name AS lecturer_name
FROM attendance_sessions s
JOIN courses c ON c.id = s.course_id
JOIN departments d ON d.id = c.department_id
JOIN options o ON o.id = s.option_id
JOIN users u ON u.id = s.lecturer_id
WHERE s.course_id = $1
ORDER BY s.start_time DESC
LIMIT 1`
	var detail models.SessionDetail
	err := r.db.GetContext(ctx, &detail, query, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("session status for course %s: %w", courseID, err)
	}
	return &detail, nil
}

package models

import "time"

// SessionStatus tracks the one-way session lifecycle: active -> completed.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// BiometricMethod enumerates supported capture methods.
type BiometricMethod string

const (
	MethodFace   BiometricMethod = "face"
	MethodFinger BiometricMethod = "finger"
)

// Valid reports whether the method is one of the supported biometric methods.
func (m BiometricMethod) Valid() bool {
	return m == MethodFace || m == MethodFinger
}

// AttendanceSession is one teaching period during which a lecturer captures
// attendance for a course/option combination. At most one active session may
// exist per course; the storage layer enforces this with a partial unique
// index, so concurrent creates resolve through a constraint violation rather
// than a read-then-write race.
type AttendanceSession struct {
	ID              string          `db:"id" json:"id"`
	LecturerID      string          `db:"lecturer_id" json:"lecturer_id"`
	CourseID        string          `db:"course_id" json:"course_id"`
	OptionID        string          `db:"option_id" json:"option_id"`
	SessionDate     time.Time       `db:"session_date" json:"session_date"`
	StartTime       time.Time       `db:"start_time" json:"start_time"`
	EndTime         *time.Time      `db:"end_time" json:"end_time,omitempty"`
	BiometricMethod BiometricMethod `db:"biometric_method" json:"biometric_method"`
	Status          SessionStatus   `db:"status" json:"status"`
}

// SessionDetail enriches a session with display names for the UI.
type SessionDetail struct {
	AttendanceSession
	CourseName     string `db:"course_name" json:"course_name"`
	CourseCode     string `db:"course_code" json:"course_code"`
	DepartmentName string `db:"department_name" json:"department_name"`
	OptionName     string `db:"option_name" json:"option_name"`
	LecturerName   string `db:"lecturer_name" json:"lecturer_name"`
}

// SessionStats carries live statistics for a session. AttendanceRate is
// present/total*100 rounded to one decimal, and 0 when no students enroll in
// the session's option.
type SessionStats struct {
	TotalStudents  int     `db:"total_students" json:"total_students"`
	PresentCount   int     `db:"present_count" json:"present_count"`
	AbsentCount    int     `db:"absent_count" json:"absent_count"`
	AttendanceRate float64 `db:"attendance_rate" json:"attendance_rate"`
}

package models

import "time"

// AttendanceStatus enumerates record states. Absence is normally implicit
// (no row), but an explicit absent row can be written by manual marking.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// Valid reports whether the status is a known attendance status.
func (s AttendanceStatus) Valid() bool {
	return s == AttendancePresent || s == AttendanceAbsent
}

// RecordMethod describes how a record was captured.
type RecordMethod string

const (
	RecordMethodFaceRecognition RecordMethod = "face_recognition"
	RecordMethodFingerprint     RecordMethod = "fingerprint"
	RecordMethodManual          RecordMethod = "manual"
)

// AttendanceRecord is one row per (session, student) pair. Uniqueness is a
// database constraint; inserts use ON CONFLICT DO NOTHING so a repeated
// capture of the same student is an idempotent no-op.
type AttendanceRecord struct {
	ID         string           `db:"id" json:"id"`
	SessionID  string           `db:"session_id" json:"session_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	Status     AttendanceStatus `db:"status" json:"status"`
	Method     RecordMethod     `db:"method" json:"method"`
	RecordedAt time.Time        `db:"recorded_at" json:"recorded_at"`
}

// AttendanceRecordDetail joins a record with student display fields.
type AttendanceRecordDetail struct {
	ID          string           `db:"id" json:"id"`
	Status      AttendanceStatus `db:"status" json:"status"`
	Method      RecordMethod     `db:"method" json:"method"`
	RecordedAt  time.Time        `db:"recorded_at" json:"recorded_at"`
	StudentReg  string           `db:"student_reg" json:"student_reg"`
	StudentName string           `db:"student_name" json:"student_name"`
	YearLevel   string           `db:"year_level" json:"year_level"`
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportScopeType selects the dimension a report is bounded by.
type ReportScopeType string

const (
	ScopeDepartment ReportScopeType = "department"
	ScopeOption     ReportScopeType = "option"
	ScopeClass      ReportScopeType = "class"
	ScopeCourse     ReportScopeType = "course"
)

// Valid reports whether the scope type is known.
func (t ReportScopeType) Valid() bool {
	switch t {
	case ScopeDepartment, ScopeOption, ScopeClass, ScopeCourse:
		return true
	}
	return false
}

// ReportScope parameterizes report aggregation queries. Export jobs persist
// it as a JSONB column.
type ReportScope struct {
	Type     ReportScopeType `json:"type"`
	ID       string          `json:"id"`
	DateFrom *time.Time      `json:"date_from,omitempty"`
	DateTo   *time.Time      `json:"date_to,omitempty"`
}

// Value marshals the scope to JSON for persistence.
func (s ReportScope) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal report scope: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON payload into the scope.
func (s *ReportScope) Scan(value interface{}) error {
	if value == nil {
		*s = ReportScope{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ReportScope", value)
	}
	if len(data) == 0 {
		*s = ReportScope{}
		return nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("unmarshal report scope: %w", err)
	}
	return nil
}

// StudentSummary is the per-student aggregate, recomputed on demand.
// Sessions with no record count as absent.
type StudentSummary struct {
	StudentID     string  `json:"student_id"`
	StudentName   string  `json:"student_name"`
	StudentReg    string  `json:"student_reg"`
	TotalSessions int     `json:"total_sessions"`
	PresentCount  int     `json:"present_count"`
	AbsentCount   int     `json:"absent_count"`
	Percentage    float64 `json:"percentage"`
	AllowedToSit  bool    `json:"allowed_to_sit"`
}

// ReportSummary aggregates across all students in scope.
type ReportSummary struct {
	StudentCount          int     `json:"student_count"`
	SessionCount          int     `json:"session_count"`
	AverageAttendanceRate float64 `json:"average_attendance_rate"`
	StudentsAboveTarget   int     `json:"students_above_threshold"`
	StudentsBelowTarget   int     `json:"students_below_threshold"`
	PerfectAttendance     int     `json:"perfect_attendance"`
	ZeroAttendance        int     `json:"zero_attendance"`
	Threshold             float64 `json:"threshold"`
}

// AttendanceReport is the full structured report for a scope.
type AttendanceReport struct {
	Scope    ReportScope                            `json:"scope"`
	Students []StudentSummary                       `json:"students"`
	Sessions []AttendanceSession                    `json:"sessions"`
	Matrix   map[string]map[string]AttendanceStatus `json:"matrix"`
	Summary  ReportSummary                          `json:"summary"`
}

// ReportStatistics is the lightweight dashboard aggregate.
type ReportStatistics struct {
	TotalStudents int     `json:"total_students"`
	TotalSessions int     `json:"total_sessions"`
	AvgAttendance float64 `json:"avg_attendance"`
}

// ExportFormat enumerates supported export encodings.
type ExportFormat string

const (
	ExportFormatCSV   ExportFormat = "csv"
	ExportFormatExcel ExportFormat = "excel"
	ExportFormatPDF   ExportFormat = "pdf"
)

// Valid reports whether the format is supported.
func (f ExportFormat) Valid() bool {
	switch f {
	case ExportFormatCSV, ExportFormatExcel, ExportFormatPDF:
		return true
	}
	return false
}

// ExportJobStatus captures background export lifecycle states.
type ExportJobStatus string

const (
	ExportStatusQueued     ExportJobStatus = "queued"
	ExportStatusProcessing ExportJobStatus = "processing"
	ExportStatusFinished   ExportJobStatus = "finished"
	ExportStatusFailed     ExportJobStatus = "failed"
)

// ExportJob tracks one asynchronous report export request. Rows survive a
// restart; only the dispatch queue is in memory.
type ExportJob struct {
	ID          string          `db:"id" json:"id"`
	Scope       ReportScope     `db:"scope" json:"scope"`
	Format      ExportFormat    `db:"format" json:"format"`
	Status      ExportJobStatus `db:"status" json:"status"`
	RequestedBy string          `db:"requested_by" json:"requested_by"`
	FilePath    string          `db:"file_path" json:"-"`
	DownloadURL string          `db:"download_url" json:"download_url,omitempty"`
	Error       string          `db:"error_message" json:"error,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	FinishedAt  *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ExpiresAt   *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
}

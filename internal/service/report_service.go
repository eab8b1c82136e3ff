package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/attendance-api/internal/models"
	"github.com/campushq/attendance-api/internal/repository"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
)

type reportRepository interface {
	StudentsForScope(ctx context.Context, scope models.ReportScope, departmentID string) ([]models.Student, error)
	SessionsForScope(ctx context.Context, scope models.ReportScope, departmentID string) ([]models.AttendanceSession, error)
	RecordsForSessions(ctx context.Context, sessionIDs []string) ([]repository.RecordKey, error)
	StudentDetail(ctx context.Context, studentID, courseID string) ([]repository.RecordKey, error)
}

// ReportService recomputes attendance aggregates from raw records on every
// request. A student with no record for a session counts as absent; there is
// no stored absent row to drift out of date.
type ReportService struct {
	reports   reportRepository
	access    courseAccessRepository
	cache     *CacheService
	logger    *zap.Logger
	threshold float64
	statsTTL  time.Duration
}

// NewReportService constructs the report service. threshold is the minimum
// attendance percentage for exam eligibility.
func NewReportService(reports reportRepository, access courseAccessRepository, cache *CacheService, logger *zap.Logger, threshold float64, statsTTL time.Duration) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = 85.0
	}
	if statsTTL <= 0 {
		statsTTL = 5 * time.Minute
	}
	return &ReportService{
		reports:   reports,
		access:    access,
		cache:     cache,
		logger:    logger,
		threshold: threshold,
		statsTTL:  statsTTL,
	}
}

// Threshold exposes the configured exam eligibility threshold.
func (s *ReportService) Threshold() float64 {
	return s.threshold
}

func validateReportScope(scope models.ReportScope) error {
	if !scope.Type.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid report scope")
	}
	if scope.ID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "scope id is required")
	}
	if scope.DateFrom != nil && scope.DateTo != nil && scope.DateTo.Before(*scope.DateFrom) {
		return appErrors.Clone(appErrors.ErrValidation, "date range is inverted")
	}
	return nil
}

// Generate builds the full attendance report for a scope. Non-admin callers
// are clamped to their own department regardless of the requested scope.
func (s *ReportService) Generate(ctx context.Context, claims *models.JWTClaims, scope models.ReportScope) (*models.AttendanceReport, error) {
	if err := validateReportScope(scope); err != nil {
		return nil, err
	}

	departmentID, err := s.departmentClamp(ctx, claims)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, scope, departmentID)
}

func (s *ReportService) generate(ctx context.Context, scope models.ReportScope, departmentID string) (*models.AttendanceReport, error) {
	students, err := s.reports.StudentsForScope(ctx, scope, departmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	sessions, err := s.reports.SessionsForScope(ctx, scope, departmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}

	sessionIDs := make([]string, len(sessions))
	for i, sess := range sessions {
		sessionIDs[i] = sess.ID
	}
	records, err := s.reports.RecordsForSessions(ctx, sessionIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load records")
	}

	return s.assemble(scope, students, sessions, records), nil
}

// assemble folds students, sessions and raw present records into the report.
// The matrix is complete: every (student, session) cell is filled, defaulting
// to absent when no record exists.
func (s *ReportService) assemble(scope models.ReportScope, students []models.Student, sessions []models.AttendanceSession, records []repository.RecordKey) *models.AttendanceReport {
	present := make(map[string]map[string]bool, len(students))
	for _, rec := range records {
		if rec.Status != models.AttendancePresent {
			continue
		}
		if present[rec.StudentID] == nil {
			present[rec.StudentID] = make(map[string]bool)
		}
		present[rec.StudentID][rec.SessionID] = true
	}

	matrix := make(map[string]map[string]models.AttendanceStatus, len(students))
	summaries := make([]models.StudentSummary, 0, len(students))
	var rateSum float64
	var above, below, perfect, zero int

	for _, student := range students {
		row := make(map[string]models.AttendanceStatus, len(sessions))
		presentCount := 0
		for _, sess := range sessions {
			if present[student.ID][sess.ID] {
				row[sess.ID] = models.AttendancePresent
				presentCount++
			} else {
				row[sess.ID] = models.AttendanceAbsent
			}
		}
		matrix[student.ID] = row

		pct := AttendanceRate(presentCount, len(sessions))
		summary := models.StudentSummary{
			StudentID:     student.ID,
			StudentName:   student.FullName(),
			StudentReg:    student.RegNo,
			TotalSessions: len(sessions),
			PresentCount:  presentCount,
			AbsentCount:   len(sessions) - presentCount,
			Percentage:    pct,
			AllowedToSit:  pct >= s.threshold,
		}
		summaries = append(summaries, summary)

		rateSum += pct
		if summary.AllowedToSit {
			above++
		} else {
			below++
		}
		if len(sessions) > 0 && presentCount == len(sessions) {
			perfect++
		}
		if presentCount == 0 {
			zero++
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StudentName < summaries[j].StudentName
	})

	var average float64
	if len(summaries) > 0 {
		average = math.Round(rateSum/float64(len(summaries))*10) / 10
	}

	return &models.AttendanceReport{
		Scope:    scope,
		Students: summaries,
		Sessions: sessions,
		Matrix:   matrix,
		Summary: models.ReportSummary{
			StudentCount:          len(summaries),
			SessionCount:          len(sessions),
			AverageAttendanceRate: average,
			StudentsAboveTarget:   above,
			StudentsBelowTarget:   below,
			PerfectAttendance:     perfect,
			ZeroAttendance:        zero,
			Threshold:             s.threshold,
		},
	}
}

// statsCacheKey scopes the cached aggregate to the caller's department clamp
// and the requested date bounds. Two callers share an entry only when the
// database would hand them the same numbers.
func statsCacheKey(scope models.ReportScope, departmentID string) string {
	from, to := "", ""
	if scope.DateFrom != nil {
		from = scope.DateFrom.Format("2006-01-02")
	}
	if scope.DateTo != nil {
		to = scope.DateTo.Format("2006-01-02")
	}
	return fmt.Sprintf("report:stats:%s:%s:%s:%s:%s", scope.Type, scope.ID, departmentID, from, to)
}

// Statistics returns the lightweight dashboard aggregate for a scope. The
// value is cached briefly; the database stays authoritative.
func (s *ReportService) Statistics(ctx context.Context, claims *models.JWTClaims, scope models.ReportScope) (*models.ReportStatistics, error) {
	if err := validateReportScope(scope); err != nil {
		return nil, err
	}

	departmentID, err := s.departmentClamp(ctx, claims)
	if err != nil {
		return nil, err
	}

	key := statsCacheKey(scope, departmentID)
	var cached models.ReportStatistics
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	report, err := s.generate(ctx, scope, departmentID)
	if err != nil {
		return nil, err
	}
	stats := &models.ReportStatistics{
		TotalStudents: report.Summary.StudentCount,
		TotalSessions: report.Summary.SessionCount,
		AvgAttendance: report.Summary.AverageAttendanceRate,
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, stats, s.statsTTL)
	}
	return stats, nil
}

// StudentDetail returns one student's per-session history for a course.
func (s *ReportService) StudentDetail(ctx context.Context, claims *models.JWTClaims, studentID, courseID string) (*models.StudentSummary, []repository.RecordKey, error) {
	if studentID == "" || courseID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "student and course are required")
	}
	if _, err := s.departmentClamp(ctx, claims); err != nil {
		return nil, nil, err
	}
	rows, err := s.reports.StudentDetail(ctx, studentID, courseID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student history")
	}
	presentCount := 0
	for _, row := range rows {
		if row.Status == models.AttendancePresent {
			presentCount++
		}
	}
	pct := AttendanceRate(presentCount, len(rows))
	summary := &models.StudentSummary{
		StudentID:     studentID,
		TotalSessions: len(rows),
		PresentCount:  presentCount,
		AbsentCount:   len(rows) - presentCount,
		Percentage:    pct,
		AllowedToSit:  pct >= s.threshold,
	}
	return summary, rows, nil
}

// departmentClamp resolves the department non-admin callers are limited to.
// Admins get an empty clamp, meaning no restriction.
func (s *ReportService) departmentClamp(ctx context.Context, claims *models.JWTClaims) (string, error) {
	if claims.Role == models.RoleAdmin {
		return "", nil
	}
	dept, err := s.access.DepartmentForUser(ctx, claims.UserID, claims.Role)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve department")
	}
	if dept == "" {
		return "", appErrors.Clone(appErrors.ErrForbidden, "no department assignment for this account")
	}
	return dept, nil
}

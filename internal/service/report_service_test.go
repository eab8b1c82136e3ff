package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/attendance-api/internal/models"
	"github.com/campushq/attendance-api/internal/repository"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
)

type mockReportRepo struct {
	students []models.Student
	sessions []models.AttendanceSession
	records  []repository.RecordKey
	detail   []repository.RecordKey
}

func (m *mockReportRepo) StudentsForScope(ctx context.Context, scope models.ReportScope, departmentID string) ([]models.Student, error) {
	return m.students, nil
}

func (m *mockReportRepo) SessionsForScope(ctx context.Context, scope models.ReportScope, departmentID string) ([]models.AttendanceSession, error) {
	return m.sessions, nil
}

func (m *mockReportRepo) RecordsForSessions(ctx context.Context, sessionIDs []string) ([]repository.RecordKey, error) {
	return m.records, nil
}

func (m *mockReportRepo) StudentDetail(ctx context.Context, studentID, courseID string) ([]repository.RecordKey, error) {
	return m.detail, nil
}

func courseScope() models.ReportScope {
	return models.ReportScope{Type: models.ScopeCourse, ID: "course-1"}
}

func reportStudents() []models.Student {
	return []models.Student{
		{ID: "stu-1", RegNo: "REG/001", FirstName: "Alice", LastName: "Umutoni"},
		{ID: "stu-2", RegNo: "REG/002", FirstName: "Bob", LastName: "Mugisha"},
		{ID: "stu-3", RegNo: "REG/003", FirstName: "Carol", LastName: "Ingabire"},
	}
}

func reportSessions() []models.AttendanceSession {
	return []models.AttendanceSession{
		{ID: "sess-1", CourseID: "course-1"},
		{ID: "sess-2", CourseID: "course-1"},
	}
}

func newReportService(repo *mockReportRepo, threshold float64) *ReportService {
	return NewReportService(repo, &mockCourseAccess{department: "dept-1"}, nil, nil, threshold, time.Minute)
}

func TestReportAbsenceByOmission(t *testing.T) {
	// Alice attends both sessions, Bob one, Carol none. Carol has no rows at
	// all yet still appears with two absences.
	repo := &mockReportRepo{
		students: reportStudents(),
		sessions: reportSessions(),
		records: []repository.RecordKey{
			{SessionID: "sess-1", StudentID: "stu-1", Status: "present"},
			{SessionID: "sess-2", StudentID: "stu-1", Status: "present"},
			{SessionID: "sess-1", StudentID: "stu-2", Status: "present"},
		},
	}
	svc := newReportService(repo, 85)

	report, err := svc.Generate(context.Background(), adminClaims(), courseScope())
	require.NoError(t, err)

	require.Len(t, report.Students, 3)
	byID := make(map[string]models.StudentSummary)
	for _, st := range report.Students {
		byID[st.StudentID] = st
	}

	assert.InDelta(t, 100.0, byID["stu-1"].Percentage, 0.001)
	assert.InDelta(t, 50.0, byID["stu-2"].Percentage, 0.001)
	assert.InDelta(t, 0.0, byID["stu-3"].Percentage, 0.001)
	assert.InDelta(t, 50.0, report.Summary.AverageAttendanceRate, 0.001)

	assert.Equal(t, models.AttendanceAbsent, report.Matrix["stu-3"]["sess-1"])
	assert.Equal(t, models.AttendanceAbsent, report.Matrix["stu-3"]["sess-2"])
	assert.Equal(t, models.AttendancePresent, report.Matrix["stu-1"]["sess-2"])
	assert.Equal(t, models.AttendanceAbsent, report.Matrix["stu-2"]["sess-2"])

	assert.Equal(t, 1, report.Summary.PerfectAttendance)
	assert.Equal(t, 1, report.Summary.ZeroAttendance)
	assert.Equal(t, 1, report.Summary.StudentsAboveTarget)
	assert.Equal(t, 2, report.Summary.StudentsBelowTarget)
}

func TestReportExamEligibilityThreshold(t *testing.T) {
	repo := &mockReportRepo{
		students: reportStudents()[:2],
		sessions: reportSessions(),
		records: []repository.RecordKey{
			{SessionID: "sess-1", StudentID: "stu-1", Status: "present"},
			{SessionID: "sess-2", StudentID: "stu-1", Status: "present"},
			{SessionID: "sess-1", StudentID: "stu-2", Status: "present"},
		},
	}
	svc := newReportService(repo, 85)

	report, err := svc.Generate(context.Background(), adminClaims(), courseScope())
	require.NoError(t, err)

	byID := make(map[string]models.StudentSummary)
	for _, st := range report.Students {
		byID[st.StudentID] = st
	}
	assert.True(t, byID["stu-1"].AllowedToSit)
	assert.False(t, byID["stu-2"].AllowedToSit)
	assert.InDelta(t, 85.0, report.Summary.Threshold, 0.001)

	// A lower threshold flips eligibility for the 50% student.
	lenient := newReportService(repo, 50)
	report, err = lenient.Generate(context.Background(), adminClaims(), courseScope())
	require.NoError(t, err)
	for _, st := range report.Students {
		assert.True(t, st.AllowedToSit)
	}
}

func TestReportEmptyScope(t *testing.T) {
	svc := newReportService(&mockReportRepo{}, 85)

	report, err := svc.Generate(context.Background(), adminClaims(), courseScope())
	require.NoError(t, err)
	assert.Empty(t, report.Students)
	assert.Empty(t, report.Sessions)
	assert.Zero(t, report.Summary.AverageAttendanceRate)
	assert.Zero(t, report.Summary.StudentCount)
}

func TestReportNoSessionsYieldsZeroRates(t *testing.T) {
	repo := &mockReportRepo{students: reportStudents()}
	svc := newReportService(repo, 85)

	report, err := svc.Generate(context.Background(), adminClaims(), courseScope())
	require.NoError(t, err)
	require.Len(t, report.Students, 3)
	for _, st := range report.Students {
		assert.Zero(t, st.Percentage)
		assert.False(t, st.AllowedToSit)
	}
}

func TestReportRejectsInvalidScope(t *testing.T) {
	svc := newReportService(&mockReportRepo{}, 85)

	_, err := svc.Generate(context.Background(), adminClaims(), models.ReportScope{Type: "faculty", ID: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Generate(context.Background(), adminClaims(), models.ReportScope{Type: models.ScopeCourse})
	require.Error(t, err)
}

func TestReportRejectsInvertedDateRange(t *testing.T) {
	svc := newReportService(&mockReportRepo{}, 85)

	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, -1, 0)
	_, err := svc.Generate(context.Background(), adminClaims(), models.ReportScope{
		Type: models.ScopeCourse, ID: "course-1", DateFrom: &from, DateTo: &to,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

type memoryCacheRepo struct {
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	return nil
}

// deptClampedReportRepo serves the full roster only when no department clamp
// is applied, mirroring the SQL filters.
type deptClampedReportRepo struct {
	students []models.Student
	sessions []models.AttendanceSession
}

func (m *deptClampedReportRepo) StudentsForScope(ctx context.Context, scope models.ReportScope, departmentID string) ([]models.Student, error) {
	if departmentID != "" {
		return nil, nil
	}
	return m.students, nil
}

func (m *deptClampedReportRepo) SessionsForScope(ctx context.Context, scope models.ReportScope, departmentID string) ([]models.AttendanceSession, error) {
	if departmentID != "" {
		return nil, nil
	}
	return m.sessions, nil
}

func (m *deptClampedReportRepo) RecordsForSessions(ctx context.Context, sessionIDs []string) ([]repository.RecordKey, error) {
	return nil, nil
}

func (m *deptClampedReportRepo) StudentDetail(ctx context.Context, studentID, courseID string) ([]repository.RecordKey, error) {
	return nil, nil
}

func TestReportStatisticsCacheScopedToCaller(t *testing.T) {
	repo := &deptClampedReportRepo{students: reportStudents(), sessions: reportSessions()}
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewReportService(repo, &mockCourseAccess{department: "dept-1"}, cache, nil, 85, time.Minute)

	adminStats, err := svc.Statistics(context.Background(), adminClaims(), courseScope())
	require.NoError(t, err)
	assert.Equal(t, 3, adminStats.TotalStudents)
	assert.Equal(t, 2, adminStats.TotalSessions)

	// The lecturer is clamped to dept-1 and must not be served the admin's
	// unclamped aggregate for the same scope.
	lectStats, err := svc.Statistics(context.Background(), lecturerClaims(), courseScope())
	require.NoError(t, err)
	assert.Zero(t, lectStats.TotalStudents)
	assert.Zero(t, lectStats.TotalSessions)
	assert.Len(t, cacheRepo.entries, 2, "clamped and unclamped callers must cache under distinct keys")
}

func TestReportStatisticsCacheKeyIncludesDateRange(t *testing.T) {
	repo := &mockReportRepo{students: reportStudents(), sessions: reportSessions()}
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewReportService(repo, &mockCourseAccess{department: "dept-1"}, cache, nil, 85, time.Minute)

	_, err := svc.Statistics(context.Background(), adminClaims(), courseScope())
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	ranged := courseScope()
	ranged.DateFrom = &from
	ranged.DateTo = &to
	_, err = svc.Statistics(context.Background(), adminClaims(), ranged)
	require.NoError(t, err)

	assert.Len(t, cacheRepo.entries, 2, "date-bounded requests must not collide with the unbounded aggregate")
}

func TestReportStudentDetail(t *testing.T) {
	repo := &mockReportRepo{detail: []repository.RecordKey{
		{SessionID: "sess-1", StudentID: "stu-1", Status: "present"},
		{SessionID: "sess-2", StudentID: "stu-1", Status: "absent"},
		{SessionID: "sess-3", StudentID: "stu-1", Status: "present"},
	}}
	svc := newReportService(repo, 85)

	summary, history, err := svc.StudentDetail(context.Background(), adminClaims(), "stu-1", "course-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 2, summary.PresentCount)
	assert.Equal(t, 1, summary.AbsentCount)
	assert.InDelta(t, 66.7, summary.Percentage, 0.001)
	assert.False(t, summary.AllowedToSit)
}

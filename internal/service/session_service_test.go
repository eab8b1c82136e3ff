package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/attendance-api/internal/models"
	"github.com/campushq/attendance-api/internal/repository"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
)

type mockSessionRepo struct {
	active      *models.AttendanceSession
	detail      *models.SessionDetail
	stats       *models.SessionStats
	createErr   error
	created     *models.AttendanceSession
	endCalls    []string
	endResult   bool
	owned       bool
	activeAfter *models.AttendanceSession
	createCount int
}

func (m *mockSessionRepo) CreateActive(ctx context.Context, session *models.AttendanceSession) (*models.AttendanceSession, error) {
	m.createCount++
	if m.createErr != nil {
		return nil, m.createErr
	}
	session.Status = models.SessionStatusActive
	if session.ID == "" {
		session.ID = "sess-new"
	}
	m.created = session
	return session, nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	if m.created != nil && m.created.ID == id {
		return m.created, nil
	}
	return m.active, nil
}

func (m *mockSessionRepo) FindDetail(ctx context.Context, id string) (*models.SessionDetail, error) {
	if m.detail != nil {
		return m.detail, nil
	}
	return &models.SessionDetail{AttendanceSession: models.AttendanceSession{ID: id, Status: models.SessionStatusActive}}, nil
}

func (m *mockSessionRepo) ActiveForCourse(ctx context.Context, courseID string) (*models.AttendanceSession, error) {
	if m.createCount > 0 && m.activeAfter != nil {
		return m.activeAfter, nil
	}
	return m.active, nil
}

func (m *mockSessionRepo) ActiveForLecturer(ctx context.Context, lecturerID string) (*models.SessionDetail, error) {
	return m.detail, nil
}

func (m *mockSessionRepo) IsOwnedBy(ctx context.Context, sessionID, lecturerID string) (bool, error) {
	return m.owned, nil
}

func (m *mockSessionRepo) End(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	m.endCalls = append(m.endCalls, sessionID)
	return m.endResult, nil
}

func (m *mockSessionRepo) Stats(ctx context.Context, sessionID string) (*models.SessionStats, error) {
	return m.stats, nil
}

func (m *mockSessionRepo) StatusForCourse(ctx context.Context, courseID string) (*models.SessionDetail, error) {
	return m.detail, nil
}

type mockCourseAccess struct {
	teaches    bool
	department string
}

func (m *mockCourseAccess) LecturerTeaches(ctx context.Context, courseID, lecturerID string) (bool, error) {
	return m.teaches, nil
}

func (m *mockCourseAccess) DepartmentForUser(ctx context.Context, userID string, role models.UserRole) (string, error) {
	return m.department, nil
}

type mockAudit struct {
	logs []*models.AuditLog
}

func (m *mockAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func lecturerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "lect-1", Role: models.RoleLecturer}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func validCreateRequest() CreateSessionRequest {
	return CreateSessionRequest{
		DepartmentID: "dept-1",
		OptionID:     "opt-1",
		CourseID:     "course-1",
		Method:       "face",
	}
}

func TestSessionCreateNew(t *testing.T) {
	repo := &mockSessionRepo{}
	audit := &mockAudit{}
	svc := NewSessionService(repo, &mockCourseAccess{teaches: true, department: "dept-1"}, audit, nil, nil, nil, time.Minute)

	result, err := svc.Create(context.Background(), lecturerClaims(), validCreateRequest())
	require.NoError(t, err)
	assert.True(t, result.Created)
	require.NotNil(t, result.Session)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSessionCreate, audit.logs[0].Action)
}

func TestSessionCreateReturnsExisting(t *testing.T) {
	existing := &models.AttendanceSession{ID: "sess-1", CourseID: "course-1", Status: models.SessionStatusActive}
	repo := &mockSessionRepo{
		active: existing,
		detail: &models.SessionDetail{AttendanceSession: *existing},
	}
	svc := NewSessionService(repo, &mockCourseAccess{teaches: true, department: "dept-1"}, &mockAudit{}, nil, nil, nil, time.Minute)

	result, err := svc.Create(context.Background(), lecturerClaims(), validCreateRequest())
	require.NoError(t, err)
	assert.False(t, result.Created)
	require.NotNil(t, result.Existing)
	assert.Equal(t, "sess-1", result.Existing.ID)
	assert.Zero(t, repo.createCount, "no new session should be created")
}

func TestSessionCreateForceNewEndsExisting(t *testing.T) {
	existing := &models.AttendanceSession{ID: "sess-old", CourseID: "course-1", Status: models.SessionStatusActive}
	repo := &mockSessionRepo{active: existing, endResult: true}
	svc := NewSessionService(repo, &mockCourseAccess{teaches: true, department: "dept-1"}, &mockAudit{}, nil, nil, nil, time.Minute)

	req := validCreateRequest()
	req.ForceNew = true
	result, err := svc.Create(context.Background(), lecturerClaims(), req)
	require.NoError(t, err)
	assert.True(t, result.Created)
	require.Len(t, repo.endCalls, 1)
	assert.Equal(t, "sess-old", repo.endCalls[0])
}

func TestSessionCreateLosesRace(t *testing.T) {
	winner := &models.AttendanceSession{ID: "sess-winner", CourseID: "course-1", Status: models.SessionStatusActive}
	repo := &mockSessionRepo{
		createErr:   repository.ErrActiveSessionExists,
		activeAfter: winner,
		detail:      &models.SessionDetail{AttendanceSession: *winner},
	}
	svc := NewSessionService(repo, &mockCourseAccess{teaches: true, department: "dept-1"}, &mockAudit{}, nil, nil, nil, time.Minute)

	result, err := svc.Create(context.Background(), lecturerClaims(), validCreateRequest())
	require.NoError(t, err)
	assert.False(t, result.Created)
	require.NotNil(t, result.Existing)
	assert.Equal(t, "sess-winner", result.Existing.ID)
}

func TestSessionCreateRejectsUnassignedLecturer(t *testing.T) {
	svc := NewSessionService(&mockSessionRepo{}, &mockCourseAccess{teaches: false, department: "dept-1"}, &mockAudit{}, nil, nil, nil, time.Minute)

	_, err := svc.Create(context.Background(), lecturerClaims(), validCreateRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestSessionCreateRejectsWrongDepartment(t *testing.T) {
	svc := NewSessionService(&mockSessionRepo{}, &mockCourseAccess{teaches: true, department: "dept-other"}, &mockAudit{}, nil, nil, nil, time.Minute)

	_, err := svc.Create(context.Background(), lecturerClaims(), validCreateRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSessionEndIdempotent(t *testing.T) {
	repo := &mockSessionRepo{owned: true, endResult: false}
	svc := NewSessionService(repo, &mockCourseAccess{}, &mockAudit{}, nil, nil, nil, time.Minute)

	ended, err := svc.End(context.Background(), lecturerClaims(), "sess-1")
	require.NoError(t, err)
	assert.False(t, ended, "second end is a no-op, not an error")
}

func TestSessionEndRejectsNonOwner(t *testing.T) {
	repo := &mockSessionRepo{owned: false}
	svc := NewSessionService(repo, &mockCourseAccess{}, &mockAudit{}, nil, nil, nil, time.Minute)

	_, err := svc.End(context.Background(), lecturerClaims(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionForceEndAlwaysAudited(t *testing.T) {
	repo := &mockSessionRepo{endResult: false}
	audit := &mockAudit{}
	svc := NewSessionService(repo, &mockCourseAccess{}, audit, nil, nil, nil, time.Minute)

	ended, err := svc.ForceEnd(context.Background(), adminClaims(), "sess-1")
	require.NoError(t, err)
	assert.False(t, ended)
	require.Len(t, audit.logs, 1, "force end is audited even when nothing changed")
	assert.Equal(t, models.AuditActionSessionForceEnd, audit.logs[0].Action)
}

func TestSessionStatsComputesRate(t *testing.T) {
	repo := &mockSessionRepo{owned: true, stats: &models.SessionStats{TotalStudents: 30, PresentCount: 20, AbsentCount: 10}}
	svc := NewSessionService(repo, &mockCourseAccess{}, &mockAudit{}, nil, nil, nil, time.Minute)

	stats, err := svc.Stats(context.Background(), lecturerClaims(), "sess-1")
	require.NoError(t, err)
	assert.InDelta(t, 66.7, stats.AttendanceRate, 0.001)
}

func TestSessionStatsZeroEnrollment(t *testing.T) {
	repo := &mockSessionRepo{owned: true, stats: &models.SessionStats{}}
	svc := NewSessionService(repo, &mockCourseAccess{}, &mockAudit{}, nil, nil, nil, time.Minute)

	stats, err := svc.Stats(context.Background(), lecturerClaims(), "sess-1")
	require.NoError(t, err)
	assert.Zero(t, stats.AttendanceRate)
}

func TestAttendanceRate(t *testing.T) {
	cases := []struct {
		present, total int
		want           float64
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 10, 0},
		{10, 10, 100},
		{1, 3, 33.3},
		{2, 3, 66.7},
		{17, 24, 70.8},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, AttendanceRate(tc.present, tc.total), 0.001, "present=%d total=%d", tc.present, tc.total)
	}
}

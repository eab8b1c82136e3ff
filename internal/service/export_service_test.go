package service

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/attendance-api/internal/models"
	"github.com/campushq/attendance-api/internal/repository"
	"github.com/campushq/attendance-api/pkg/config"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
	"github.com/campushq/attendance-api/pkg/storage"
)

type mockExportSessions struct {
	detail *models.SessionDetail
	owned  bool
}

func (m *mockExportSessions) FindDetail(ctx context.Context, id string) (*models.SessionDetail, error) {
	return m.detail, nil
}

func (m *mockExportSessions) IsOwnedBy(ctx context.Context, sessionID, lecturerID string) (bool, error) {
	return m.owned, nil
}

type mockExportRecords struct {
	records []models.AttendanceRecordDetail
}

func (m *mockExportRecords) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	return m.records, nil
}

type stubReportGen struct {
	report *models.AttendanceReport
	err    error
}

func (s *stubReportGen) Generate(ctx context.Context, claims *models.JWTClaims, scope models.ReportScope) (*models.AttendanceReport, error) {
	return s.report, s.err
}

func (s *stubReportGen) Threshold() float64 { return 85 }

// memoryExportJobs stands in for the export job table.
type memoryExportJobs struct {
	mu   sync.Mutex
	rows map[string]models.ExportJob
}

func newMemoryExportJobs() *memoryExportJobs {
	return &memoryExportJobs{rows: make(map[string]models.ExportJob)}
}

func (m *memoryExportJobs) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.rows[job.ID] = *job
	m.mu.Unlock()
	return nil
}

func (m *memoryExportJobs) FindByID(ctx context.Context, id string) (*models.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	copied := job
	return &copied, nil
}

func (m *memoryExportJobs) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.rows[id]
	if !ok {
		return nil
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.FilePath != nil {
		job.FilePath = *params.FilePath
	}
	if params.DownloadURL != nil {
		job.DownloadURL = *params.DownloadURL
	}
	if params.ErrorMessage != nil {
		job.Error = *params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	if params.ExpiresAt != nil {
		job.ExpiresAt = params.ExpiresAt
	}
	m.rows[id] = job
	return nil
}

func (m *memoryExportJobs) FailInterrupted(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	var n int64
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, job := range m.rows {
		if job.Status == models.ExportStatusQueued || job.Status == models.ExportStatusProcessing {
			job.Status = models.ExportStatusFailed
			job.Error = "interrupted by restart"
			job.FinishedAt = &now
			m.rows[id] = job
			n++
		}
	}
	return n, nil
}

func (m *memoryExportJobs) DeleteExpired(ctx context.Context, expiredBefore, failedBefore time.Time) (int64, error) {
	var n int64
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, job := range m.rows {
		if job.ExpiresAt != nil && job.ExpiresAt.Before(expiredBefore) {
			delete(m.rows, id)
			n++
			continue
		}
		if job.Status == models.ExportStatusFailed && job.FinishedAt != nil && job.FinishedAt.Before(failedBefore) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func exportConfig(t *testing.T) config.ExportsConfig {
	t.Helper()
	return config.ExportsConfig{
		StorageDir:        t.TempDir(),
		SignedURLSecret:   "test-export-secret",
		SignedURLTTL:      time.Hour,
		CleanupInterval:   time.Hour,
		WorkerConcurrency: 1,
		WorkerRetries:     0,
		PDFEnabled:        true,
	}
}

func newExportServiceWithJobs(t *testing.T, sessions *mockExportSessions, records *mockExportRecords, reports *stubReportGen, cfg config.ExportsConfig, jobStore *memoryExportJobs) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(cfg.StorageDir)
	require.NoError(t, err)
	return NewExportService(sessions, records, reports, &mockAudit{}, jobStore, store, cfg, nil)
}

func newExportService(t *testing.T, sessions *mockExportSessions, records *mockExportRecords, reports *stubReportGen, cfg config.ExportsConfig) *ExportService {
	t.Helper()
	return newExportServiceWithJobs(t, sessions, records, reports, cfg, newMemoryExportJobs())
}

func sessionDetailFixture() *models.SessionDetail {
	return &models.SessionDetail{
		AttendanceSession: models.AttendanceSession{
			ID:          "sess-1",
			Status:      models.SessionStatusCompleted,
			SessionDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		CourseName: "Distributed Systems",
		CourseCode: "CS401",
	}
}

func TestExportSessionCSV(t *testing.T) {
	sessions := &mockExportSessions{detail: sessionDetailFixture(), owned: true}
	records := &mockExportRecords{records: []models.AttendanceRecordDetail{
		{StudentReg: "REG/001", StudentName: "Alice Umutoni", YearLevel: "3", Status: models.AttendancePresent, Method: models.RecordMethodFaceRecognition, RecordedAt: time.Date(2026, 3, 10, 9, 5, 0, 0, time.UTC)},
	}}
	svc := newExportService(t, sessions, records, &stubReportGen{}, exportConfig(t))

	filename, ctype, data, err := svc.ExportSession(context.Background(), lecturerClaims(), "sess-1", models.ExportFormatCSV)
	require.NoError(t, err)

	assert.Equal(t, "session_CS401_20260310.csv", filename)
	assert.Equal(t, "text/csv; charset=utf-8", ctype)
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}), "csv must start with a UTF-8 BOM")

	body := string(data[3:])
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Reg No,Student Name,Year,Status,Method,Recorded At", lines[0])
	assert.Contains(t, lines[1], "REG/001")
	assert.Contains(t, lines[1], "face_recognition")
}

func TestExportSessionRejectsNonOwner(t *testing.T) {
	sessions := &mockExportSessions{detail: sessionDetailFixture(), owned: false}
	svc := newExportService(t, sessions, &mockExportRecords{}, &stubReportGen{}, exportConfig(t))

	_, _, _, err := svc.ExportSession(context.Background(), lecturerClaims(), "sess-1", models.ExportFormatCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportSessionPDFDisabled(t *testing.T) {
	cfg := exportConfig(t)
	cfg.PDFEnabled = false
	sessions := &mockExportSessions{detail: sessionDetailFixture(), owned: true}
	svc := newExportService(t, sessions, &mockExportRecords{}, &stubReportGen{}, cfg)

	_, _, _, err := svc.ExportSession(context.Background(), lecturerClaims(), "sess-1", models.ExportFormatPDF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdf export is disabled")
}

func TestExportSessionRejectsUnknownFormat(t *testing.T) {
	svc := newExportService(t, &mockExportSessions{owned: true}, &mockExportRecords{}, &stubReportGen{}, exportConfig(t))

	_, _, _, err := svc.ExportSession(context.Background(), adminClaims(), "sess-1", models.ExportFormat("docx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReportExportJobLifecycle(t *testing.T) {
	report := &models.AttendanceReport{
		Students: []models.StudentSummary{
			{StudentID: "stu-1", StudentName: "Alice Umutoni", StudentReg: "REG/001", TotalSessions: 4, PresentCount: 4, Percentage: 100, AllowedToSit: true},
			{StudentID: "stu-2", StudentName: "Bob Mugisha", StudentReg: "REG/002", TotalSessions: 4, PresentCount: 1, AbsentCount: 3, Percentage: 25},
		},
	}
	cfg := exportConfig(t)
	svc := newExportService(t, &mockExportSessions{}, &mockExportRecords{}, &stubReportGen{report: report}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	claims := lecturerClaims()
	job, err := svc.RequestReportExport(ctx, claims, courseScope(), models.ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)

	require.Eventually(t, func() bool {
		current, err := svc.Job(ctx, claims, job.ID)
		return err == nil && current.Status == models.ExportStatusFinished
	}, 5*time.Second, 20*time.Millisecond)

	finished, err := svc.Job(ctx, claims, job.ID)
	require.NoError(t, err)
	assert.Contains(t, finished.DownloadURL, "/exports/download?token=")
	require.NotNil(t, finished.ExpiresAt)

	token := strings.TrimPrefix(finished.DownloadURL, "/exports/download?token=")
	path, rel, err := svc.ResolveDownload(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "report_"+job.ID+".csv", rel)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "Exam Eligibility")
	assert.Contains(t, body, "Allowed")
	assert.Contains(t, body, "Not Allowed")
}

func TestReportExportFailureMarksJob(t *testing.T) {
	svc := newExportService(t, &mockExportSessions{}, &mockExportRecords{}, &stubReportGen{err: assert.AnError}, exportConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	claims := lecturerClaims()
	job, err := svc.RequestReportExport(ctx, claims, courseScope(), models.ExportFormatCSV)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := svc.Job(ctx, claims, job.ID)
		return err == nil && current.Status == models.ExportStatusFailed
	}, 5*time.Second, 20*time.Millisecond)

	failed, err := svc.Job(ctx, claims, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "report generation failed", failed.Error)
	assert.Empty(t, failed.DownloadURL)
}

func TestExportJobHiddenFromOtherUsers(t *testing.T) {
	svc := newExportService(t, &mockExportSessions{}, &mockExportRecords{}, &stubReportGen{report: &models.AttendanceReport{}}, exportConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	owner := lecturerClaims()
	job, err := svc.RequestReportExport(context.Background(), owner, courseScope(), models.ExportFormatCSV)
	require.NoError(t, err)

	other := &models.JWTClaims{UserID: "lect-2", Role: models.RoleLecturer}
	_, err = svc.Job(context.Background(), other, job.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	got, err := svc.Job(context.Background(), adminClaims(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}

func TestExportJobSurvivesRestart(t *testing.T) {
	report := &models.AttendanceReport{
		Students: []models.StudentSummary{
			{StudentID: "stu-1", StudentName: "Alice Umutoni", StudentReg: "REG/001", TotalSessions: 2, PresentCount: 2, Percentage: 100, AllowedToSit: true},
		},
	}
	cfg := exportConfig(t)
	jobStore := newMemoryExportJobs()
	first := newExportServiceWithJobs(t, &mockExportSessions{}, &mockExportRecords{}, &stubReportGen{report: report}, cfg, jobStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first.Start(ctx)

	claims := lecturerClaims()
	job, err := first.RequestReportExport(ctx, claims, courseScope(), models.ExportFormatCSV)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		current, err := first.Job(ctx, claims, job.ID)
		return err == nil && current.Status == models.ExportStatusFinished
	}, 5*time.Second, 20*time.Millisecond)
	first.Stop()

	// A fresh service over the same job rows and storage directory still
	// resolves the job and its signed download link.
	second := newExportServiceWithJobs(t, &mockExportSessions{}, &mockExportRecords{}, &stubReportGen{report: report}, cfg, jobStore)

	recovered, err := second.Job(context.Background(), claims, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, recovered.Status)
	require.Contains(t, recovered.DownloadURL, "/exports/download?token=")

	token := strings.TrimPrefix(recovered.DownloadURL, "/exports/download?token=")
	path, _, err := second.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "REG/001")
}

func TestExportStartFailsInterruptedJobs(t *testing.T) {
	cfg := exportConfig(t)
	jobStore := newMemoryExportJobs()
	stranded := &models.ExportJob{Scope: courseScope(), Format: models.ExportFormatCSV, Status: models.ExportStatusProcessing, RequestedBy: "lect-1"}
	require.NoError(t, jobStore.Create(context.Background(), stranded))

	svc := newExportServiceWithJobs(t, &mockExportSessions{}, &mockExportRecords{}, &stubReportGen{}, cfg, jobStore)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	got, err := svc.Job(context.Background(), lecturerClaims(), stranded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, got.Status)
	assert.Equal(t, "interrupted by restart", got.Error)
}

func TestResolveDownloadRejectsBadToken(t *testing.T) {
	svc := newExportService(t, &mockExportSessions{}, &mockExportRecords{}, &stubReportGen{}, exportConfig(t))

	_, _, err := svc.ResolveDownload(context.Background(), "not-a-real-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

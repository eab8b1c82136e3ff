package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/attendance-api/internal/models"
	"github.com/campushq/attendance-api/internal/repository"
	"github.com/campushq/attendance-api/pkg/config"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
	"github.com/campushq/attendance-api/pkg/export"
	"github.com/campushq/attendance-api/pkg/jobs"
	"github.com/campushq/attendance-api/pkg/storage"
)

type exportSessionRepository interface {
	FindDetail(ctx context.Context, id string) (*models.SessionDetail, error)
	IsOwnedBy(ctx context.Context, sessionID, lecturerID string) (bool, error)
}

type exportRecordRepository interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error)
}

type reportGenerator interface {
	Generate(ctx context.Context, claims *models.JWTClaims, scope models.ReportScope) (*models.AttendanceReport, error)
	Threshold() float64
}

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	FindByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	FailInterrupted(ctx context.Context) (int64, error)
	DeleteExpired(ctx context.Context, expiredBefore, failedBefore time.Time) (int64, error)
}

// ExportService renders attendance data to CSV, Excel and PDF. Session
// exports are produced inline; report exports run on a background queue and
// are fetched later through signed download URLs. Job rows are persisted, so
// status and download links survive a restart.
type ExportService struct {
	sessions exportSessionRepository
	records  exportRecordRepository
	reports  reportGenerator
	audit    auditWriter
	jobStore exportJobStore

	csv   *export.CSVExporter
	excel *export.ExcelExporter
	pdf   *export.PDFExporter

	store  *storage.LocalStorage
	signer *storage.SignedURLSigner
	queue  *jobs.Queue
	logger *zap.Logger
	cfg    config.ExportsConfig

	cleanupStop chan struct{}
}

type reportExportPayload struct {
	Claims *models.JWTClaims
	Scope  models.ReportScope
	Format models.ExportFormat
}

// NewExportService constructs the export service and its worker queue.
func NewExportService(sessions exportSessionRepository, records exportRecordRepository, reports reportGenerator, audit auditWriter, jobStore exportJobStore, store *storage.LocalStorage, cfg config.ExportsConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportService{
		sessions: sessions,
		records:  records,
		reports:  reports,
		audit:    audit,
		jobStore: jobStore,
		csv:      export.NewCSVExporter(),
		excel:    export.NewExcelExporter(),
		pdf:      export.NewPDFExporter(),
		store:    store,
		signer:   storage.NewSignedURLSigner(cfg.SignedURLSecret, cfg.SignedURLTTL),
		logger:   logger,
		cfg:      cfg,
	}
	s.queue = jobs.NewQueue("report-exports", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the export workers and the file cleanup loop. Jobs left
// queued or processing by a previous run are marked failed: the dispatch
// queue did not survive with them.
func (s *ExportService) Start(ctx context.Context) {
	if n, err := s.jobStore.FailInterrupted(ctx); err != nil {
		s.logger.Warn("failed to sweep interrupted export jobs", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("marked interrupted export jobs as failed", zap.Int64("count", n))
	}
	s.queue.Start(ctx)
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	s.cleanupStop = make(chan struct{})
	go s.cleanupLoop(interval)
}

// Stop drains the workers and stops the cleanup loop.
func (s *ExportService) Stop() {
	s.queue.Stop()
	if s.cleanupStop != nil {
		close(s.cleanupStop)
	}
}

// ExportSession renders one session's attendance list inline.
func (s *ExportService) ExportSession(ctx context.Context, claims *models.JWTClaims, sessionID string, format models.ExportFormat) (string, string, []byte, error) {
	if !format.Valid() {
		return "", "", nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err := s.checkFormatEnabled(format); err != nil {
		return "", "", nil, err
	}
	if claims.Role != models.RoleAdmin {
		owned, err := s.sessions.IsOwnedBy(ctx, sessionID, claims.UserID)
		if err != nil {
			return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify session ownership")
		}
		if !owned {
			return "", "", nil, appErrors.Clone(appErrors.ErrNotFound, "session not found or access denied")
		}
	}
	detail, err := s.sessions.FindDetail(ctx, sessionID)
	if err != nil {
		return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if detail == nil {
		return "", "", nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	records, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load records")
	}

	dataset := sessionDataset(records)
	title := fmt.Sprintf("Attendance - %s (%s)", detail.CourseName, detail.SessionDate.Format("2006-01-02"))
	data, err := s.render(dataset, title, format)
	if err != nil {
		return "", "", nil, err
	}

	s.writeAudit(ctx, claims, sessionID, format)
	filename := fmt.Sprintf("session_%s_%s.%s", detail.CourseCode, detail.SessionDate.Format("20060102"), fileExtension(format))
	return filename, contentType(format), data, nil
}

// RequestReportExport queues a report export and returns the tracking job.
func (s *ExportService) RequestReportExport(ctx context.Context, claims *models.JWTClaims, scope models.ReportScope, format models.ExportFormat) (*models.ExportJob, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err := s.checkFormatEnabled(format); err != nil {
		return nil, err
	}
	if !scope.Type.Valid() || scope.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid report scope")
	}

	job := &models.ExportJob{
		Scope:       scope,
		Format:      format,
		Status:      models.ExportStatusQueued,
		RequestedBy: claims.UserID,
	}
	if err := s.jobStore.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record export job")
	}

	err := s.queue.Enqueue(jobs.Job{
		ID:      job.ID,
		Type:    "report_export",
		Payload: reportExportPayload{Claims: claims, Scope: scope, Format: format},
	})
	if err != nil {
		s.failJob(job.ID, "export queue unavailable")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "export queue unavailable")
	}

	s.writeAudit(ctx, claims, scope.ID, format)
	return job, nil
}

// Job returns an export job the caller requested. Admins may see any job.
func (s *ExportService) Job(ctx context.Context, claims *models.JWTClaims, jobID string) (*models.ExportJob, error) {
	job, err := s.jobStore.FindByID(ctx, jobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if claims.Role != models.RoleAdmin && job.RequestedBy != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return job, nil
}

// ResolveDownload validates a signed token and returns the file to serve.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (string, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}
	job, err := s.jobStore.FindByID(ctx, jobID)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job == nil || job.Status != models.ExportStatusFinished {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "export file not found")
	}
	return s.store.Path(relPath), relPath, nil
}

func (s *ExportService) handleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(reportExportPayload)
	if !ok {
		s.failJob(job.ID, "invalid job payload")
		return nil
	}
	s.setStatus(job.ID, models.ExportStatusProcessing)

	report, err := s.reports.Generate(ctx, payload.Claims, payload.Scope)
	if err != nil {
		s.failJob(job.ID, "report generation failed")
		return fmt.Errorf("generate report for export %s: %w", job.ID, err)
	}

	dataset := reportDataset(report)
	title := fmt.Sprintf("Attendance Report - %s %s", payload.Scope.Type, payload.Scope.ID)
	data, err := s.render(dataset, title, payload.Format)
	if err != nil {
		s.failJob(job.ID, "render failed")
		return fmt.Errorf("render export %s: %w", job.ID, err)
	}

	filename := fmt.Sprintf("report_%s.%s", job.ID, fileExtension(payload.Format))
	if _, err := s.store.Save(filename, data); err != nil {
		s.failJob(job.ID, "could not store export file")
		return fmt.Errorf("store export %s: %w", job.ID, err)
	}

	token, expiresAt, err := s.signer.Generate(job.ID, filename)
	if err != nil {
		s.failJob(job.ID, "could not sign download link")
		return fmt.Errorf("sign export %s: %w", job.ID, err)
	}

	now := time.Now().UTC()
	finished := models.ExportStatusFinished
	downloadURL := fmt.Sprintf("/exports/download?token=%s", token)
	err = s.jobStore.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:      &finished,
		FilePath:    &filename,
		DownloadURL: &downloadURL,
		FinishedAt:  &now,
		ExpiresAt:   &expiresAt,
	})
	if err != nil {
		return fmt.Errorf("finish export %s: %w", job.ID, err)
	}
	s.logger.Info("report export finished", zap.String("job_id", job.ID), zap.String("format", string(payload.Format)))
	return nil
}

func (s *ExportService) render(dataset export.Dataset, title string, format models.ExportFormat) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case models.ExportFormatCSV:
		data, err = s.csv.Render(dataset)
	case models.ExportFormatExcel:
		data, err = s.excel.Render(dataset, title)
	case models.ExportFormatPDF:
		data, err = s.pdf.Render(dataset, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return data, nil
}

func (s *ExportService) checkFormatEnabled(format models.ExportFormat) error {
	if format == models.ExportFormatPDF && !s.cfg.PDFEnabled {
		return appErrors.Clone(appErrors.ErrValidation, "pdf export is disabled")
	}
	return nil
}

func (s *ExportService) setStatus(jobID string, status models.ExportJobStatus) {
	err := s.jobStore.Update(context.Background(), jobID, repository.UpdateExportJobParams{Status: &status})
	if err != nil {
		s.logger.Warn("failed to update export job status", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *ExportService) failJob(jobID, message string) {
	now := time.Now().UTC()
	failed := models.ExportStatusFailed
	err := s.jobStore.Update(context.Background(), jobID, repository.UpdateExportJobParams{
		Status:       &failed,
		ErrorMessage: &message,
		FinishedAt:   &now,
	})
	if err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *ExportService) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.cleanupStop:
			return
		case <-ticker.C:
			removed, err := s.store.CleanupOlderThan(s.cfg.SignedURLTTL)
			if err != nil {
				s.logger.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				s.logger.Info("removed expired export files", zap.Int("count", len(removed)))
			}
			s.pruneJobs()
		}
	}
}

// pruneJobs drops rows for jobs whose files have expired.
func (s *ExportService) pruneJobs() {
	now := time.Now().UTC()
	removed, err := s.jobStore.DeleteExpired(context.Background(), now, now.Add(-s.cfg.SignedURLTTL))
	if err != nil {
		s.logger.Warn("failed to prune export jobs", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("pruned expired export jobs", zap.Int64("count", removed))
	}
}

func (s *ExportService) writeAudit(ctx context.Context, claims *models.JWTClaims, resourceID string, format models.ExportFormat) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"format": string(format)})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionExportRequest,
		Resource:   "export",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to write audit log", zap.Error(err))
	}
}

func sessionDataset(records []models.AttendanceRecordDetail) export.Dataset {
	headers := []string{"Reg No", "Student Name", "Year", "Status", "Method", "Recorded At"}
	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, map[string]string{
			"Reg No":       rec.StudentReg,
			"Student Name": rec.StudentName,
			"Year":         rec.YearLevel,
			"Status":       string(rec.Status),
			"Method":       string(rec.Method),
			"Recorded At":  rec.RecordedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func reportDataset(report *models.AttendanceReport) export.Dataset {
	headers := []string{"Reg No", "Student Name", "Sessions", "Present", "Absent", "Attendance %", "Exam Eligibility"}
	rows := make([]map[string]string, 0, len(report.Students))
	for _, st := range report.Students {
		eligibility := "Not Allowed"
		if st.AllowedToSit {
			eligibility = "Allowed"
		}
		rows = append(rows, map[string]string{
			"Reg No":           st.StudentReg,
			"Student Name":     st.StudentName,
			"Sessions":         strconv.Itoa(st.TotalSessions),
			"Present":          strconv.Itoa(st.PresentCount),
			"Absent":           strconv.Itoa(st.AbsentCount),
			"Attendance %":     strconv.FormatFloat(st.Percentage, 'f', 1, 64),
			"Exam Eligibility": eligibility,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func fileExtension(format models.ExportFormat) string {
	switch format {
	case models.ExportFormatExcel:
		return "xls"
	case models.ExportFormatPDF:
		return "pdf"
	default:
		return "csv"
	}
}

func contentType(format models.ExportFormat) string {
	switch format {
	case models.ExportFormatExcel:
		return "application/vnd.ms-excel"
	case models.ExportFormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

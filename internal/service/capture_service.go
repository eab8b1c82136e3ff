package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/attendance-api/internal/models"
	"github.com/campushq/attendance-api/internal/recognizer"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
)

type captureSessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	IsOwnedBy(ctx context.Context, sessionID, lecturerID string) (bool, error)
}

type attendanceRepository interface {
	InsertIfAbsent(ctx context.Context, record *models.AttendanceRecord) (bool, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error)
	FindOwned(ctx context.Context, recordID, lecturerID string) (*models.AttendanceRecord, error)
	Delete(ctx context.Context, recordID string) error
}

// Confidence bands for recognizer scores, expressed as percentages.
const (
	confidenceHigh   = 85.0
	confidenceMedium = 70.0
)

// CaptureService processes face capture frames: it hands the image to the
// external recognizer, normalises the outcome, and marks attendance when the
// match is confident enough. Recognizer failures never surface as transport
// errors; the client gets an error-status result and keeps streaming frames.
type CaptureService struct {
	sessions   captureSessionRepository
	records    attendanceRepository
	recognizer recognizer.Recognizer
	audit      auditWriter
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	maxImageKB int
}

// NewCaptureService constructs the capture service.
func NewCaptureService(sessions captureSessionRepository, records attendanceRepository, rec recognizer.Recognizer, audit auditWriter, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, maxImageKB int) *CaptureService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxImageKB <= 0 {
		maxImageKB = 2048
	}
	return &CaptureService{
		sessions:   sessions,
		records:    records,
		recognizer: rec,
		audit:      audit,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		maxImageKB: maxImageKB,
	}
}

// CaptureRequest is one frame submitted from the capture UI.
type CaptureRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Image     string `json:"image" validate:"required"`
}

// ManualMarkRequest marks one student present by hand.
type ManualMarkRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// Process runs one capture frame through recognition and, on a confident
// match, records attendance. A duplicate submission for the same student is
// reported as already_recorded rather than failing.
func (s *CaptureService) Process(ctx context.Context, claims *models.JWTClaims, req CaptureRequest) (*models.RecognitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid capture payload")
	}
	session, err := s.activeOwnedSession(ctx, claims, req.SessionID)
	if err != nil {
		return nil, err
	}

	image, err := decodeImage(req.Image, s.maxImageKB)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	outcome, err := s.recognizer.Match(ctx, image)
	if err != nil {
		// Staging failure (temp dir unwritable etc). Still reported to the
		// client as a recognition error so capture keeps going.
		s.logger.Error("recognizer staging failed", zap.String("session_id", req.SessionID), zap.Error(err))
		outcome = recognizer.ErrorOutcome("face recognition is temporarily unavailable")
	}
	if s.metrics != nil {
		s.metrics.ObserveRecognition(outcome.Status, time.Since(start))
	}

	result := normalizeOutcome(outcome)
	if result.Status != models.RecognitionSuccess || result.StudentID == nil {
		return result, nil
	}

	created, err := s.records.InsertIfAbsent(ctx, &models.AttendanceRecord{
		SessionID: session.ID,
		StudentID: *result.StudentID,
		Status:    models.AttendancePresent,
		Method:    models.RecordMethodFaceRecognition,
	})
	if err != nil {
		// Unlike recognizer failures, a storage failure is a hard error:
		// the match happened but the record is lost.
		s.logger.Error("failed to record attendance", zap.String("session_id", session.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	result.Recorded = created
	result.AlreadyRecorded = !created
	if !created {
		result.Message = "attendance already recorded for this student"
		return result, nil
	}

	if s.metrics != nil {
		s.metrics.RecordAttendance(string(models.RecordMethodFaceRecognition))
	}
	s.invalidateStats(ctx, session.ID)
	s.writeAudit(ctx, claims, session.ID, map[string]interface{}{
		"student_id": *result.StudentID,
		"method":     string(models.RecordMethodFaceRecognition),
		"confidence": result.Confidence,
	})
	return result, nil
}

// MarkManual records attendance for a student without biometric capture.
func (s *CaptureService) MarkManual(ctx context.Context, claims *models.JWTClaims, req ManualMarkRequest) (bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	session, err := s.activeOwnedSession(ctx, claims, req.SessionID)
	if err != nil {
		return false, err
	}
	created, err := s.records.InsertIfAbsent(ctx, &models.AttendanceRecord{
		SessionID: session.ID,
		StudentID: req.StudentID,
		Status:    models.AttendancePresent,
		Method:    models.RecordMethodManual,
	})
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	if created {
		if s.metrics != nil {
			s.metrics.RecordAttendance(string(models.RecordMethodManual))
		}
		s.invalidateStats(ctx, session.ID)
		s.writeAudit(ctx, claims, session.ID, map[string]interface{}{
			"student_id": req.StudentID,
			"method":     string(models.RecordMethodManual),
		})
	}
	return created, nil
}

// Records lists the attendance records of a session the caller owns.
func (s *CaptureService) Records(ctx context.Context, claims *models.JWTClaims, sessionID string) ([]models.AttendanceRecordDetail, error) {
	if err := s.verifyOwnership(ctx, claims, sessionID); err != nil {
		return nil, err
	}
	records, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load records")
	}
	return records, nil
}

// Remove deletes a single attendance record from the caller's session.
func (s *CaptureService) Remove(ctx context.Context, claims *models.JWTClaims, recordID string) error {
	lecturerID := claims.UserID
	if claims.Role == models.RoleAdmin {
		lecturerID = ""
	}
	record, err := s.records.FindOwned(ctx, recordID, lecturerID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if record == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "record not found or access denied")
	}
	if err := s.records.Delete(ctx, recordID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete record")
	}
	s.invalidateStats(ctx, record.SessionID)
	s.writeAudit(ctx, claims, record.SessionID, map[string]interface{}{
		"action":     models.AuditActionAttendanceRemove,
		"student_id": record.StudentID,
	})
	return nil
}

func (s *CaptureService) activeOwnedSession(ctx context.Context, claims *models.JWTClaims, sessionID string) (*models.AttendanceSession, error) {
	if err := s.verifyOwnership(ctx, claims, sessionID); err != nil {
		return nil, err
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	if session.Status != models.SessionStatusActive {
		return nil, appErrors.Clone(appErrors.ErrSessionNotActive, "session is no longer active")
	}
	return session, nil
}

func (s *CaptureService) verifyOwnership(ctx context.Context, claims *models.JWTClaims, sessionID string) error {
	if claims.Role == models.RoleAdmin {
		return nil
	}
	owned, err := s.sessions.IsOwnedBy(ctx, sessionID, claims.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify session ownership")
	}
	if !owned {
		return appErrors.Clone(appErrors.ErrNotFound, "session not found or access denied")
	}
	return nil
}

func (s *CaptureService) invalidateStats(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, sessionStatsCacheKey(sessionID)); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *CaptureService) writeAudit(ctx context.Context, claims *models.JWTClaims, sessionID string, extra map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(extra)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionAttendanceRecord,
		Resource:   "attendance_record",
		ResourceID: &sessionID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to write audit log", zap.Error(err))
	}
}

// decodeImage strips an optional data URI prefix and decodes the base64
// payload, enforcing the configured size cap.
func decodeImage(encoded string, maxKB int) ([]byte, error) {
	if idx := strings.Index(encoded, ","); idx != -1 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image payload is empty")
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > maxKB*1024 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image payload exceeds the size limit")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image payload is not valid base64")
	}
	if len(raw) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image payload is empty")
	}
	return raw, nil
}

// normalizeOutcome maps raw recognizer output onto the API result shape.
// auto_mark is granted only on a full success; low confidence asks the
// operator to confirm instead.
func normalizeOutcome(outcome *recognizer.Outcome) *models.RecognitionResult {
	result := &models.RecognitionResult{
		Status:        models.RecognitionStatus(outcome.Status),
		Message:       outcome.Message,
		Confidence:    outcome.Confidence,
		Distance:      outcome.Distance,
		StudentName:   outcome.StudentName,
		StudentReg:    outcome.StudentReg,
		FacesDetected: outcome.FacesDetected,
		Timestamp:     time.Now().UTC(),
	}
	if outcome.StudentID != nil {
		id := outcome.StudentID.String()
		result.StudentID = &id
	}
	switch result.Status {
	case models.RecognitionSuccess:
		result.Recognized = true
		result.AutoMark = true
		if result.Message == "" {
			result.Message = "student recognised"
		}
	case models.RecognitionLowConfidence:
		result.Recognized = true
		result.RequiresConfirmation = true
		if result.Message == "" {
			result.Message = "low confidence match, confirmation required"
		}
	case models.RecognitionNoMatch:
		if result.Message == "" {
			result.Message = "no matching student found"
		}
	case models.RecognitionError:
		if result.Message == "" {
			result.Message = "face recognition failed"
		}
	default:
		result.Status = models.RecognitionError
		if result.Message == "" {
			result.Message = "unexpected recognizer response"
		}
	}
	switch {
	case result.Confidence >= confidenceHigh:
		result.ConfidenceLevel = "high"
	case result.Confidence >= confidenceMedium:
		result.ConfidenceLevel = "medium"
	default:
		result.ConfidenceLevel = "low"
	}
	return result
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/attendance-api/internal/models"
	"github.com/campushq/attendance-api/internal/repository"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
)

type sessionRepository interface {
	CreateActive(ctx context.Context, session *models.AttendanceSession) (*models.AttendanceSession, error)
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	FindDetail(ctx context.Context, id string) (*models.SessionDetail, error)
	ActiveForCourse(ctx context.Context, courseID string) (*models.AttendanceSession, error)
	ActiveForLecturer(ctx context.Context, lecturerID string) (*models.SessionDetail, error)
	IsOwnedBy(ctx context.Context, sessionID, lecturerID string) (bool, error)
	End(ctx context.Context, sessionID string, endedAt time.Time) (bool, error)
	Stats(ctx context.Context, sessionID string) (*models.SessionStats, error)
	StatusForCourse(ctx context.Context, courseID string) (*models.SessionDetail, error)
}

type courseAccessRepository interface {
	LecturerTeaches(ctx context.Context, courseID, lecturerID string) (bool, error)
	DepartmentForUser(ctx context.Context, userID string, role models.UserRole) (string, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SessionService owns the attendance-session lifecycle: create, end,
// force-end and live statistics. Sessions move active -> completed exactly
// once; creation is the only entry into active.
type SessionService struct {
	sessions  sessionRepository
	courses   courseAccessRepository
	audit     auditWriter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	statsTTL  time.Duration
}

// NewSessionService constructs the session service.
func NewSessionService(sessions sessionRepository, courses courseAccessRepository, audit auditWriter, cache *CacheService, validate *validator.Validate, logger *zap.Logger, statsTTL time.Duration) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if statsTTL <= 0 {
		statsTTL = time.Minute
	}
	return &SessionService{
		sessions:  sessions,
		courses:   courses,
		audit:     audit,
		cache:     cache,
		validator: validate,
		logger:    logger,
		statsTTL:  statsTTL,
	}
}

// CreateSessionRequest describes the start_session payload.
type CreateSessionRequest struct {
	DepartmentID string `json:"department_id" validate:"required"`
	OptionID     string `json:"option_id" validate:"required"`
	CourseID     string `json:"course_id" validate:"required"`
	Method       string `json:"biometric_method" validate:"required"`
	ForceNew     bool   `json:"force_new"`
}

// CreateSessionResult reports either the created session or the competing
// active session the caller may resume or replace.
type CreateSessionResult struct {
	Created  bool
	Session  *models.SessionDetail
	Existing *models.SessionDetail
}

// Create starts a new attendance session. When an active session already
// exists for the course it is returned unchanged unless ForceNew is set, in
// which case the prior session is ended first. Concurrent creates are
// arbitrated by the storage constraint: losing the race folds into the
// "existing session" path, so a second rapid call observes the first call's
// session instead of creating a duplicate.
func (s *SessionService) Create(ctx context.Context, claims *models.JWTClaims, req CreateSessionRequest) (*CreateSessionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	method := models.BiometricMethod(req.Method)
	if !method.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid biometric method")
	}

	if err := s.checkDepartmentAccess(ctx, claims, req.DepartmentID); err != nil {
		return nil, err
	}
	if claims.Role == models.RoleLecturer {
		teaches, err := s.courses.LecturerTeaches(ctx, req.CourseID, claims.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify course assignment")
		}
		if !teaches {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not have permission to create sessions for this course")
		}
	}

	existing, err := s.sessions.ActiveForCourse(ctx, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active sessions")
	}
	if existing != nil && !req.ForceNew {
		detail, err := s.sessions.FindDetail(ctx, existing.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing session")
		}
		return &CreateSessionResult{Existing: detail}, nil
	}
	if existing != nil && req.ForceNew {
		if _, err := s.sessions.End(ctx, existing.ID, time.Now().UTC()); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end existing session")
		}
		s.writeAudit(ctx, claims, models.AuditActionSessionEnd, existing.ID, map[string]interface{}{"reason": "force_new"})
	}

	session := &models.AttendanceSession{
		LecturerID:      claims.UserID,
		CourseID:        req.CourseID,
		OptionID:        req.OptionID,
		BiometricMethod: method,
	}
	stored, err := s.sessions.CreateActive(ctx, session)
	if err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			racing, lookupErr := s.sessions.ActiveForCourse(ctx, req.CourseID)
			if lookupErr == nil && racing != nil {
				detail, detailErr := s.sessions.FindDetail(ctx, racing.ID)
				if detailErr == nil {
					return &CreateSessionResult{Existing: detail}, nil
				}
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "an active session already exists for this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	s.writeAudit(ctx, claims, models.AuditActionSessionCreate, stored.ID, map[string]interface{}{
		"course_id": req.CourseID,
		"option_id": req.OptionID,
		"method":    string(method),
	})

	detail, err := s.sessions.FindDetail(ctx, stored.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return &CreateSessionResult{Created: true, Session: detail}, nil
}

// End completes the caller's session. Returns false when the session was
// already ended, which is a no-op rather than an error.
func (s *SessionService) End(ctx context.Context, claims *models.JWTClaims, sessionID string) (bool, error) {
	if err := s.verifyOwnership(ctx, claims, sessionID); err != nil {
		return false, err
	}
	ended, err := s.sessions.End(ctx, sessionID, time.Now().UTC())
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	if ended {
		s.writeAudit(ctx, claims, models.AuditActionSessionEnd, sessionID, nil)
		s.invalidateStats(ctx, sessionID)
	}
	return ended, nil
}

// ForceEnd completes any session regardless of ownership. Restricted to
// admins at the route layer; the override is always audit-logged.
func (s *SessionService) ForceEnd(ctx context.Context, claims *models.JWTClaims, sessionID string) (bool, error) {
	s.writeAudit(ctx, claims, models.AuditActionSessionForceEnd, sessionID, map[string]interface{}{
		"reason": "administrative action",
	})
	ended, err := s.sessions.End(ctx, sessionID, time.Now().UTC())
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to force end session")
	}
	if ended {
		s.invalidateStats(ctx, sessionID)
	}
	return ended, nil
}

// Stats returns live statistics for a session the caller may see. The value
// is cached briefly; the cache is invalidated whenever a record is written.
func (s *SessionService) Stats(ctx context.Context, claims *models.JWTClaims, sessionID string) (*models.SessionStats, error) {
	if err := s.verifyOwnership(ctx, claims, sessionID); err != nil {
		return nil, err
	}

	key := sessionStatsCacheKey(sessionID)
	var cached models.SessionStats
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	stats, err := s.sessions.Stats(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session statistics")
	}
	stats.AttendanceRate = AttendanceRate(stats.PresentCount, stats.TotalStudents)

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, stats, s.statsTTL)
	}
	return stats, nil
}

// ActiveForUser returns the caller's current active session, or nil.
func (s *SessionService) ActiveForUser(ctx context.Context, claims *models.JWTClaims) (*models.SessionDetail, error) {
	if claims.Role == models.RoleAdmin {
		return nil, nil
	}
	detail, err := s.sessions.ActiveForLecturer(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}
	return detail, nil
}

// StatusForCourse returns the latest session for a course, or nil when the
// course has never run one.
func (s *SessionService) StatusForCourse(ctx context.Context, courseID string) (*models.SessionDetail, error) {
	detail, err := s.sessions.StatusForCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session status")
	}
	return detail, nil
}

// Detail returns full session details the caller may see.
func (s *SessionService) Detail(ctx context.Context, claims *models.JWTClaims, sessionID string) (*models.SessionDetail, error) {
	if err := s.verifyOwnership(ctx, claims, sessionID); err != nil {
		return nil, err
	}
	detail, err := s.sessions.FindDetail(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return detail, nil
}

// InvalidateStats drops the cached statistics for a session.
func (s *SessionService) InvalidateStats(ctx context.Context, sessionID string) {
	s.invalidateStats(ctx, sessionID)
}

// verifyOwnership rejects callers that do not own the session. Admins
// bypass the check. The message stays generic so callers cannot probe for
// the existence of sessions they cannot access.
func (s *SessionService) verifyOwnership(ctx context.Context, claims *models.JWTClaims, sessionID string) error {
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

func (s *SessionService) checkDepartmentAccess(ctx context.Context, claims *models.JWTClaims, departmentID string) error {
	if claims.Role == models.RoleAdmin {
		return nil
	}
	own, err := s.courses.DepartmentForUser(ctx, claims.UserID, claims.Role)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve department")
	}
	if own == "" || own != departmentID {
		return appErrors.Clone(appErrors.ErrForbidden, "access denied to this department")
	}
	return nil
}

func (s *SessionService) writeAudit(ctx context.Context, claims *models.JWTClaims, action, sessionID string, extra map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(extra)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     action,
		Resource:   "attendance_session",
		ResourceID: &sessionID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *SessionService) invalidateStats(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, sessionStatsCacheKey(sessionID)); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func sessionStatsCacheKey(sessionID string) string {
	return fmt.Sprintf("session:stats:%s", sessionID)
}

// AttendanceRate computes present/total*100 rounded to one decimal place.
// Zero enrollment yields 0, never a division by zero.
func AttendanceRate(present, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(present)/float64(total)*1000) / 10
}

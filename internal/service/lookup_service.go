package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/attendance-api/internal/models"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
)

type catalogRepository interface {
	ListDepartments(ctx context.Context) ([]models.Department, error)
	FindDepartment(ctx context.Context, id string) (*models.Department, error)
	FindOption(ctx context.Context, id string) (*models.Option, error)
	ListOptions(ctx context.Context, departmentID string) ([]models.Option, error)
	ListCourses(ctx context.Context, departmentID, lecturerID string) ([]models.Course, error)
	FindCourse(ctx context.Context, id string) (*models.Course, error)
	DepartmentForUser(ctx context.Context, userID string, role models.UserRole) (string, error)
}

type lookupStudentRepository interface {
	ListActiveByOption(ctx context.Context, optionID string) ([]models.Student, error)
}

// LookupService serves the cascading selects that drive the capture UI:
// departments, their options, and the courses a lecturer may start a
// session for. Non-admin callers only see their own department.
type LookupService struct {
	catalog  catalogRepository
	students lookupStudentRepository
	cache    *CacheService
	logger   *zap.Logger
}

// NewLookupService constructs the lookup service.
func NewLookupService(catalog catalogRepository, students lookupStudentRepository, cache *CacheService, logger *zap.Logger) *LookupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LookupService{catalog: catalog, students: students, cache: cache, logger: logger}
}

const departmentsCacheKey = "lookup:departments"

// Departments lists the departments visible to the caller. The full list is
// cached; it changes on the order of semesters, not requests.
func (s *LookupService) Departments(ctx context.Context, claims *models.JWTClaims) ([]models.Department, error) {
	if claims.Role == models.RoleAdmin {
		var cached []models.Department
		if s.cache != nil {
			if hit, _ := s.cache.Get(ctx, departmentsCacheKey, &cached); hit {
				return cached, nil
			}
		}
		departments, err := s.catalog.ListDepartments(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load departments")
		}
		if s.cache != nil {
			_ = s.cache.Set(ctx, departmentsCacheKey, departments, 10*time.Minute)
		}
		return departments, nil
	}

	deptID, err := s.ownDepartment(ctx, claims)
	if err != nil {
		return nil, err
	}
	dept, err := s.catalog.FindDepartment(ctx, deptID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	if dept == nil {
		return []models.Department{}, nil
	}
	return []models.Department{*dept}, nil
}

// Options lists the active options of a department the caller can see.
func (s *LookupService) Options(ctx context.Context, claims *models.JWTClaims, departmentID string) ([]models.Option, error) {
	if departmentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "department is required")
	}
	if err := s.checkDepartment(ctx, claims, departmentID); err != nil {
		return nil, err
	}
	options, err := s.catalog.ListOptions(ctx, departmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load options")
	}
	return options, nil
}

// Courses lists courses in a department. Lecturers only see courses
// assigned to them.
func (s *LookupService) Courses(ctx context.Context, claims *models.JWTClaims, departmentID string) ([]models.Course, error) {
	if departmentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "department is required")
	}
	if err := s.checkDepartment(ctx, claims, departmentID); err != nil {
		return nil, err
	}
	lecturerID := ""
	if claims.Role == models.RoleLecturer {
		lecturerID = claims.UserID
	}
	courses, err := s.catalog.ListCourses(ctx, departmentID, lecturerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	return courses, nil
}

// Students lists the active students of an option, the expected roster for
// a capture session. The option's owning department is subject to the same
// clamp as the other lookups.
func (s *LookupService) Students(ctx context.Context, claims *models.JWTClaims, optionID string) ([]models.Student, error) {
	if optionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "option is required")
	}
	option, err := s.catalog.FindOption(ctx, optionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load option")
	}
	if option == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "option not found")
	}
	if err := s.checkDepartment(ctx, claims, option.DepartmentID); err != nil {
		return nil, err
	}
	students, err := s.students.ListActiveByOption(ctx, optionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	return students, nil
}

func (s *LookupService) checkDepartment(ctx context.Context, claims *models.JWTClaims, departmentID string) error {
	if claims.Role == models.RoleAdmin {
		return nil
	}
	own, err := s.ownDepartment(ctx, claims)
	if err != nil {
		return err
	}
	if own != departmentID {
		return appErrors.Clone(appErrors.ErrForbidden, "access denied to this department")
	}
	return nil
}

func (s *LookupService) ownDepartment(ctx context.Context, claims *models.JWTClaims) (string, error) {
	dept, err := s.catalog.DepartmentForUser(ctx, claims.UserID, claims.Role)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve department")
	}
	if dept == "" {
		return "", appErrors.Clone(appErrors.ErrForbidden, "no department assignment for this account")
	}
	return dept, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campushq/attendance-api/internal/models"
)

// CatalogRepository reads departments, options and courses.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListDepartments returns all departments ordered by name.
func (r *CatalogRepository) ListDepartments(ctx context.Context) ([]models.Department, error) {
	var rows []models.Department
	query := `SELECT id, name, hod_id FROM departments ORDER BY name`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return rows, nil
}

// FindDepartment returns one department by id.
func (r *CatalogRepository) FindDepartment(ctx context.Context, id string) (*models.Department, error) {
	var dept models.Department
	query := `SELECT id, name, hod_id FROM departments WHERE id = $1`
	err := r.db.GetContext(ctx, &dept, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find department %s: %w", id, err)
	}
	return &dept, nil
}

// FindOption returns one option by id, or nil when absent.
func (r *CatalogRepository) FindOption(ctx context.Context, id string) (*models.Option, error) {
	var option models.Option
	query := `SELECT id, department_id, name, status FROM options WHERE id = $1`
	err := r.db.GetContext(ctx, &option, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find option %s: %w", id, err)
	}
	return &option, nil
}

// ListOptions returns active options for a department ordered by name.
func (r *CatalogRepository) ListOptions(ctx context.Context, departmentID string) ([]models.Option, error) {
	var rows []models.Option
	query := `SELECT id, department_id, name, status FROM options
WHERE department_id = $1 AND status = 'active' ORDER BY name`
	if err := r.db.SelectContext(ctx, &rows, query, departmentID); err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	return rows, nil
}

// ListCourses returns active courses for a department. When lecturerID is
// non-empty only that lecturer's courses are returned.
func (r *CatalogRepository) ListCourses(ctx context.Context, departmentID, lecturerID string) ([]models.Course, error) {
	query := `SELECT c.id, c.department_id, c.lecturer_id, c.name, c.course_code, c.semester, c.status,
COALESCE(u.first_name || ' ' || u.last_name, 'Unassigned') AS lecturer_name
FROM courses c
LEFT JOIN users u ON u.id = c.lecturer_id
WHERE c.department_id = $1 AND c.status = 'active'`
	args := []interface{}{departmentID}
	if lecturerID != "" {
		query += ` AND c.lecturer_id = $2`
		args = append(args, lecturerID)
	}
	query += ` ORDER BY c.name LIMIT 500`
	var rows []models.Course
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return rows, nil
}

// FindCourse returns one course by id.
func (r *CatalogRepository) FindCourse(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	query := `SELECT id, department_id, lecturer_id, name, course_code, semester, status FROM courses WHERE id = $1`
	err := r.db.GetContext(ctx, &course, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find course %s: %w", id, err)
	}
	return &course, nil
}

// LecturerTeaches reports whether the lecturer is assigned to the course.
func (r *CatalogRepository) LecturerTeaches(ctx context.Context, courseID, lecturerID string) (bool, error) {
	query := `SELECT id FROM courses WHERE id = $1 AND lecturer_id = $2`
	var id string
	err := r.db.GetContext(ctx, &id, query, courseID, lecturerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("verify course assignment: %w", err)
	}
	return true, nil
}

// DepartmentForUser resolves the department scope of a caller: HODs map via
// departments.hod_id, lecturers via users.department_id. Admins have no
// department clamp and return empty.
func (r *CatalogRepository) DepartmentForUser(ctx context.Context, userID string, role models.UserRole) (string, error) {
	switch role {
	case models.RoleHOD:
		var id string
		err := r.db.GetContext(ctx, &id, `SELECT id FROM departments WHERE hod_id = $1`, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", nil
			}
			return "", fmt.Errorf("department for hod %s: %w", userID, err)
		}
		return id, nil
	case models.RoleLecturer:
		var id sql.NullString
		err := r.db.GetContext(ctx, &id, `SELECT department_id FROM users WHERE id = $1`, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", nil
			}
			return "", fmt.Errorf("department for lecturer %s: %w", userID, err)
		}
		return id.String, nil
	default:
		return "", nil
	}
}

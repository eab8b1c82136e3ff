package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/attendance-api/internal/models"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
)

type mockCatalog struct {
	departments []models.Department
	department  *models.Department
	option      *models.Option
	options     []models.Option
	courses     []models.Course
	ownDept     string
	listCalls   int
}

func (m *mockCatalog) ListDepartments(ctx context.Context) ([]models.Department, error) {
	m.listCalls++
	return m.departments, nil
}

func (m *mockCatalog) FindDepartment(ctx context.Context, id string) (*models.Department, error) {
	return m.department, nil
}

func (m *mockCatalog) FindOption(ctx context.Context, id string) (*models.Option, error) {
	return m.option, nil
}

func (m *mockCatalog) ListOptions(ctx context.Context, departmentID string) ([]models.Option, error) {
	return m.options, nil
}

func (m *mockCatalog) ListCourses(ctx context.Context, departmentID, lecturerID string) ([]models.Course, error) {
	return m.courses, nil
}

func (m *mockCatalog) FindCourse(ctx context.Context, id string) (*models.Course, error) {
	return nil, nil
}

func (m *mockCatalog) DepartmentForUser(ctx context.Context, userID string, role models.UserRole) (string, error) {
	return m.ownDept, nil
}

type mockLookupStudents struct {
	students []models.Student
	calls    int
}

func (m *mockLookupStudents) ListActiveByOption(ctx context.Context, optionID string) ([]models.Student, error) {
	m.calls++
	return m.students, nil
}

func TestLookupStudentsOwnDepartment(t *testing.T) {
	catalog := &mockCatalog{
		option:  &models.Option{ID: "opt-1", DepartmentID: "dept-1"},
		ownDept: "dept-1",
	}
	roster := &mockLookupStudents{students: reportStudents()}
	svc := NewLookupService(catalog, roster, nil, nil)

	students, err := svc.Students(context.Background(), lecturerClaims(), "opt-1")
	require.NoError(t, err)
	assert.Len(t, students, 3)
}

func TestLookupStudentsClampedToDepartment(t *testing.T) {
	catalog := &mockCatalog{
		option:  &models.Option{ID: "opt-9", DepartmentID: "dept-2"},
		ownDept: "dept-1",
	}
	roster := &mockLookupStudents{students: reportStudents()}
	svc := NewLookupService(catalog, roster, nil, nil)

	_, err := svc.Students(context.Background(), lecturerClaims(), "opt-9")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Zero(t, roster.calls, "roster must not be read for a foreign department")
}

func TestLookupStudentsAdminUnclamped(t *testing.T) {
	catalog := &mockCatalog{option: &models.Option{ID: "opt-9", DepartmentID: "dept-2"}}
	roster := &mockLookupStudents{students: reportStudents()}
	svc := NewLookupService(catalog, roster, nil, nil)

	students, err := svc.Students(context.Background(), adminClaims(), "opt-9")
	require.NoError(t, err)
	assert.Len(t, students, 3)
}

func TestLookupStudentsUnknownOption(t *testing.T) {
	svc := NewLookupService(&mockCatalog{ownDept: "dept-1"}, &mockLookupStudents{}, nil, nil)

	_, err := svc.Students(context.Background(), lecturerClaims(), "opt-missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestLookupDepartmentsCachedForAdmin(t *testing.T) {
	catalog := &mockCatalog{departments: []models.Department{{ID: "dept-1", Name: "Computer Science"}}}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	svc := NewLookupService(catalog, &mockLookupStudents{}, cache, nil)

	first, err := svc.Departments(context.Background(), adminClaims())
	require.NoError(t, err)
	second, err := svc.Departments(context.Background(), adminClaims())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, catalog.listCalls, "second read must come from cache")
}

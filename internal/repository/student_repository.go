package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campushq/attendance-api/internal/models"
)

// StudentRepository reads student rosters.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns one student by id.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	query := `SELECT id, user_id, reg_no, first_name, last_name, option_id, year_level, status, created_at
FROM students WHERE id = $1`
	err := r.db.GetContext(ctx, &student, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find student %s: %w", id, err)
	}
	return &student, nil
}

// CountActiveByOption counts active students enrolled in an option.
func (r *StudentRepository) CountActiveByOption(ctx context.Context, optionID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM students WHERE option_id = $1 AND status = 'active'`
	if err := r.db.GetContext(ctx, &count, query, optionID); err != nil {
		return 0, fmt.Errorf("count students for option %s: %w", optionID, err)
	}
	return count, nil
}

// ListActiveByOption returns active students in an option ordered by name.
func (r *StudentRepository) ListActiveByOption(ctx context.Context, optionID string) ([]models.Student, error) {
	var rows []models.Student
	query := `SELECT id, user_id, reg_no, first_name, last_name, option_id, year_level, status, created_at
FROM students WHERE option_id = $1 AND status = 'active'
ORDER BY first_name, last_name`
	if err := r.db.SelectContext(ctx, &rows, query, optionID); err != nil {
		return nil, fmt.Errorf("list students for option %s: %w", optionID, err)
	}
	return rows, nil
}

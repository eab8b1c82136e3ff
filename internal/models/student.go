package models

import "time"

// StudentStatus enumerates enrollment states.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "active"
	StudentStatusSuspended StudentStatus = "suspended"
	StudentStatusGraduated StudentStatus = "graduated"
)

// Student links a user account to an option and year level.
type Student struct {
	ID        string        `db:"id" json:"id"`
	UserID    *string       `db:"user_id" json:"user_id,omitempty"`
	RegNo     string        `db:"reg_no" json:"reg_no"`
	FirstName string        `db:"first_name" json:"first_name"`
	LastName  string        `db:"last_name" json:"last_name"`
	OptionID  string        `db:"option_id" json:"option_id"`
	YearLevel string        `db:"year_level" json:"year_level"`
	Status    StudentStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// FullName joins the student's name parts for display.
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

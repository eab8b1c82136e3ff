package models

// Department groups options and courses under one academic unit.
type Department struct {
	ID    string  `db:"id" json:"id"`
	Name  string  `db:"name" json:"name"`
	HODID *string `db:"hod_id" json:"hod_id,omitempty"`
}

// Option is a programme within a department that students enroll in.
type Option struct {
	ID           string `db:"id" json:"id"`
	DepartmentID string `db:"department_id" json:"department_id"`
	Name         string `db:"name" json:"name"`
	Status       string `db:"status" json:"status"`
}

// Course is a taught unit owned by one lecturer.
type Course struct {
	ID           string  `db:"id" json:"id"`
	DepartmentID string  `db:"department_id" json:"department_id"`
	LecturerID   *string `db:"lecturer_id" json:"lecturer_id,omitempty"`
	Name         string  `db:"name" json:"name"`
	CourseCode   string  `db:"course_code" json:"course_code"`
	Semester     int     `db:"semester" json:"semester"`
	Status       string  `db:"status" json:"status"`
	LecturerName *string `db:"lecturer_name" json:"lecturer_name,omitempty"`
}

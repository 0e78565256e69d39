package models

import "time"

// Module represents a teaching unit inside a course. A module belongs to both
// a course and a department; the two must agree.
type Module struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Code             string    `db:"code" json:"code"`
	CourseID         string    `db:"course_id" json:"course_id"`
	DepartmentID     string    `db:"department_id" json:"department_id"`
	Credits          int       `db:"credits" json:"credits"`
	Semester         int       `db:"semester" json:"semester"`
	ExamWeight       float64   `db:"exam_weight" json:"exam_weight"`
	CourseworkWeight float64   `db:"coursework_weight" json:"coursework_weight"`
	PracticalWeight  float64   `db:"practical_weight" json:"practical_weight"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`

	// Prerequisites holds ids of modules that must be passed first.
	// Stored in module_prerequisites, loaded separately.
	Prerequisites []string `db:"-" json:"prerequisites,omitempty"`
}

// ModuleFilter captures filtering criteria for listing modules.
type ModuleFilter struct {
	CourseID     string
	DepartmentID string
	Semester     *int
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

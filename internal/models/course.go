package models

import "time"

// Course represents a programme of study offered by a department.
type Course struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Code           string    `db:"code" json:"code"`
	DepartmentID   string    `db:"department_id" json:"department_id"`
	DurationMonths int       `db:"duration_months" json:"duration_months"`
	Fee            float64   `db:"fee" json:"fee"`
	StartDate      time.Time `db:"start_date" json:"start_date"`
	EndDate        time.Time `db:"end_date" json:"end_date"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with its department name for read endpoints.
type CourseDetail struct {
	Course
	DepartmentName string `db:"department_name" json:"department_name"`
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	DepartmentID string
	Search       string
	Active       *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

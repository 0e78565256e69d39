package models

import "time"

// StudentStatus tracks a student's standing in the institution.
type StudentStatus string

// Possible student statuses.
const (
	StudentStatusActive    StudentStatus = "active"
	StudentStatusGraduated StudentStatus = "graduated"
	StudentStatusOnLeave   StudentStatus = "on_leave"
	StudentStatusInactive  StudentStatus = "inactive"
)

// Student represents a learner registered in the institution.
type Student struct {
	ID           string        `db:"id" json:"id"`
	FullName     string        `db:"full_name" json:"full_name"`
	Email        string        `db:"email" json:"email"`
	RollNumber   string        `db:"roll_number" json:"roll_number"`
	DepartmentID string        `db:"department_id" json:"department_id"`
	CourseID     string        `db:"course_id" json:"course_id"`
	Year         int           `db:"year" json:"year"`
	Semester     int           `db:"semester" json:"semester"`
	Status       StudentStatus `db:"status" json:"status"`
	UserID       *string       `db:"user_id" json:"user_id,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentDetail enriches Student with department and course names.
type StudentDetail struct {
	Student
	DepartmentName string `db:"department_name" json:"department_name"`
	CourseName     string `db:"course_name" json:"course_name"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search       string
	DepartmentID string
	CourseID     string
	Status       StudentStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

package models

import "time"

// EnrollmentStatus represents the nominal lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Dropping an enrollment deletes the row, so
// EnrollmentStatusDropped is never persisted by the current flows.
const (
	EnrollmentStatusEnrolled EnrollmentStatus = "enrolled"
	EnrollmentStatusDropped  EnrollmentStatus = "dropped"
)

// Enrollment links a user to a course. At most one row exists per
// (user, course) pair; the unique index is the authoritative guard.
type Enrollment struct {
	ID       string           `db:"id" json:"id"`
	UserID   string           `db:"user_id" json:"user_id"`
	CourseID string           `db:"course_id" json:"course_id"`
	Status   EnrollmentStatus `db:"status" json:"status"`
	JoinedAt time.Time        `db:"joined_at" json:"joined_at"`
}

// EnrollmentDetail enriches Enrollment with course info.
type EnrollmentDetail struct {
	Enrollment
	CourseName     string `db:"course_name" json:"course_name"`
	CourseCode     string `db:"course_code" json:"course_code"`
	DepartmentName string `db:"department_name" json:"department_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	UserID    string
	CourseID  string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

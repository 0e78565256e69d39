package models

// CatalogSemester groups the modules taught in one semester of a course.
// Semester 0 collects modules without a usable semester value.
type CatalogSemester struct {
	Semester int      `json:"semester"`
	Modules  []Module `json:"modules"`
}

// CatalogCourse is a course annotated with its modules grouped per semester.
type CatalogCourse struct {
	Course
	Semesters []CatalogSemester `json:"semesters"`
}

// CatalogDepartment is the top level of the aggregated catalog view.
type CatalogDepartment struct {
	Department
	Courses []CatalogCourse `json:"courses"`
}

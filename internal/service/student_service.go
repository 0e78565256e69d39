package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusworks/registry-api/internal/models"
	"github.com/campusworks/registry-api/pkg/database"
	appErrors "github.com/campusworks/registry-api/pkg/errors"
	"github.com/campusworks/registry-api/pkg/export"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	ListAll(ctx context.Context) ([]models.StudentDetail, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	ExistsByRollNumber(ctx context.Context, rollNumber string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type studentDepartmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
}

type studentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type studentUserRepository interface {
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
}

// CreateStudentRequest carries fields for registering a student.
type CreateStudentRequest struct {
	FullName     string               `json:"full_name" validate:"required"`
	Email        string               `json:"email" validate:"required,email"`
	RollNumber   string               `json:"roll_number" validate:"required"`
	DepartmentID string               `json:"department_id" validate:"required"`
	CourseID     string               `json:"course_id" validate:"required"`
	Year         int                  `json:"year" validate:"required,min=1"`
	Semester     int                  `json:"semester" validate:"required,min=1,max=12"`
	Status       models.StudentStatus `json:"status" validate:"omitempty,oneof=active graduated on_leave inactive"`
}

// UpdateStudentRequest carries fields for modifying a student.
type UpdateStudentRequest struct {
	FullName     string               `json:"full_name" validate:"required"`
	Email        string               `json:"email" validate:"required,email"`
	RollNumber   string               `json:"roll_number" validate:"required"`
	DepartmentID string               `json:"department_id" validate:"required"`
	CourseID     string               `json:"course_id" validate:"required"`
	Year         int                  `json:"year" validate:"required,min=1"`
	Semester     int                  `json:"semester" validate:"required,min=1,max=12"`
	Status       models.StudentStatus `json:"status" validate:"omitempty,oneof=active graduated on_leave inactive"`
}

// CreateStudentLoginRequest carries the password for a student's login account.
type CreateStudentLoginRequest struct {
	Password string `json:"password" validate:"required,min=6"`
}

// StudentService manages student records and their optional login accounts.
type StudentService struct {
	repo        studentRepository
	departments studentDepartmentRepository
	courses     studentCourseRepository
	users       studentUserRepository
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService creates a new student service.
func NewStudentService(repo studentRepository, departments studentDepartmentRepository, courses studentCourseRepository, users studentUserRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:        repo,
		departments: departments,
		courses:     courses,
		users:       users,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		validator:   validate,
		logger:      logger,
	}
}

// List returns students matching the filter with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns a student by identifier.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a student after uniqueness and reference checks.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.RollNumber = strings.ToUpper(strings.TrimSpace(req.RollNumber))

	if err := s.checkReferences(ctx, req.DepartmentID, req.CourseID); err != nil {
		return nil, err
	}
	if err := s.checkUniqueness(ctx, req.Email, req.RollNumber, ""); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = models.StudentStatusActive
	}

	student := &models.Student{
		FullName:     strings.TrimSpace(req.FullName),
		Email:        req.Email,
		RollNumber:   req.RollNumber,
		DepartmentID: req.DepartmentID,
		CourseID:     req.CourseID,
		Year:         req.Year,
		Semester:     req.Semester,
		Status:       status,
	}

	if err := s.repo.Create(ctx, student); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateKey, studentDuplicateMessage(err))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.logger.Info("student created", zap.String("student_id", student.ID), zap.String("roll_number", student.RollNumber))
	return student, nil
}

// Update modifies a student with the same checks as Create.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.RollNumber = strings.ToUpper(strings.TrimSpace(req.RollNumber))

	if err := s.checkReferences(ctx, req.DepartmentID, req.CourseID); err != nil {
		return nil, err
	}
	if err := s.checkUniqueness(ctx, req.Email, req.RollNumber, id); err != nil {
		return nil, err
	}

	student.FullName = strings.TrimSpace(req.FullName)
	student.Email = req.Email
	student.RollNumber = req.RollNumber
	student.DepartmentID = req.DepartmentID
	student.CourseID = req.CourseID
	student.Year = req.Year
	student.Semester = req.Semester
	if req.Status != "" {
		student.Status = req.Status
	}

	if err := s.repo.Update(ctx, student); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateKey, studentDuplicateMessage(err))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	return student, nil
}

// Delete removes a student record.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

// CreateLogin provisions a STUDENT user for the record and links it. A student
// can hold at most one login.
func (s *StudentService) CreateLogin(ctx context.Context, studentID string, req CreateStudentLoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.UserID != nil && *student.UserID != "" {
		return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "student already has a login")
	}

	exists, err := s.users.ExistsByEmail(ctx, student.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check user email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "a user with this email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        student.Email,
		PasswordHash: string(hash),
		FullName:     student.FullName,
		Role:         models.RoleStudent,
		Active:       true,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "a user with this email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	student.UserID = &user.ID
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link login to student")
	}

	s.logger.Info("student login created", zap.String("student_id", student.ID), zap.String("user_id", user.ID))
	return user, nil
}

var rosterHeaders = []string{"Roll Number", "Full Name", "Email", "Department", "Course", "Year", "Semester", "Status"}

// Export renders the full roster as CSV or PDF, returning the payload with
// its content type and suggested filename.
func (s *StudentService) Export(ctx context.Context, format string) ([]byte, string, string, error) {
	students, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}

	dataset := export.Dataset{Headers: rosterHeaders, Rows: make([]map[string]string, 0, len(students))}
	for _, student := range students {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Roll Number": student.RollNumber,
			"Full Name":   student.FullName,
			"Email":       student.Email,
			"Department":  student.DepartmentName,
			"Course":      student.CourseName,
			"Year":        fmt.Sprintf("%d", student.Year),
			"Semester":    fmt.Sprintf("%d", student.Semester),
			"Status":      string(student.Status),
		})
	}

	stamp := time.Now().UTC().Format("20060102")
	switch strings.ToLower(format) {
	case "", "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", fmt.Sprintf("students_%s.csv", stamp), nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, "Student Roster")
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", fmt.Sprintf("students_%s.pdf", stamp), nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

// studentDuplicateMessage names the column behind a unique-index rejection so
// the caller learns which field collided.
func studentDuplicateMessage(err error) string {
	switch database.UniqueConstraint(err) {
	case "students_email_key":
		return "student email already exists"
	case "students_roll_number_key":
		return "roll number already exists"
	default:
		return "student email or roll number already exists"
	}
}

func (s *StudentService) checkReferences(ctx context.Context, departmentID, courseID string) error {
	if _, err := s.departments.FindByID(ctx, departmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrMissingReference, "department does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrMissingReference, "course does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return nil
}

func (s *StudentService) checkUniqueness(ctx context.Context, email, rollNumber, excludeID string) error {
	exists, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student email")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrDuplicateKey, "student email already exists")
	}

	exists, err = s.repo.ExistsByRollNumber(ctx, rollNumber, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check roll number")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrDuplicateKey, "roll number already exists")
	}
	return nil
}

package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusworks/registry-api/internal/models"
	appErrors "github.com/campusworks/registry-api/pkg/errors"
)

type mockStudentRepo struct {
	students   map[string]models.Student
	details    []models.StudentDetail
	emails     map[string]string
	rolls      map[string]string
	deleted    []string
	lastUpdate *models.Student
	createErr  error
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{
		students: map[string]models.Student{},
		emails:   map[string]string{},
		rolls:    map[string]string{},
	}
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	return m.details, len(m.details), nil
}

func (m *mockStudentRepo) ListAll(ctx context.Context) ([]models.StudentDetail, error) {
	return m.details, nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *mockStudentRepo) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	owner, ok := m.emails[email]
	return ok && owner != excludeID, nil
}

func (m *mockStudentRepo) ExistsByRollNumber(ctx context.Context, rollNumber string, excludeID string) (bool, error) {
	owner, ok := m.rolls[rollNumber]
	return ok && owner != excludeID, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.createErr != nil {
		return m.createErr
	}
	student.ID = "stu-new"
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	m.lastUpdate = student
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	delete(m.students, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockStudentUsers struct {
	emails  map[string]string
	created *models.User
}

func (m *mockStudentUsers) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	_, ok := m.emails[email]
	return ok, nil
}

func (m *mockStudentUsers) Create(ctx context.Context, user *models.User) error {
	user.ID = "user-new"
	m.created = user
	return nil
}

func newStudentServiceFixture() (*mockStudentRepo, *mockStudentUsers, *StudentService) {
	repo := newMockStudentRepo()
	users := &mockStudentUsers{emails: map[string]string{}}
	departments := &mockStudentDepartments{departments: map[string]models.Department{"dep-1": {ID: "dep-1"}}}
	courses := &mockStudentCourses{courses: map[string]models.Course{"course-1": {ID: "course-1", DepartmentID: "dep-1"}}}
	svc := NewStudentService(repo, departments, courses, users, validator.New(), zap.NewNop())
	return repo, users, svc
}

type mockStudentDepartments struct {
	departments map[string]models.Department
}

func (m *mockStudentDepartments) FindByID(ctx context.Context, id string) (*models.Department, error) {
	d, ok := m.departments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

type mockStudentCourses struct {
	courses map[string]models.Course
}

func (m *mockStudentCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func TestStudentServiceCreateNamesViolatedUniqueIndex(t *testing.T) {
	repo, _, svc := newStudentServiceFixture()
	repo.createErr = &pq.Error{Code: "23505", Constraint: "students_roll_number_key"}

	_, err := svc.Create(context.Background(), validStudentRequest())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrDuplicateKey.Code, appErr.Code)
	assert.Equal(t, "roll number already exists", appErr.Message)
}

func validStudentRequest() CreateStudentRequest {
	return CreateStudentRequest{
		FullName:     "Ada Lovelace",
		Email:        "Ada.Lovelace@Example.COM",
		RollNumber:   "cs-2026-001",
		DepartmentID: "dep-1",
		CourseID:     "course-1",
		Year:         1,
		Semester:     1,
	}
}

func TestStudentServiceCreateNormalizes(t *testing.T) {
	_, _, svc := newStudentServiceFixture()

	student, err := svc.Create(context.Background(), validStudentRequest())
	require.NoError(t, err)
	assert.Equal(t, "ada.lovelace@example.com", student.Email)
	assert.Equal(t, "CS-2026-001", student.RollNumber)
	assert.Equal(t, models.StudentStatusActive, student.Status)
}

func TestStudentServiceCreateDuplicateEmail(t *testing.T) {
	repo, _, svc := newStudentServiceFixture()
	repo.emails["ada.lovelace@example.com"] = "stu-1"

	_, err := svc.Create(context.Background(), validStudentRequest())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrDuplicateKey.Code, appErr.Code)
}

func TestStudentServiceCreateMissingDepartment(t *testing.T) {
	_, _, svc := newStudentServiceFixture()

	req := validStudentRequest()
	req.DepartmentID = "ghost"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrMissingReference.Code, appErr.Code)
}

func TestStudentServiceCreateInvalidStatus(t *testing.T) {
	_, _, svc := newStudentServiceFixture()

	req := validStudentRequest()
	req.Status = "expelled"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestStudentServiceCreateLogin(t *testing.T) {
	repo, users, svc := newStudentServiceFixture()
	repo.students["stu-1"] = models.Student{ID: "stu-1", FullName: "Ada Lovelace", Email: "ada@example.com"}

	user, err := svc.CreateLogin(context.Background(), "stu-1", CreateStudentLoginRequest{Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))

	require.NotNil(t, repo.lastUpdate)
	require.NotNil(t, repo.lastUpdate.UserID)
	assert.Equal(t, users.created.ID, *repo.lastUpdate.UserID)
}

func TestStudentServiceCreateLoginAlreadyLinked(t *testing.T) {
	repo, _, svc := newStudentServiceFixture()
	existing := "user-1"
	repo.students["stu-1"] = models.Student{ID: "stu-1", Email: "ada@example.com", UserID: &existing}

	_, err := svc.CreateLogin(context.Background(), "stu-1", CreateStudentLoginRequest{Password: "secret1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrDuplicateKey.Code, appErr.Code)
}

func TestStudentServiceExportCSV(t *testing.T) {
	repo, _, svc := newStudentServiceFixture()
	repo.details = []models.StudentDetail{
		{
			Student:        models.Student{RollNumber: "CS-2026-001", FullName: "Ada Lovelace", Email: "ada@example.com", Year: 1, Semester: 1, Status: models.StudentStatusActive},
			DepartmentName: "Computing",
			CourseName:     "CS",
		},
	}

	payload, contentType, filename, err := svc.Export(context.Background(), "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.True(t, strings.HasPrefix(filename, "students_"))
	assert.True(t, strings.HasSuffix(filename, ".csv"))

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(rosterHeaders, ","), strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "CS-2026-001")
	assert.Contains(t, lines[1], "Computing")
}

func TestStudentServiceExportUnsupportedFormat(t *testing.T) {
	_, _, svc := newStudentServiceFixture()

	_, _, _, err := svc.Export(context.Background(), "xlsx")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusworks/registry-api/internal/models"
	appErrors "github.com/campusworks/registry-api/pkg/errors"
)

type mockDepartmentRepo struct {
	departments map[string]models.Department
	namesTaken  map[string]string
	codesTaken  map[string]string
	deleted     []string
	createErr   error
}

func newMockDepartmentRepo() *mockDepartmentRepo {
	return &mockDepartmentRepo{
		departments: map[string]models.Department{},
		namesTaken:  map[string]string{},
		codesTaken:  map[string]string{},
	}
}

func (m *mockDepartmentRepo) List(ctx context.Context, filter models.DepartmentFilter) ([]models.Department, int, error) {
	var out []models.Department
	for _, d := range m.departments {
		out = append(out, d)
	}
	return out, len(out), nil
}

func (m *mockDepartmentRepo) FindByID(ctx context.Context, id string) (*models.Department, error) {
	d, ok := m.departments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (m *mockDepartmentRepo) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	owner, ok := m.namesTaken[name]
	return ok && owner != excludeID, nil
}

func (m *mockDepartmentRepo) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	owner, ok := m.codesTaken[code]
	return ok && owner != excludeID, nil
}

func (m *mockDepartmentRepo) Create(ctx context.Context, department *models.Department) error {
	if m.createErr != nil {
		return m.createErr
	}
	department.ID = "dep-new"
	m.departments[department.ID] = *department
	return nil
}

func (m *mockDepartmentRepo) Update(ctx context.Context, department *models.Department) error {
	m.departments[department.ID] = *department
	return nil
}

func (m *mockDepartmentRepo) Delete(ctx context.Context, id string) error {
	delete(m.departments, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockDepartmentCourses struct {
	cascaded []string
	removed  int64
}

func (m *mockDepartmentCourses) DeleteByDepartment(ctx context.Context, departmentID string) (int64, error) {
	m.cascaded = append(m.cascaded, departmentID)
	return m.removed, nil
}

func TestDepartmentServiceCreate(t *testing.T) {
	repo := newMockDepartmentRepo()
	svc := NewDepartmentService(repo, &mockDepartmentCourses{}, nil, validator.New(), zap.NewNop())

	department, err := svc.Create(context.Background(), CreateDepartmentRequest{Name: " Computing ", Code: "cs"})
	require.NoError(t, err)
	assert.Equal(t, "Computing", department.Name)
	assert.Equal(t, "CS", department.Code)
	assert.True(t, department.Active)
}

func TestDepartmentServiceCreateDuplicateName(t *testing.T) {
	repo := newMockDepartmentRepo()
	repo.namesTaken["Computing"] = "dep-1"
	svc := NewDepartmentService(repo, &mockDepartmentCourses{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateDepartmentRequest{Name: "Computing", Code: "CS"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrDuplicateKey.Code, appErr.Code)
}

func TestDepartmentServiceCreateNamesViolatedUniqueIndex(t *testing.T) {
	repo := newMockDepartmentRepo()
	repo.createErr = &pq.Error{Code: "23505", Constraint: "departments_code_key"}
	svc := NewDepartmentService(repo, &mockDepartmentCourses{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateDepartmentRequest{Name: "Computing", Code: "CS"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrDuplicateKey.Code, appErr.Code)
	assert.Equal(t, "department code already exists", appErr.Message)
}

func TestDepartmentServiceCreateDuplicateCode(t *testing.T) {
	repo := newMockDepartmentRepo()
	repo.codesTaken["CS"] = "dep-1"
	svc := NewDepartmentService(repo, &mockDepartmentCourses{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateDepartmentRequest{Name: "Computing", Code: "cs"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrDuplicateKey.Code, appErr.Code)
}

func TestDepartmentServiceUpdateKeepsOwnCode(t *testing.T) {
	repo := newMockDepartmentRepo()
	repo.departments["dep-1"] = models.Department{ID: "dep-1", Name: "Computing", Code: "CS", Active: true}
	repo.namesTaken["Computing"] = "dep-1"
	repo.codesTaken["CS"] = "dep-1"
	svc := NewDepartmentService(repo, &mockDepartmentCourses{}, nil, validator.New(), zap.NewNop())

	updated, err := svc.Update(context.Background(), "dep-1", UpdateDepartmentRequest{Name: "Computing", Code: "CS", Description: "updated"})
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Description)
}

func TestDepartmentServiceDeleteCascadesCourses(t *testing.T) {
	repo := newMockDepartmentRepo()
	repo.departments["dep-1"] = models.Department{ID: "dep-1", Name: "Computing", Code: "CS"}
	courses := &mockDepartmentCourses{removed: 2}
	svc := NewDepartmentService(repo, courses, nil, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "dep-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"dep-1"}, courses.cascaded)
	assert.Equal(t, []string{"dep-1"}, repo.deleted)
}

func TestDepartmentServiceDeleteNotFound(t *testing.T) {
	svc := NewDepartmentService(newMockDepartmentRepo(), &mockDepartmentCourses{}, nil, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

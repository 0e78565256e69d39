package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusworks/registry-api/internal/models"
	appErrors "github.com/campusworks/registry-api/pkg/errors"
)

type mockModuleRepo struct {
	modules    map[string]models.Module
	codesTaken map[string]string
	dependents map[string]int
	deleted    []string
}

func newMockModuleRepo() *mockModuleRepo {
	return &mockModuleRepo{
		modules:    map[string]models.Module{},
		codesTaken: map[string]string{},
		dependents: map[string]int{},
	}
}

func (m *mockModuleRepo) List(ctx context.Context, filter models.ModuleFilter) ([]models.Module, int, error) {
	return nil, 0, nil
}

func (m *mockModuleRepo) FindByID(ctx context.Context, id string) (*models.Module, error) {
	mod, ok := m.modules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &mod, nil
}

func (m *mockModuleRepo) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	owner, ok := m.codesTaken[code]
	return ok && owner != excludeID, nil
}

func (m *mockModuleRepo) Create(ctx context.Context, module *models.Module) error {
	module.ID = "module-new"
	m.modules[module.ID] = *module
	return nil
}

func (m *mockModuleRepo) Update(ctx context.Context, module *models.Module) error {
	m.modules[module.ID] = *module
	return nil
}

func (m *mockModuleRepo) Delete(ctx context.Context, id string) error {
	delete(m.modules, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockModuleRepo) CountDependents(ctx context.Context, id string) (int, error) {
	return m.dependents[id], nil
}

func (m *mockModuleRepo) ValidateIDs(ctx context.Context, moduleIDs []string) (map[string]bool, error) {
	existing := map[string]bool{}
	for _, id := range moduleIDs {
		if _, ok := m.modules[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

type mockModuleCourses struct {
	courses map[string]models.Course
}

func (m *mockModuleCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

type mockModuleDepartments struct {
	departments map[string]models.Department
}

func (m *mockModuleDepartments) FindByID(ctx context.Context, id string) (*models.Department, error) {
	d, ok := m.departments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func newModuleServiceFixture() (*mockModuleRepo, *ModuleService) {
	repo := newMockModuleRepo()
	courses := &mockModuleCourses{courses: map[string]models.Course{
		"course-1": {ID: "course-1", DepartmentID: "dep-1"},
	}}
	departments := &mockModuleDepartments{departments: map[string]models.Department{
		"dep-1": {ID: "dep-1"},
		"dep-2": {ID: "dep-2"},
	}}
	svc := NewModuleService(repo, courses, departments, nil, validator.New(), zap.NewNop())
	return repo, svc
}

func validModuleRequest() CreateModuleRequest {
	return CreateModuleRequest{
		Name:             "Algorithms",
		Code:             "cs-201",
		CourseID:         "course-1",
		DepartmentID:     "dep-1",
		Credits:          10,
		Semester:         3,
		ExamWeight:       60,
		CourseworkWeight: 30,
		PracticalWeight:  10,
	}
}

func TestModuleServiceCreate(t *testing.T) {
	_, svc := newModuleServiceFixture()

	module, err := svc.Create(context.Background(), validModuleRequest())
	require.NoError(t, err)
	assert.Equal(t, "CS-201", module.Code)
}

func TestModuleServiceCreateWeightsMustSum(t *testing.T) {
	_, svc := newModuleServiceFixture()

	req := validModuleRequest()
	req.PracticalWeight = 20
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestModuleServiceCreateWeightsWithinTolerance(t *testing.T) {
	_, svc := newModuleServiceFixture()

	req := validModuleRequest()
	req.ExamWeight = 33.33
	req.CourseworkWeight = 33.33
	req.PracticalWeight = 33.34
	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
}

func TestModuleServiceCreateDepartmentMismatch(t *testing.T) {
	_, svc := newModuleServiceFixture()

	req := validModuleRequest()
	req.DepartmentID = "dep-2"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrReferenceMismatch.Code, appErr.Code)
}

func TestModuleServiceCreateMissingCourse(t *testing.T) {
	_, svc := newModuleServiceFixture()

	req := validModuleRequest()
	req.CourseID = "missing"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrMissingReference.Code, appErr.Code)
}

func TestModuleServiceCreateMissingPrerequisite(t *testing.T) {
	_, svc := newModuleServiceFixture()

	req := validModuleRequest()
	req.Prerequisites = []string{"ghost"}
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrMissingReference.Code, appErr.Code)
}

func TestModuleServiceCreateDuplicatePrerequisites(t *testing.T) {
	repo, svc := newModuleServiceFixture()
	repo.modules["m1"] = models.Module{ID: "m1"}

	req := validModuleRequest()
	req.Prerequisites = []string{"m1", "m1"}
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestModuleServiceUpdateSelfPrerequisite(t *testing.T) {
	repo, svc := newModuleServiceFixture()
	repo.modules["m1"] = models.Module{ID: "m1", Code: "CS-201", CourseID: "course-1", DepartmentID: "dep-1"}

	req := UpdateModuleRequest(validModuleRequest())
	req.Prerequisites = []string{"m1"}
	_, err := svc.Update(context.Background(), "m1", req)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestModuleServiceDeleteBlockedByDependents(t *testing.T) {
	repo, svc := newModuleServiceFixture()
	repo.modules["m1"] = models.Module{ID: "m1", Code: "CS-201"}
	repo.dependents["m1"] = 1

	err := svc.Delete(context.Background(), "m1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrHasDependents.Code, appErr.Code)
	assert.Empty(t, repo.deleted)
}

func TestModuleServiceDelete(t *testing.T) {
	repo, svc := newModuleServiceFixture()
	repo.modules["m1"] = models.Module{ID: "m1", Code: "CS-201"}

	err := svc.Delete(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, repo.deleted)
}

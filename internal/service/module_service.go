package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusworks/registry-api/internal/models"
	"github.com/campusworks/registry-api/pkg/database"
	appErrors "github.com/campusworks/registry-api/pkg/errors"
)

// weightTolerance allows for floating point drift when checking that the
// three assessment weights sum to 100.
const weightTolerance = 0.01

type moduleRepository interface {
	List(ctx context.Context, filter models.ModuleFilter) ([]models.Module, int, error)
	FindByID(ctx context.Context, id string) (*models.Module, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, module *models.Module) error
	Update(ctx context.Context, module *models.Module) error
	Delete(ctx context.Context, id string) error
	CountDependents(ctx context.Context, id string) (int, error)
	ValidateIDs(ctx context.Context, moduleIDs []string) (map[string]bool, error)
}

type moduleCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type moduleDepartmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
}

// CreateModuleRequest captures fields for creating modules.
type CreateModuleRequest struct {
	Name             string   `json:"name" validate:"required"`
	Code             string   `json:"code" validate:"required"`
	CourseID         string   `json:"course_id" validate:"required"`
	DepartmentID     string   `json:"department_id" validate:"required"`
	Credits          int      `json:"credits" validate:"required,min=1"`
	Semester         int      `json:"semester" validate:"required,min=1,max=12"`
	ExamWeight       float64  `json:"exam_weight" validate:"min=0,max=100"`
	CourseworkWeight float64  `json:"coursework_weight" validate:"min=0,max=100"`
	PracticalWeight  float64  `json:"practical_weight" validate:"min=0,max=100"`
	Prerequisites    []string `json:"prerequisites"`
}

// UpdateModuleRequest modifies module fields.
type UpdateModuleRequest struct {
	Name             string   `json:"name" validate:"required"`
	Code             string   `json:"code" validate:"required"`
	CourseID         string   `json:"course_id" validate:"required"`
	DepartmentID     string   `json:"department_id" validate:"required"`
	Credits          int      `json:"credits" validate:"required,min=1"`
	Semester         int      `json:"semester" validate:"required,min=1,max=12"`
	ExamWeight       float64  `json:"exam_weight" validate:"min=0,max=100"`
	CourseworkWeight float64  `json:"coursework_weight" validate:"min=0,max=100"`
	PracticalWeight  float64  `json:"practical_weight" validate:"min=0,max=100"`
	Prerequisites    []string `json:"prerequisites"`
}

// ModuleService handles module domain workflows, including the reference
// checks between a module, its course and its department.
type ModuleService struct {
	repo        moduleRepository
	courses     moduleCourseRepository
	departments moduleDepartmentRepository
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewModuleService creates a new module service.
func NewModuleService(repo moduleRepository, courses moduleCourseRepository, departments moduleDepartmentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ModuleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModuleService{repo: repo, courses: courses, departments: departments, cache: cache, validator: validate, logger: logger}
}

// List returns paginated modules.
func (s *ModuleService) List(ctx context.Context, filter models.ModuleFilter) ([]models.Module, *models.Pagination, error) {
	modules, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list modules")
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
	return modules, pagination, nil
}

// Get returns module by identifier with prerequisites loaded.
func (s *ModuleService) Get(ctx context.Context, id string) (*models.Module, error) {
	module, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	return module, nil
}

// Create adds a new module after code uniqueness, weight-sum and
// cross-reference checks.
func (s *ModuleService) Create(ctx context.Context, req CreateModuleRequest) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}
	if err := s.checkWeights(req.ExamWeight, req.CourseworkWeight, req.PracticalWeight); err != nil {
		return nil, err
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))

	if err := s.checkReferences(ctx, req.CourseID, req.DepartmentID); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByCode(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check module code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "module code already exists")
	}

	if err := s.checkPrerequisites(ctx, req.Prerequisites, ""); err != nil {
		return nil, err
	}

	module := &models.Module{
		Name:             strings.TrimSpace(req.Name),
		Code:             req.Code,
		CourseID:         req.CourseID,
		DepartmentID:     req.DepartmentID,
		Credits:          req.Credits,
		Semester:         req.Semester,
		ExamWeight:       req.ExamWeight,
		CourseworkWeight: req.CourseworkWeight,
		PracticalWeight:  req.PracticalWeight,
		Prerequisites:    req.Prerequisites,
	}

	if err := s.repo.Create(ctx, module); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "module code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create module")
	}

	s.invalidateCatalog(ctx)
	return module, nil
}

// Update modifies an existing module with the same checks as Create.
func (s *ModuleService) Update(ctx context.Context, id string, req UpdateModuleRequest) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}
	if err := s.checkWeights(req.ExamWeight, req.CourseworkWeight, req.PracticalWeight); err != nil {
		return nil, err
	}

	module, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))

	if err := s.checkReferences(ctx, req.CourseID, req.DepartmentID); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByCode(ctx, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check module code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "module code already exists")
	}

	if err := s.checkPrerequisites(ctx, req.Prerequisites, id); err != nil {
		return nil, err
	}

	module.Name = strings.TrimSpace(req.Name)
	module.Code = req.Code
	module.CourseID = req.CourseID
	module.DepartmentID = req.DepartmentID
	module.Credits = req.Credits
	module.Semester = req.Semester
	module.ExamWeight = req.ExamWeight
	module.CourseworkWeight = req.CourseworkWeight
	module.PracticalWeight = req.PracticalWeight
	module.Prerequisites = req.Prerequisites

	if err := s.repo.Update(ctx, module); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateKey, "module code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update module")
	}

	s.invalidateCatalog(ctx)
	return module, nil
}

// Delete removes a module unless another module lists it as a prerequisite.
func (s *ModuleService) Delete(ctx context.Context, id string) error {
	module, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}

	count, err := s.repo.CountDependents(ctx, module.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check module dependents")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrHasDependents, "module is a prerequisite of other modules")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete module")
	}

	s.invalidateCatalog(ctx)
	return nil
}

func (s *ModuleService) checkWeights(exam, coursework, practical float64) error {
	sum := exam + coursework + practical
	if math.Abs(sum-100) > weightTolerance {
		return appErrors.Clone(appErrors.ErrValidation, "assessment weights must sum to 100")
	}
	return nil
}

// checkReferences verifies that the course and department both exist and that
// the module's department matches the course's department.
func (s *ModuleService) checkReferences(ctx context.Context, courseID, departmentID string) error {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrMissingReference, "course does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if _, err := s.departments.FindByID(ctx, departmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrMissingReference, "department does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	if course.DepartmentID != departmentID {
		return appErrors.Clone(appErrors.ErrReferenceMismatch, "module department must match course department")
	}
	return nil
}

func (s *ModuleService) checkPrerequisites(ctx context.Context, prerequisiteIDs []string, selfID string) error {
	if len(prerequisiteIDs) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(prerequisiteIDs))
	for _, id := range prerequisiteIDs {
		if selfID != "" && id == selfID {
			return appErrors.Clone(appErrors.ErrValidation, "module cannot be its own prerequisite")
		}
		if _, dup := seen[id]; dup {
			return appErrors.Clone(appErrors.ErrValidation, "duplicate prerequisite entries")
		}
		seen[id] = struct{}{}
	}

	existing, err := s.repo.ValidateIDs(ctx, prerequisiteIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate prerequisites")
	}
	for _, id := range prerequisiteIDs {
		if !existing[id] {
			return appErrors.Clone(appErrors.ErrMissingReference, "prerequisite module does not exist")
		}
	}
	return nil
}

func (s *ModuleService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, catalogCachePattern); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

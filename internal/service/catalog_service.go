package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campusworks/registry-api/internal/models"
	appErrors "github.com/campusworks/registry-api/pkg/errors"
)

const (
	catalogCacheKey     = "catalog:v1"
	catalogCachePattern = "catalog:*"
)

type catalogDepartmentRepository interface {
	ListAll(ctx context.Context) ([]models.Department, error)
}

type catalogCourseRepository interface {
	ListAll(ctx context.Context) ([]models.Course, error)
}

type catalogModuleRepository interface {
	ListAll(ctx context.Context) ([]models.Module, error)
}

// CatalogService assembles the Department → Course → Semester → Modules view
// from three independently fetched collections.
type CatalogService struct {
	departments catalogDepartmentRepository
	courses     catalogCourseRepository
	modules     catalogModuleRepository
	cache       *CacheService
	logger      *zap.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(departments catalogDepartmentRepository, courses catalogCourseRepository, modules catalogModuleRepository, cache *CacheService, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{departments: departments, courses: courses, modules: modules, cache: cache, logger: logger}
}

// Get returns the aggregated catalog, serving from cache when possible.
func (s *CatalogService) Get(ctx context.Context) ([]models.CatalogDepartment, error) {
	if s.cache != nil {
		var cached []models.CatalogDepartment
		hit, err := s.cache.Get(ctx, catalogCacheKey, &cached)
		if err == nil && hit {
			return cached, nil
		}
	}

	departments, err := s.departments.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load departments")
	}
	courses, err := s.courses.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	modules, err := s.modules.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load modules")
	}

	catalog := BuildCatalog(departments, courses, modules)

	if s.cache != nil {
		if err := s.cache.Set(ctx, catalogCacheKey, catalog, 0); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}

	return catalog, nil
}

// BuildCatalog groups courses under their departments and modules under their
// course and semester. It is a pure transform over pre-sorted inputs: output
// order mirrors input order (departments and courses by name, modules by
// semester then name, as fetched).
//
// Orphans are skipped silently: a course whose department id does not resolve
// is dropped, as is a module whose department or course bucket is missing. A
// module with a blank department id falls back to its course's department; one
// whose department resolves but differs from its course's stays under the
// course. Semesters below 1 collect under bucket 0.
func BuildCatalog(departments []models.Department, courses []models.Course, modules []models.Module) []models.CatalogDepartment {
	catalog := make([]models.CatalogDepartment, 0, len(departments))
	deptIndex := make(map[string]int, len(departments))
	for _, dept := range departments {
		deptIndex[dept.ID] = len(catalog)
		catalog = append(catalog, models.CatalogDepartment{Department: dept, Courses: []models.CatalogCourse{}})
	}

	// course id → (department bucket, course bucket) positions
	type coursePos struct {
		dept   int
		course int
	}
	courseIndex := make(map[string]coursePos, len(courses))
	courseDept := make(map[string]string, len(courses))
	for _, course := range courses {
		di, ok := deptIndex[course.DepartmentID]
		if !ok {
			continue
		}
		courseDept[course.ID] = course.DepartmentID
		courseIndex[course.ID] = coursePos{dept: di, course: len(catalog[di].Courses)}
		catalog[di].Courses = append(catalog[di].Courses, models.CatalogCourse{Course: course, Semesters: []models.CatalogSemester{}})
	}

	for _, module := range modules {
		deptID := module.DepartmentID
		if deptID == "" {
			deptID = courseDept[module.CourseID]
		}
		if _, ok := deptIndex[deptID]; !ok {
			continue
		}
		pos, ok := courseIndex[module.CourseID]
		if !ok {
			continue
		}

		semester := module.Semester
		if semester < 1 {
			semester = 0
		}

		course := &catalog[pos.dept].Courses[pos.course]
		bucket := -1
		for i := range course.Semesters {
			if course.Semesters[i].Semester == semester {
				bucket = i
				break
			}
		}
		if bucket == -1 {
			course.Semesters = append(course.Semesters, models.CatalogSemester{Semester: semester})
			bucket = len(course.Semesters) - 1
		}
		course.Semesters[bucket].Modules = append(course.Semesters[bucket].Modules, module)
	}

	return catalog
}

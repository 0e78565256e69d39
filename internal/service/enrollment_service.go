package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/campusworks/registry-api/internal/models"
	"github.com/campusworks/registry-api/pkg/database"
	appErrors "github.com/campusworks/registry-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	DeleteByUserAndCourse(ctx context.Context, userID, courseID string) (bool, error)
}

type enrollmentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// EnrollmentService manages the join rows between users and courses.
type EnrollmentService struct {
	repo    enrollmentRepository
	courses enrollmentCourseRepository
	logger  *zap.Logger
}

// NewEnrollmentService creates a new enrollment service.
func NewEnrollmentService(repo enrollmentRepository, courses enrollmentCourseRepository, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, logger: logger}
}

// List returns enrollments matching the filter with pagination.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// ListForUser returns all enrollments for a single user.
func (s *EnrollmentService) ListForUser(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	enrollments, _, err := s.repo.List(ctx, models.EnrollmentFilter{UserID: userID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// Enroll joins the user to the course. Enrolling into a course the user is
// already enrolled in succeeds without creating a second row; the returned
// bool reports whether the enrollment already existed.
func (s *EnrollmentService) Enroll(ctx context.Context, userID, courseID string) (*models.Enrollment, bool, error) {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	enrollment := &models.Enrollment{
		UserID:   userID,
		CourseID: courseID,
		Status:   models.EnrollmentStatusEnrolled,
	}

	if err := s.repo.Create(ctx, enrollment); err != nil {
		if database.IsUniqueViolation(err) {
			existing, findErr := s.repo.FindByUserAndCourse(ctx, userID, courseID)
			if findErr != nil {
				return nil, true, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
			}
			return existing, true, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.logger.Info("user enrolled", zap.String("user_id", userID), zap.String("course_id", courseID))
	return enrollment, false, nil
}

// Drop removes the enrollment row for (user, course). Dropping a course the
// user is not enrolled in is an error.
func (s *EnrollmentService) Drop(ctx context.Context, userID, courseID string) error {
	deleted, err := s.repo.DeleteByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}

	s.logger.Info("user dropped course", zap.String("user_id", userID), zap.String("course_id", courseID))
	return nil
}

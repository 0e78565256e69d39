package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusworks/registry-api/internal/models"
	appErrors "github.com/campusworks/registry-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment // keyed user|course
	createErr   error
	deleted     bool
}

func enrollmentKey(userID, courseID string) string { return userID + "|" + courseID }

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		out = append(out, models.EnrollmentDetail{Enrollment: e})
	}
	return out, len(out), nil
}

func (m *mockEnrollmentRepo) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	e, ok := m.enrollments[enrollmentKey(userID, courseID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	enrollment.ID = "enr-new"
	enrollment.JoinedAt = time.Now().UTC()
	m.enrollments[enrollmentKey(enrollment.UserID, enrollment.CourseID)] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) DeleteByUserAndCourse(ctx context.Context, userID, courseID string) (bool, error) {
	if _, ok := m.enrollments[enrollmentKey(userID, courseID)]; !ok {
		return false, nil
	}
	delete(m.enrollments, enrollmentKey(userID, courseID))
	m.deleted = true
	return true, nil
}

type mockEnrollmentCourses struct {
	courses map[string]models.Course
}

func (m *mockEnrollmentCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func newEnrollmentServiceFixture() (*mockEnrollmentRepo, *EnrollmentService) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{}}
	courses := &mockEnrollmentCourses{courses: map[string]models.Course{"c1": {ID: "c1"}}}
	return repo, NewEnrollmentService(repo, courses, zap.NewNop())
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	repo, svc := newEnrollmentServiceFixture()

	enrollment, already, err := svc.Enroll(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.Len(t, repo.enrollments, 1)
}

func TestEnrollmentServiceEnrollCourseNotFound(t *testing.T) {
	_, svc := newEnrollmentServiceFixture()

	_, _, err := svc.Enroll(context.Background(), "u1", "ghost")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestEnrollmentServiceEnrollIdempotent(t *testing.T) {
	repo, svc := newEnrollmentServiceFixture()
	repo.enrollments[enrollmentKey("u1", "c1")] = models.Enrollment{ID: "enr-1", UserID: "u1", CourseID: "c1", Status: models.EnrollmentStatusEnrolled}
	repo.createErr = &pq.Error{Code: "23505"}

	enrollment, already, err := svc.Enroll(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, "enr-1", enrollment.ID)
	assert.Len(t, repo.enrollments, 1)
}

func TestEnrollmentServiceDrop(t *testing.T) {
	repo, svc := newEnrollmentServiceFixture()
	repo.enrollments[enrollmentKey("u1", "c1")] = models.Enrollment{ID: "enr-1", UserID: "u1", CourseID: "c1"}

	err := svc.Drop(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.True(t, repo.deleted)
}

func TestEnrollmentServiceDropNotEnrolled(t *testing.T) {
	_, svc := newEnrollmentServiceFixture()

	err := svc.Drop(context.Background(), "u1", "c1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestEnrollmentServiceListForUser(t *testing.T) {
	repo, svc := newEnrollmentServiceFixture()
	repo.enrollments[enrollmentKey("u1", "c1")] = models.Enrollment{ID: "enr-1", UserID: "u1", CourseID: "c1"}
	repo.enrollments[enrollmentKey("u2", "c1")] = models.Enrollment{ID: "enr-2", UserID: "u2", CourseID: "c1"}

	enrollments, err := svc.ListForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, enrollments, 1)
}

package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusworks/registry-api/internal/middleware"
	"github.com/campusworks/registry-api/internal/models"
	"github.com/campusworks/registry-api/internal/service"
)

type studentRepoStub struct {
	students map[string]models.Student
}

func (m *studentRepoStub) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	return nil, 0, nil
}

func (m *studentRepoStub) ListAll(ctx context.Context) ([]models.StudentDetail, error) {
	return nil, nil
}

func (m *studentRepoStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *studentRepoStub) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	return false, nil
}

func (m *studentRepoStub) ExistsByRollNumber(ctx context.Context, rollNumber string, excludeID string) (bool, error) {
	return false, nil
}

func (m *studentRepoStub) Create(ctx context.Context, student *models.Student) error { return nil }
func (m *studentRepoStub) Update(ctx context.Context, student *models.Student) error { return nil }
func (m *studentRepoStub) Delete(ctx context.Context, id string) error               { return nil }

type departmentRepoStub struct{}

func (m *departmentRepoStub) FindByID(ctx context.Context, id string) (*models.Department, error) {
	return &models.Department{ID: id}, nil
}

type userAccountRepoStub struct{}

func (m *userAccountRepoStub) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	return false, nil
}

func (m *userAccountRepoStub) Create(ctx context.Context, user *models.User) error { return nil }

func newStudentHandlerFixture() *StudentHandler {
	ownerID := "user-1"
	otherID := "user-2"
	repo := &studentRepoStub{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", FullName: "Ayu", UserID: &ownerID},
		"stu-2": {ID: "stu-2", FullName: "Bima", UserID: &otherID},
		"stu-3": {ID: "stu-3", FullName: "Citra"},
	}}
	svc := service.NewStudentService(repo, &departmentRepoStub{}, &courseRepoStub{courses: map[string]models.Course{}}, &userAccountRepoStub{}, nil, zap.NewNop())
	return NewStudentHandler(svc)
}

func performStudentGet(t *testing.T, handler *StudentHandler, claims *models.JWTClaims, studentID string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/"+studentID, nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: studentID}}
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	handler.Get(c)
	return w
}

func TestStudentHandlerGetOwnRecord(t *testing.T) {
	handler := newStudentHandlerFixture()
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}

	w := performStudentGet(t, handler, claims, "stu-1")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStudentHandlerGetForeignRecordForbidden(t *testing.T) {
	handler := newStudentHandlerFixture()
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}

	w := performStudentGet(t, handler, claims, "stu-2")
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestStudentHandlerGetUnlinkedRecordForbidden(t *testing.T) {
	handler := newStudentHandlerFixture()
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}

	w := performStudentGet(t, handler, claims, "stu-3")
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestStudentHandlerGetAsAdmin(t *testing.T) {
	handler := newStudentHandlerFixture()
	claims := &models.JWTClaims{UserID: "user-9", Role: models.RoleAdmin}

	w := performStudentGet(t, handler, claims, "stu-2")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStudentHandlerGetMissingClaims(t *testing.T) {
	handler := newStudentHandlerFixture()

	w := performStudentGet(t, handler, nil, "stu-1")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/registry-api/internal/models"
)

func performRBAC(t *testing.T, claims *models.JWTClaims, path, routePath string, allowed ...string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if claims != nil {
		r.Use(func(c *gin.Context) {
			c.Set(ContextUserKey, claims)
		})
	}
	r.GET(routePath, RBAC(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRBACAllowsRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}
	w := performRBAC(t, claims, "/users/u2", "/users/:id", string(models.RoleAdmin))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRBACRejectsRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}
	w := performRBAC(t, claims, "/users/u2", "/users/:id", string(models.RoleAdmin), string(models.RoleStaff))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACAllowsSelf(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}
	w := performRBAC(t, claims, "/users/u1", "/users/:id", string(models.RoleAdmin), "SELF")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRBACSelfDoesNotMatchOthers(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}
	w := performRBAC(t, claims, "/users/u2", "/users/:id", "SELF")
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACMissingClaims(t *testing.T) {
	w := performRBAC(t, nil, "/users/u1", "/users/:id", string(models.RoleAdmin))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleStaff})
	})
	r.GET("/students", RequireRoles(models.RoleAdmin, models.RoleStaff), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/students", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

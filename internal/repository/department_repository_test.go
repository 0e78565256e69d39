package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/registry-api/internal/models"
)

func newDepartmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestDepartmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newDepartmentMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "code", "description", "active", "created_at", "updated_at"}).
		AddRow("d1", "Computing", "CS", "", true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, code, description, active, created_at, updated_at FROM departments WHERE 1=1 ORDER BY name ASC LIMIT 20 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM departments WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	departments, total, err := repo.List(context.Background(), models.DepartmentFilter{})
	require.NoError(t, err)
	assert.Len(t, departments, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryListAllOrdersByName(t *testing.T) {
	db, mock, cleanup := newDepartmentMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "code", "description", "active", "created_at", "updated_at"}).
		AddRow("d1", "Arts", "AR", "", true, time.Now(), time.Now()).
		AddRow("d2", "Computing", "CS", "", true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, code, description, active, created_at, updated_at FROM departments ORDER BY name ASC")).
		WillReturnRows(rows)

	departments, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, departments, 2)
	assert.Equal(t, "Arts", departments[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryExistsByCode(t *testing.T) {
	db, mock, cleanup := newDepartmentMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM departments WHERE LOWER(code) = LOWER($1) LIMIT 1")).
		WithArgs("CS").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByCode(context.Background(), "CS", "")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryExistsByCodeMiss(t *testing.T) {
	db, mock, cleanup := newDepartmentMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM departments WHERE LOWER(code) = LOWER($1) AND id <> $2 LIMIT 1")).
		WithArgs("CS", "d1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsByCode(context.Background(), "CS", "d1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newDepartmentMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectExec("INSERT INTO departments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	department := &models.Department{Name: "Computing", Code: "CS", Active: true}
	err := repo.Create(context.Background(), department)
	require.NoError(t, err)
	assert.NotEmpty(t, department.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

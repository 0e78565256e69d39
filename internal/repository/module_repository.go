package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusworks/registry-api/internal/models"
)

// ModuleRepository handles persistence for modules and their prerequisites.
type ModuleRepository struct {
	db *sqlx.DB
}

// NewModuleRepository creates a new repository instance.
func NewModuleRepository(db *sqlx.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

const moduleColumns = "id, name, code, course_id, department_id, credits, semester, exam_weight, coursework_weight, practical_weight, created_at, updated_at"

// List returns modules matching filters with pagination metadata.
func (r *ModuleRepository) List(ctx context.Context, filter models.ModuleFilter) ([]models.Module, int, error) {
	base := "FROM modules WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.Semester != nil {
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, *filter.Semester)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "semester"
	}
	allowedSorts := map[string]bool{
		"code":       true,
		"name":       true,
		"semester":   true,
		"credits":    true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "semester"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, name ASC LIMIT %d OFFSET %d", moduleColumns, base, sortBy, order, size, offset)
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list modules: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count modules: %w", err)
	}

	return modules, total, nil
}

// ListAll returns every module ordered by (semester, name) for the catalog build.
func (r *ModuleRepository) ListAll(ctx context.Context) ([]models.Module, error) {
	query := fmt.Sprintf("SELECT %s FROM modules ORDER BY semester ASC, name ASC", moduleColumns)
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query); err != nil {
		return nil, fmt.Errorf("list all modules: %w", err)
	}
	return modules, nil
}

// FindByID returns a module with its prerequisite ids loaded.
func (r *ModuleRepository) FindByID(ctx context.Context, id string) (*models.Module, error) {
	query := fmt.Sprintf("SELECT %s FROM modules WHERE id = $1", moduleColumns)
	var module models.Module
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		return nil, err
	}

	prereqs, err := r.ListPrerequisiteIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	module.Prerequisites = prereqs
	return &module, nil
}

// ExistsByCode checks uniqueness of the module code.
func (r *ModuleRepository) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM modules WHERE LOWER(code) = LOWER($1)"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check module code: %w", err)
	}
	return true, nil
}

// Create persists a new module and its prerequisite links.
func (r *ModuleRepository) Create(ctx context.Context, module *models.Module) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if module.CreatedAt.IsZero() {
		module.CreatedAt = now
	}
	module.UpdatedAt = now

	const query = `INSERT INTO modules (id, name, code, course_id, department_id, credits, semester, exam_weight, coursework_weight, practical_weight, created_at, updated_at)
        VALUES (:id, :name, :code, :course_id, :department_id, :credits, :semester, :exam_weight, :coursework_weight, :practical_weight, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("create module: %w", err)
	}

	return r.ReplacePrerequisites(ctx, module.ID, module.Prerequisites)
}

// Update modifies a module and rewrites its prerequisite links.
func (r *ModuleRepository) Update(ctx context.Context, module *models.Module) error {
	module.UpdatedAt = time.Now().UTC()
	const query = `UPDATE modules SET name = :name, code = :code, course_id = :course_id, department_id = :department_id, credits = :credits, semester = :semester, exam_weight = :exam_weight, coursework_weight = :coursework_weight, practical_weight = :practical_weight, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("update module: %w", err)
	}

	return r.ReplacePrerequisites(ctx, module.ID, module.Prerequisites)
}

// Delete removes a module together with its own prerequisite links.
func (r *ModuleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM module_prerequisites WHERE module_id = $1`, id); err != nil {
		return fmt.Errorf("delete module prerequisites: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM modules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	return nil
}

// ListPrerequisiteIDs returns the ordered prerequisite module ids.
func (r *ModuleRepository) ListPrerequisiteIDs(ctx context.Context, moduleID string) ([]string, error) {
	const query = `SELECT prerequisite_id FROM module_prerequisites WHERE module_id = $1 ORDER BY position ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, moduleID); err != nil {
		return nil, fmt.Errorf("list module prerequisites: %w", err)
	}
	return ids, nil
}

// ReplacePrerequisites rewrites the prerequisite list for a module.
func (r *ModuleRepository) ReplacePrerequisites(ctx context.Context, moduleID string, prerequisiteIDs []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM module_prerequisites WHERE module_id = $1`, moduleID); err != nil {
		return fmt.Errorf("clear module prerequisites: %w", err)
	}
	for i, prereqID := range prerequisiteIDs {
		if _, err := r.db.ExecContext(ctx, `INSERT INTO module_prerequisites (module_id, prerequisite_id, position) VALUES ($1, $2, $3)`, moduleID, prereqID, i); err != nil {
			return fmt.Errorf("insert module prerequisite: %w", err)
		}
	}
	return nil
}

// CountDependents returns how many other modules list the module as a prerequisite.
func (r *ModuleRepository) CountDependents(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM module_prerequisites WHERE prerequisite_id = $1 AND module_id <> $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count module dependents: %w", err)
	}
	return count, nil
}

// ValidateIDs ensures all module ids exist, returning the found set.
func (r *ModuleRepository) ValidateIDs(ctx context.Context, moduleIDs []string) (map[string]bool, error) {
	if len(moduleIDs) == 0 {
		return map[string]bool{}, nil
	}
	const chunkSize = 100
	existing := make(map[string]bool, len(moduleIDs))
	for start := 0; start < len(moduleIDs); start += chunkSize {
		end := start + chunkSize
		if end > len(moduleIDs) {
			end = len(moduleIDs)
		}
		chunk := moduleIDs[start:end]
		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = id
		}
		query := fmt.Sprintf("SELECT id FROM modules WHERE id IN (%s)", strings.Join(placeholders, ","))
		rows, err := r.db.QueryxContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("validate modules: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan module id: %w", err)
			}
			existing[id] = true
		}
		// an iteration error would silently shrink the found set and read
		// as a missing module
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate module ids: %w", err)
		}
		rows.Close()
	}
	return existing, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/uniplan/timetable-api/internal/models"
)

// OrgRepository exposes read models for the organizational entities the
// ownership resolver and conflict detector depend on.
type OrgRepository struct {
	db *sqlx.DB
}

// NewOrgRepository creates a new org repository.
func NewOrgRepository(db *sqlx.DB) *OrgRepository {
	return &OrgRepository{db: db}
}

// GetDepartment loads a department by id.
func (r *OrgRepository) GetDepartment(ctx context.Context, id string) (*models.Department, error) {
	const query = `SELECT id, name, head_id, created_at, updated_at FROM departments WHERE id = $1`
	var department models.Department
	if err := r.db.GetContext(ctx, &department, query, id); err != nil {
		return nil, err
	}
	return &department, nil
}

// ListDepartments returns all departments ordered by name.
func (r *OrgRepository) ListDepartments(ctx context.Context) ([]models.Department, error) {
	const query = `SELECT id, name, head_id, created_at, updated_at FROM departments ORDER BY name ASC`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// GetProgram loads a program with its department resolved through the
// head's profile when the program itself carries none.
func (r *OrgRepository) GetProgram(ctx context.Context, id string) (*models.Program, error) {
	const query = `
SELECT p.id, p.name, p.head_id, COALESCE(p.department_id, u.department_id) AS department_id, p.created_at, p.updated_at
FROM programs p
LEFT JOIN users u ON u.id = p.head_id
WHERE p.id = $1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		return nil, err
	}
	return &program, nil
}

// GetInstructor loads an instructor by id.
func (r *OrgRepository) GetInstructor(ctx context.Context, id string) (*models.Instructor, error) {
	const query = `SELECT id, full_name, email, department_id, created_at, updated_at FROM instructors WHERE id = $1`
	var instructor models.Instructor
	if err := r.db.GetContext(ctx, &instructor, query, id); err != nil {
		return nil, err
	}
	return &instructor, nil
}

// GetClassroom loads a classroom by id.
func (r *OrgRepository) GetClassroom(ctx context.Context, id string) (*models.Classroom, error) {
	const query = `SELECT id, name, capacity, preferred_department_id, created_at, updated_at FROM classrooms WHERE id = $1`
	var classroom models.Classroom
	if err := r.db.GetContext(ctx, &classroom, query, id); err != nil {
		return nil, err
	}
	return &classroom, nil
}

// GetClassGroup loads a class group by id.
func (r *OrgRepository) GetClassGroup(ctx context.Context, id string) (*models.ClassGroup, error) {
	const query = `SELECT id, name, student_count, program_id, created_at, updated_at FROM class_groups WHERE id = $1`
	var group models.ClassGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// ListClassGroups returns class groups for a program ordered by name.
func (r *OrgRepository) ListClassGroups(ctx context.Context, programID string) ([]models.ClassGroup, error) {
	const query = `SELECT id, name, student_count, program_id, created_at, updated_at FROM class_groups WHERE program_id = $1 ORDER BY name ASC`
	var groups []models.ClassGroup
	if err := r.db.SelectContext(ctx, &groups, query, programID); err != nil {
		return nil, fmt.Errorf("list class groups: %w", err)
	}
	return groups, nil
}

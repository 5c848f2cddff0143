package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/training-scheduler-api/internal/models"
)

const courseColumns = "id, name, description, duration_days, branch_ids, person_ids, created_at, updated_at"

// CourseRepository manages persistence for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns every course ordered by name.
func (r *CourseRepository) List(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, "SELECT "+courseColumns+" FROM courses ORDER BY name, id"); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// ListByBranch returns the courses offered at a branch.
func (r *CourseRepository) ListByBranch(ctx context.Context, branchID string) ([]models.Course, error) {
	var courses []models.Course
	query := "SELECT " + courseColumns + " FROM courses WHERE $1 = ANY(branch_ids) ORDER BY name, id"
	if err := r.db.SelectContext(ctx, &courses, query, branchID); err != nil {
		return nil, fmt.Errorf("list courses by branch: %w", err)
	}
	return courses, nil
}

// ListRefs returns id/name pairs for the given course IDs.
func (r *CourseRepository) ListRefs(ctx context.Context, ids []string) ([]models.CourseRef, error) {
	if len(ids) == 0 {
		return []models.CourseRef{}, nil
	}
	var refs []models.CourseRef
	if err := r.db.SelectContext(ctx, &refs, "SELECT id, name FROM courses WHERE id = ANY($1) ORDER BY name, id", pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list course refs: %w", err)
	}
	return refs, nil
}

// ListIDs returns the IDs of every course.
func (r *CourseRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, "SELECT id FROM courses ORDER BY created_at, id"); err != nil {
		return nil, fmt.Errorf("list course ids: %w", err)
	}
	return ids, nil
}

// FindByID fetches a course by ID. sql.ErrNoRows is returned unwrapped.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, "SELECT "+courseColumns+" FROM courses WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// FindForUpdate reads a course with a row lock held until the transaction ends.
func (r *CourseRepository) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error) {
	var course models.Course
	if err := sqlx.GetContext(ctx, orDB(r.db, exec), &course, "SELECT "+courseColumns+" FROM courses WHERE id = $1 FOR UPDATE", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock course: %w", err)
	}
	return &course, nil
}

// Create inserts a new course record.
func (r *CourseRepository) Create(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	course.BranchIDs = nonNil(course.BranchIDs)
	course.PersonIDs = nonNil(course.PersonIDs)

	const query = `INSERT INTO courses (id, name, description, duration_days, branch_ids, person_ids, created_at, updated_at)
		VALUES (:id, :name, :description, :duration_days, :branch_ids, :person_ids, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, orDB(r.db, exec), query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update modifies an existing course record.
func (r *CourseRepository) Update(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	course.BranchIDs = nonNil(course.BranchIDs)
	course.PersonIDs = nonNil(course.PersonIDs)
	const query = `UPDATE courses SET name = :name, description = :description, duration_days = :duration_days, branch_ids = :branch_ids, person_ids = :person_ids, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, orDB(r.db, exec), query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course.
func (r *CourseRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := orDB(r.db, exec).ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

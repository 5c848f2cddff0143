package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/training-scheduler-api/internal/models"
)

const (
	storedCounter   = "total_batches"
	computedCounter = "(SELECT COUNT(*) FROM batches b WHERE b.person_id = persons.id) AS total_batches"
)

// PersonRepository manages persistence for instructors and inspectors.
type PersonRepository struct {
	db      *sqlx.DB
	counter string
}

// NewPersonRepository constructs a PersonRepository. When computeCounter is
// set, total_batches is counted from batches on every read instead of using
// the stored column.
func NewPersonRepository(db *sqlx.DB, computeCounter bool) *PersonRepository {
	counter := storedCounter
	if computeCounter {
		counter = computedCounter
	}
	return &PersonRepository{db: db, counter: counter}
}

func (r *PersonRepository) columns() string {
	return "id, role, name, email, phone, " + r.counter + ", course_ids, branch_ids, created_at, updated_at"
}

// List returns persons matching filters along with total count.
func (r *PersonRepository) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error) {
	base := "FROM persons WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, filter.Role)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(course_ids)", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.BranchID != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(branch_ids)", len(args)+1))
		args = append(args, filter.BranchID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at, id LIMIT %d OFFSET %d", r.columns(), base, size, offset)
	var persons []models.Person
	if err := r.db.SelectContext(ctx, &persons, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list persons: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count persons: %w", err)
	}
	return persons, total, nil
}

// ListQualified returns every person of role qualified for courseID, and
// assigned to branchID when it is not empty, in creation order.
func (r *PersonRepository) ListQualified(ctx context.Context, role models.PersonRole, courseID, branchID string) ([]models.Person, error) {
	query := "SELECT " + r.columns() + " FROM persons WHERE role = $1 AND $2 = ANY(course_ids)"
	args := []interface{}{role, courseID}
	if branchID != "" {
		query += " AND $3 = ANY(branch_ids)"
		args = append(args, branchID)
	}
	query += " ORDER BY created_at, id"

	var persons []models.Person
	if err := r.db.SelectContext(ctx, &persons, query, args...); err != nil {
		return nil, fmt.Errorf("list qualified persons: %w", err)
	}
	return persons, nil
}

// FindByID fetches a person by ID. sql.ErrNoRows is returned unwrapped.
func (r *PersonRepository) FindByID(ctx context.Context, id string) (*models.Person, error) {
	query := "SELECT " + r.columns() + " FROM persons WHERE id = $1"
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find person: %w", err)
	}
	return &person, nil
}

// FindForUpdate reads a person and locks the row for the rest of the
// transaction, so its reference lists cannot change underneath the caller.
func (r *PersonRepository) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Person, error) {
	query := "SELECT " + r.columns() + " FROM persons WHERE id = $1 FOR UPDATE"
	var person models.Person
	if err := sqlx.GetContext(ctx, orDB(r.db, exec), &person, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock person row: %w", err)
	}
	return &person, nil
}

// ExistsByEmail checks if another person uses the same email.
func (r *PersonRepository) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM persons WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check person email: %w", err)
	}
	return true, nil
}

// ListIDs returns the IDs of every person.
func (r *PersonRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, "SELECT id FROM persons ORDER BY created_at, id"); err != nil {
		return nil, fmt.Errorf("list person ids: %w", err)
	}
	return ids, nil
}

// Lock takes a row lock on the person for the rest of the transaction and
// returns its role. sql.ErrNoRows is returned unwrapped.
func (r *PersonRepository) Lock(ctx context.Context, exec sqlx.ExtContext, id string) (models.PersonRole, error) {
	var role models.PersonRole
	const query = `SELECT role FROM persons WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, orDB(r.db, exec), &role, query, id); err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("lock person: %w", err)
	}
	return role, nil
}

// AdjustTotalBatches adds delta to the stored counter, never going below zero.
func (r *PersonRepository) AdjustTotalBatches(ctx context.Context, exec sqlx.ExtContext, id string, delta int) error {
	const query = `UPDATE persons SET total_batches = GREATEST(total_batches + $2, 0), updated_at = $3 WHERE id = $1`
	if _, err := orDB(r.db, exec).ExecContext(ctx, query, id, delta, time.Now().UTC()); err != nil {
		return fmt.Errorf("adjust person total batches: %w", err)
	}
	return nil
}

// Create inserts a new person record with a zero counter.
func (r *PersonRepository) Create(ctx context.Context, exec sqlx.ExtContext, person *models.Person) error {
	if person.ID == "" {
		person.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if person.CreatedAt.IsZero() {
		person.CreatedAt = now
	}
	person.UpdatedAt = now
	person.TotalBatches = 0
	person.CourseIDs = nonNil(person.CourseIDs)
	person.BranchIDs = nonNil(person.BranchIDs)

	const query = `INSERT INTO persons (id, role, name, email, phone, total_batches, course_ids, branch_ids, created_at, updated_at)
		VALUES (:id, :role, :name, :email, :phone, :total_batches, :course_ids, :branch_ids, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, orDB(r.db, exec), query, person); err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

// Update modifies the mutable fields of a person. The counter is not touched.
func (r *PersonRepository) Update(ctx context.Context, exec sqlx.ExtContext, person *models.Person) error {
	person.UpdatedAt = time.Now().UTC()
	person.CourseIDs = nonNil(person.CourseIDs)
	person.BranchIDs = nonNil(person.BranchIDs)
	const query = `UPDATE persons SET name = :name, email = :email, phone = :phone, course_ids = :course_ids, branch_ids = :branch_ids, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, orDB(r.db, exec), query, person); err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	return nil
}

// Delete removes a person.
func (r *PersonRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := orDB(r.db, exec).ExecContext(ctx, `DELETE FROM persons WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	return nil
}

func nonNil(ids pq.StringArray) pq.StringArray {
	if ids == nil {
		return pq.StringArray{}
	}
	return ids
}

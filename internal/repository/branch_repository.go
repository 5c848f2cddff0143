package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-scheduler-api/internal/models"
)

const branchColumns = "id, name, country, code, address, course_ids, created_at, updated_at"

// BranchRepository manages persistence for branches.
type BranchRepository struct {
	db *sqlx.DB
}

// NewBranchRepository constructs a BranchRepository.
func NewBranchRepository(db *sqlx.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

// List returns every branch ordered by code.
func (r *BranchRepository) List(ctx context.Context) ([]models.Branch, error) {
	var branches []models.Branch
	if err := r.db.SelectContext(ctx, &branches, "SELECT "+branchColumns+" FROM branches ORDER BY code, id"); err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return branches, nil
}

// ListIDs returns the IDs of every branch.
func (r *BranchRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, "SELECT id FROM branches ORDER BY created_at, id"); err != nil {
		return nil, fmt.Errorf("list branch ids: %w", err)
	}
	return ids, nil
}

// FindByID fetches a branch by ID. sql.ErrNoRows is returned unwrapped.
func (r *BranchRepository) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	var branch models.Branch
	if err := r.db.GetContext(ctx, &branch, "SELECT "+branchColumns+" FROM branches WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find branch: %w", err)
	}
	return &branch, nil
}

// FindForUpdate reads a branch with a row lock held until the transaction ends.
func (r *BranchRepository) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Branch, error) {
	var branch models.Branch
	if err := sqlx.GetContext(ctx, orDB(r.db, exec), &branch, "SELECT "+branchColumns+" FROM branches WHERE id = $1 FOR UPDATE", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock branch: %w", err)
	}
	return &branch, nil
}

// ExistsByCode checks if another branch uses the same code.
func (r *BranchRepository) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM branches WHERE UPPER(code) = UPPER($1)"
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
		return false, fmt.Errorf("check branch code: %w", err)
	}
	return true, nil
}

// Create inserts a new branch record.
func (r *BranchRepository) Create(ctx context.Context, exec sqlx.ExtContext, branch *models.Branch) error {
	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = now
	}
	branch.UpdatedAt = now
	branch.CourseIDs = nonNil(branch.CourseIDs)

	const query = `INSERT INTO branches (id, name, country, code, address, course_ids, created_at, updated_at)
		VALUES (:id, :name, :country, :code, :address, :course_ids, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, orDB(r.db, exec), query, branch); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}

// Update modifies an existing branch record.
func (r *BranchRepository) Update(ctx context.Context, exec sqlx.ExtContext, branch *models.Branch) error {
	branch.UpdatedAt = time.Now().UTC()
	branch.CourseIDs = nonNil(branch.CourseIDs)
	const query = `UPDATE branches SET name = :name, country = :country, code = :code, address = :address, course_ids = :course_ids, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, orDB(r.db, exec), query, branch); err != nil {
		return fmt.Errorf("update branch: %w", err)
	}
	return nil
}

// Delete removes a branch.
func (r *BranchRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := orDB(r.db, exec).ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-scheduler-api/internal/models"
)

const batchColumns = "id, branch_id, course_id, person_id, from_date, to_date, code, name, scheduled_by, status, created_at, updated_at"

// BatchRepository manages persistence for batches.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs a BatchRepository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// List returns batches matching the filter. Newest orders by from_date descending.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, error) {
	var conditions []string
	var args []interface{}
	if filter.PersonID != "" {
		conditions = append(conditions, fmt.Sprintf("person_id = $%d", len(args)+1))
		args = append(args, filter.PersonID)
	}
	if filter.Window != nil {
		conditions = append(conditions, fmt.Sprintf("from_date <= $%d AND to_date >= $%d", len(args)+1, len(args)+2))
		args = append(args, models.Day(filter.Window.To), models.Day(filter.Window.From))
	}

	query := "SELECT " + batchColumns + " FROM batches"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if filter.Newest {
		query += " ORDER BY from_date DESC, id"
	} else {
		query += " ORDER BY from_date, id"
	}

	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// FindByID fetches a batch by ID. sql.ErrNoRows is returned unwrapped.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, "SELECT "+batchColumns+" FROM batches WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find batch: %w", err)
	}
	return &batch, nil
}

// FindForUpdate reads a batch and keeps its row locked until the transaction
// ends. sql.ErrNoRows is returned unwrapped.
func (r *BatchRepository) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Batch, error) {
	var batch models.Batch
	if err := sqlx.GetContext(ctx, orDB(r.db, exec), &batch, "SELECT "+batchColumns+" FROM batches WHERE id = $1 FOR UPDATE", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock batch: %w", err)
	}
	return &batch, nil
}

// FindOverlapping returns the person's batches whose closed date range
// overlaps filter.Range, narrowed by course, branch and exclusion when set.
func (r *BatchRepository) FindOverlapping(ctx context.Context, exec sqlx.ExtContext, filter models.BatchOverlapFilter) ([]models.Batch, error) {
	query := "SELECT " + batchColumns + " FROM batches WHERE person_id = $1 AND from_date <= $2 AND to_date >= $3"
	args := []interface{}{filter.PersonID, models.Day(filter.Range.To), models.Day(filter.Range.From)}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		query += fmt.Sprintf(" AND course_id = $%d", len(args))
	}
	if filter.BranchID != "" {
		args = append(args, filter.BranchID)
		query += fmt.Sprintf(" AND branch_id = $%d", len(args))
	}
	if filter.ExcludeID != "" {
		args = append(args, filter.ExcludeID)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}
	query += " ORDER BY from_date, id"

	var batches []models.Batch
	if err := sqlx.SelectContext(ctx, orDB(r.db, exec), &batches, query, args...); err != nil {
		return nil, fmt.Errorf("find overlapping batches: %w", err)
	}
	return batches, nil
}

// BusyPersonIDs returns the distinct persons holding any batch that overlaps window.
func (r *BatchRepository) BusyPersonIDs(ctx context.Context, window models.DateRange) ([]string, error) {
	const query = `SELECT DISTINCT person_id FROM batches WHERE from_date <= $1 AND to_date >= $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.Day(window.To), models.Day(window.From)); err != nil {
		return nil, fmt.Errorf("list busy persons: %w", err)
	}
	return ids, nil
}

// CountByPerson counts batches referencing a person.
func (r *BatchRepository) CountByPerson(ctx context.Context, personID string) (int, error) {
	return r.countBy(ctx, "person_id", personID)
}

// CountByCourse counts batches referencing a course.
func (r *BatchRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	return r.countBy(ctx, "course_id", courseID)
}

// CountByBranch counts batches referencing a branch.
func (r *BatchRepository) CountByBranch(ctx context.Context, branchID string) (int, error) {
	return r.countBy(ctx, "branch_id", branchID)
}

func (r *BatchRepository) countBy(ctx context.Context, column, id string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM batches WHERE "+column+" = $1", id); err != nil {
		return 0, fmt.Errorf("count batches by %s: %w", column, err)
	}
	return total, nil
}

// Create inserts a new batch record.
func (r *BatchRepository) Create(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = now

	const query = `INSERT INTO batches (id, branch_id, course_id, person_id, from_date, to_date, code, name, scheduled_by, status, created_at, updated_at)
		VALUES (:id, :branch_id, :course_id, :person_id, :from_date, :to_date, :code, :name, :scheduled_by, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, orDB(r.db, exec), query, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// Update modifies an existing batch record.
func (r *BatchRepository) Update(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error {
	batch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE batches SET branch_id = :branch_id, course_id = :course_id, person_id = :person_id, from_date = :from_date, to_date = :to_date, code = :code, name = :name, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, orDB(r.db, exec), query, batch); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return nil
}

// UpdateStatus persists a status derived from window. The row is left alone
// when its dates no longer match window.
func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, window models.DateRange, status models.BatchStatus) error {
	const query = `UPDATE batches SET status = $2 WHERE id = $1 AND status <> $2 AND from_date = $3 AND to_date = $4`
	if _, err := r.db.ExecContext(ctx, query, id, status, models.Day(window.From), models.Day(window.To)); err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	return nil
}

// Delete removes a batch still assigned to personID and reports whether a
// row was removed.
func (r *BatchRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id, personID string) (bool, error) {
	res, err := orDB(r.db, exec).ExecContext(ctx, `DELETE FROM batches WHERE id = $1 AND person_id = $2`, id, personID)
	if err != nil {
		return false, fmt.Errorf("delete batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete batch rows affected: %w", err)
	}
	return affected > 0, nil
}

// Totals counts the main entities in one round trip.
func (r *BatchRepository) Totals(ctx context.Context) (*models.SummaryTotals, error) {
	const query = `SELECT
		(SELECT COUNT(*) FROM persons WHERE role = 'INSTRUCTOR') AS instructors,
		(SELECT COUNT(*) FROM persons WHERE role = 'INSPECTOR') AS inspectors,
		(SELECT COUNT(*) FROM courses) AS courses,
		(SELECT COUNT(*) FROM branches) AS branches,
		(SELECT COUNT(*) FROM batches) AS batches`
	var totals models.SummaryTotals
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("count summary totals: %w", err)
	}
	return &totals, nil
}

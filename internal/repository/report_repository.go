package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-scheduler-api/internal/models"
)

// ReportRepository aggregates batch workload for reporting.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Workload groups batches overlapping window by person. Days are counted
// over each batch's full inclusive range.
func (r *ReportRepository) Workload(ctx context.Context, window models.DateRange, role models.PersonRole) ([]models.WorkloadRow, error) {
	query := `SELECT p.id AS person_id, p.name AS person_name, p.email, p.role,
	COUNT(b.id) AS total_batches, COALESCE(SUM(b.to_date - b.from_date + 1), 0) AS total_days
FROM batches b
JOIN persons p ON p.id = b.person_id
WHERE b.from_date <= $1 AND b.to_date >= $2`
	args := []interface{}{models.Day(window.To), models.Day(window.From)}
	if role != "" {
		query += " AND p.role = $3"
		args = append(args, role)
	}
	query += `
GROUP BY p.id, p.name, p.email, p.role
ORDER BY p.name, p.id`

	var rows []models.WorkloadRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("aggregate workload: %w", err)
	}
	return rows, nil
}

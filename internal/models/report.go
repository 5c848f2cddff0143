package models

// WorkloadRequest selects the reporting window.
type WorkloadRequest struct {
	FromDate string     `json:"from_date" form:"from" validate:"required,datetime=2006-01-02"`
	ToDate   string     `json:"to_date" form:"to" validate:"required,datetime=2006-01-02"`
	Role     PersonRole `json:"role" form:"role" validate:"omitempty,oneof=INSTRUCTOR INSPECTOR"`
}

// WorkloadRow summarises one person's bookings inside a window.
type WorkloadRow struct {
	PersonID     string     `db:"person_id" json:"person_id"`
	PersonName   string     `db:"person_name" json:"person_name"`
	Email        string     `db:"email" json:"email"`
	Role         PersonRole `db:"role" json:"role"`
	TotalBatches int        `db:"total_batches" json:"total_batches"`
	TotalDays    int        `db:"total_days" json:"total_days"`
}

// WorkloadReport is the response of a workload query.
type WorkloadReport struct {
	FromDate string        `json:"from_date"`
	ToDate   string        `json:"to_date"`
	Rows     []WorkloadRow `json:"rows"`
}

// PersonBatchesReport lists a person's batches in a window with totals.
type PersonBatchesReport struct {
	Person       Person  `json:"person"`
	TotalBatches int     `json:"total_batches"`
	TotalDays    int     `json:"total_days"`
	Batches      []Batch `json:"batches"`
}

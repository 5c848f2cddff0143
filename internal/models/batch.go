package models

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of batch dates.
const DateLayout = "2006-01-02"

// BatchStatus is the lifecycle state derived from a batch's date range.
type BatchStatus string

const (
	BatchStatusUpcoming  BatchStatus = "UPCOMING"
	BatchStatusOngoing   BatchStatus = "ONGOING"
	BatchStatusCompleted BatchStatus = "COMPLETED"
)

// Batch is a booking of one person onto a course for an inclusive date range.
type Batch struct {
	ID          string      `db:"id" json:"id"`
	BranchID    *string     `db:"branch_id" json:"branch_id,omitempty"`
	CourseID    string      `db:"course_id" json:"course_id"`
	PersonID    string      `db:"person_id" json:"person_id"`
	FromDate    time.Time   `db:"from_date" json:"from_date"`
	ToDate      time.Time   `db:"to_date" json:"to_date"`
	Code        string      `db:"code" json:"code"`
	Name        string      `db:"name" json:"name"`
	ScheduledBy *string     `db:"scheduled_by" json:"scheduled_by,omitempty"`
	Status      BatchStatus `db:"status" json:"status"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// Range returns the batch dates as a DateRange.
func (b Batch) Range() DateRange {
	return DateRange{From: b.FromDate, To: b.ToDate}
}

// BatchFilter narrows batch listings.
type BatchFilter struct {
	PersonID string
	Window   *DateRange
	Newest   bool
}

// DateRange is a closed interval of calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// ParseDateRange parses two YYYY-MM-DD dates and rejects inverted ranges.
func ParseDateRange(from, to string) (DateRange, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid from_date %q", from)
	}
	t, err := time.Parse(DateLayout, to)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid to_date %q", to)
	}
	r := DateRange{From: f, To: t}
	if r.From.After(r.To) {
		return DateRange{}, fmt.Errorf("from_date %s is after to_date %s", from, to)
	}
	return r, nil
}

// Overlaps reports whether both closed ranges share at least one day.
// Ranges that only touch at an endpoint overlap.
func (r DateRange) Overlaps(other DateRange) bool {
	return !Day(r.From).After(Day(other.To)) && !Day(r.To).Before(Day(other.From))
}

// Days returns the number of calendar days covered, both ends included.
func (r DateRange) Days() int {
	return int(Day(r.To).Sub(Day(r.From)).Hours()/24) + 1
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DeriveBatchStatus maps a date range and the current day to a lifecycle state.
func DeriveBatchStatus(from, to, today time.Time) BatchStatus {
	f, t, now := Day(from), Day(to), Day(today)
	switch {
	case f.After(now):
		return BatchStatusUpcoming
	case !t.Before(now):
		return BatchStatusOngoing
	default:
		return BatchStatusCompleted
	}
}

// BookBatchRequest books a person onto a course.
type BookBatchRequest struct {
	PersonID string `json:"person_id" validate:"required,uuid"`
	CourseID string `json:"course_id" validate:"required,uuid"`
	BranchID string `json:"branch_id" validate:"omitempty,uuid"`
	FromDate string `json:"from_date" validate:"required,datetime=2006-01-02"`
	ToDate   string `json:"to_date" validate:"required,datetime=2006-01-02"`
	Code     string `json:"code" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=255"`
}

// UpdateBatchRequest partially edits a batch. Status is never client writable.
type UpdateBatchRequest struct {
	PersonID *string `json:"person_id" validate:"omitempty,uuid"`
	CourseID *string `json:"course_id" validate:"omitempty,uuid"`
	BranchID *string `json:"branch_id" validate:"omitempty,uuid"`
	FromDate *string `json:"from_date" validate:"omitempty,datetime=2006-01-02"`
	ToDate   *string `json:"to_date" validate:"omitempty,datetime=2006-01-02"`
	Code     *string `json:"code" validate:"omitempty,min=1,max=64"`
	Name     *string `json:"name" validate:"omitempty,min=1,max=255"`
}

// ConflictQuery describes a proposed booking to check against existing ones.
type ConflictQuery struct {
	PersonID       string `json:"person_id" validate:"required,uuid"`
	CourseID       string `json:"course_id" validate:"omitempty,uuid"`
	BranchID       string `json:"branch_id" validate:"omitempty,uuid"`
	FromDate       string `json:"from_date" validate:"required,datetime=2006-01-02"`
	ToDate         string `json:"to_date" validate:"required,datetime=2006-01-02"`
	ExcludeBatchID string `json:"exclude_batch_id" validate:"omitempty,uuid"`
}

// ConflictResult answers a pre-flight conflict check.
type ConflictResult struct {
	Conflict  bool          `json:"conflict"`
	Scope     ConflictScope `json:"scope"`
	Conflicts []Batch       `json:"conflicts"`
}

// AvailabilityRequest asks which qualified persons are free in a window.
type AvailabilityRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
	BranchID string `json:"branch_id" validate:"omitempty,uuid"`
	FromDate string `json:"from_date" validate:"required,datetime=2006-01-02"`
	ToDate   string `json:"to_date" validate:"required,datetime=2006-01-02"`
}

// BatchConflictError reports the existing batch that blocks a booking.
type BatchConflictError struct {
	PersonID string
	Existing Batch
}

func (e *BatchConflictError) Error() string {
	return fmt.Sprintf("person %s already booked from %s to %s (batch %s)",
		e.PersonID, e.Existing.FromDate.Format(DateLayout), e.Existing.ToDate.Format(DateLayout), e.Existing.ID)
}

// BatchOverlapFilter selects batches of a person whose dates overlap Range.
// Empty CourseID/BranchID/ExcludeID are ignored.
type BatchOverlapFilter struct {
	PersonID  string
	CourseID  string
	BranchID  string
	ExcludeID string
	Range     DateRange
}

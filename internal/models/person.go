package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// PersonRole distinguishes the two kinds of bookable staff.
type PersonRole string

const (
	PersonRoleInstructor PersonRole = "INSTRUCTOR"
	PersonRoleInspector  PersonRole = "INSPECTOR"
)

// Valid reports whether the role is known.
func (r PersonRole) Valid() bool {
	return r == PersonRoleInstructor || r == PersonRoleInspector
}

// Label returns the lower-case noun used in messages, e.g. "instructor".
func (r PersonRole) Label() string {
	return strings.ToLower(string(r))
}

// Person is an instructor or inspector that can be booked into batches.
type Person struct {
	ID           string         `db:"id" json:"id"`
	Role         PersonRole     `db:"role" json:"role"`
	Name         string         `db:"name" json:"name"`
	Email        string         `db:"email" json:"email"`
	Phone        *string        `db:"phone" json:"phone,omitempty"`
	TotalBatches int            `db:"total_batches" json:"total_batches"`
	CourseIDs    pq.StringArray `db:"course_ids" json:"course_ids"`
	BranchIDs    pq.StringArray `db:"branch_ids" json:"branch_ids"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`

	Courses []CourseRef `db:"-" json:"courses,omitempty"`
}

// PersonFilter captures filtering options for listing persons.
type PersonFilter struct {
	Role     PersonRole
	CourseID string
	BranchID string
	Search   string
	Page     int
	PageSize int
}

// CreatePersonRequest registers a new instructor or inspector.
type CreatePersonRequest struct {
	Name         string       `json:"name" validate:"required,max=255"`
	Email        string       `json:"email" validate:"required,email"`
	Phone        string       `json:"phone" validate:"omitempty,phone"`
	CourseIDs    []string     `json:"course_ids" validate:"omitempty,dive,uuid"`
	BranchIDs    []string     `json:"branch_ids" validate:"omitempty,dive,uuid"`
	AssignPolicy AssignPolicy `json:"assign_policy" validate:"omitempty,oneof=ALL NONE"`
}

// UpdatePersonRequest edits a person. Nil fields are left untouched; the
// batch counter is never client writable.
type UpdatePersonRequest struct {
	Name         *string      `json:"name" validate:"omitempty,min=1,max=255"`
	Email        *string      `json:"email" validate:"omitempty,email"`
	Phone        *string      `json:"phone" validate:"omitempty,phone"`
	CourseIDs    *[]string    `json:"course_ids" validate:"omitempty,dive,uuid"`
	BranchIDs    *[]string    `json:"branch_ids" validate:"omitempty,dive,uuid"`
	AssignPolicy AssignPolicy `json:"assign_policy" validate:"omitempty,oneof=ALL NONE"`
}

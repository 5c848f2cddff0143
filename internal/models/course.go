package models

import (
	"time"

	"github.com/lib/pq"
)

// Course is a training programme offered at branches and taught by persons.
type Course struct {
	ID           string         `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Description  *string        `db:"description" json:"description,omitempty"`
	DurationDays int            `db:"duration_days" json:"duration_days"`
	BranchIDs    pq.StringArray `db:"branch_ids" json:"branch_ids"`
	PersonIDs    pq.StringArray `db:"person_ids" json:"person_ids"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// CourseRef is the compact course shape embedded in person responses.
type CourseRef struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// CreateCourseRequest creates a course and links it to branches and persons.
type CreateCourseRequest struct {
	Name         string       `json:"name" validate:"required,max=255"`
	Description  *string      `json:"description"`
	DurationDays int          `json:"duration_days" validate:"required,min=1"`
	BranchIDs    []string     `json:"branch_ids" validate:"omitempty,dive,uuid"`
	PersonIDs    []string     `json:"person_ids" validate:"omitempty,dive,uuid"`
	AssignPolicy AssignPolicy `json:"assign_policy" validate:"omitempty,oneof=ALL NONE"`
}

// UpdateCourseRequest edits a course; reference lists replace the stored ones.
type UpdateCourseRequest struct {
	Name         *string      `json:"name" validate:"omitempty,min=1,max=255"`
	Description  *string      `json:"description"`
	DurationDays *int         `json:"duration_days" validate:"omitempty,min=1"`
	BranchIDs    *[]string    `json:"branch_ids" validate:"omitempty,dive,uuid"`
	PersonIDs    *[]string    `json:"person_ids" validate:"omitempty,dive,uuid"`
	AssignPolicy AssignPolicy `json:"assign_policy" validate:"omitempty,oneof=ALL NONE"`
}

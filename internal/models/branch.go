package models

import (
	"time"

	"github.com/lib/pq"
)

// Branch is a physical training location.
type Branch struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Country   string         `db:"country" json:"country"`
	Code      string         `db:"code" json:"code"`
	Address   *string        `db:"address" json:"address,omitempty"`
	CourseIDs pq.StringArray `db:"course_ids" json:"course_ids"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// CreateBranchRequest creates a branch with an optional course list.
type CreateBranchRequest struct {
	Name         string       `json:"name" validate:"required,max=255"`
	Country      string       `json:"country" validate:"required,max=128"`
	Code         string       `json:"code" validate:"required,max=32"`
	Address      *string      `json:"address"`
	CourseIDs    []string     `json:"course_ids" validate:"omitempty,dive,uuid"`
	AssignPolicy AssignPolicy `json:"assign_policy" validate:"omitempty,oneof=ALL NONE"`
}

// UpdateBranchRequest edits a branch.
type UpdateBranchRequest struct {
	Name         *string      `json:"name" validate:"omitempty,min=1,max=255"`
	Country      *string      `json:"country" validate:"omitempty,min=1,max=128"`
	Code         *string      `json:"code" validate:"omitempty,min=1,max=32"`
	Address      *string      `json:"address"`
	CourseIDs    *[]string    `json:"course_ids" validate:"omitempty,dive,uuid"`
	AssignPolicy AssignPolicy `json:"assign_policy" validate:"omitempty,oneof=ALL NONE"`
}

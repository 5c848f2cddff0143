package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleScheduler  UserRole = "SCHEDULER"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	Role         UserRole   `db:"role" json:"role"`
	TimeZone     string     `db:"time_zone" json:"time_zone"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName joins the first and last name.
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CreateUserRequest registers a new user. Only authenticated admins may call it.
type CreateUserRequest struct {
	Email     string   `json:"email" validate:"required,email"`
	Password  string   `json:"password" validate:"required,min=6"`
	FirstName string   `json:"first_name" validate:"required"`
	LastName  string   `json:"last_name"`
	Phone     string   `json:"phone" validate:"omitempty,phone"`
	Role      UserRole `json:"role" validate:"omitempty,oneof=SUPERADMIN ADMIN SCHEDULER"`
	TimeZone  string   `json:"time_zone" validate:"omitempty,timezone"`
}

// UpdateUserRequest edits profile fields. Password changes use a dedicated endpoint.
type UpdateUserRequest struct {
	Email     *string   `json:"email" validate:"omitempty,email"`
	FirstName *string   `json:"first_name" validate:"omitempty,min=1"`
	LastName  *string   `json:"last_name"`
	Phone     *string   `json:"phone" validate:"omitempty,phone"`
	Role      *UserRole `json:"role" validate:"omitempty,oneof=SUPERADMIN ADMIN SCHEDULER"`
	TimeZone  *string   `json:"time_zone" validate:"omitempty,timezone"`
	Active    *bool     `json:"active"`
	Password  *string   `json:"password"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

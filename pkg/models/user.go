package models

// UserRole is the marketplace-side role of a user
type UserRole string

const (
	RoleEmployer  UserRole = "employer"
	RoleJobSeeker UserRole = "job_seeker"
)

// User is the identity-provider view of a user consumed by the core.
// The core never writes this table; it only resolves IDs to role and name.
type User struct {
	ID   string   `json:"id" db:"id"`
	Name string   `json:"name" db:"name"`
	Role UserRole `json:"role" db:"role"`
}

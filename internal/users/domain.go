package users

import "time"

// User represents a user account for management.
type User struct {
	ID        int64
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the detail view of a user: the account plus the RBAC state
// an administrator needs when editing access.
type Profile struct {
	User        User
	Roles       []string
	Direct      []string
	Permissions []string
}

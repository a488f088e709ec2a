// Package orgs manages organizations, the tenant unit of the platform.
package orgs

import "time"

// Organization represents a tenant.
type Organization struct {
	ID        int64
	PublicID  string
	Name      string
	Slug      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member links a user to an organization.
type Member struct {
	OrgID     int64
	UserID    int64
	CreatedAt time.Time
}

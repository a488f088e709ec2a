// Package rbac implements the platform authorization core: the permission
// registry, the role model, the pure authorization engine and the
// sensitive-operation gate.
package rbac

import "time"

// RoleKind discriminates seeded system roles from admin-managed ones.
type RoleKind string

const (
	// RoleKindSystem marks roles created at bootstrap. They cannot be
	// deleted or re-pointed at a different permission set at runtime.
	RoleKindSystem RoleKind = "system"
	// RoleKindRegular marks roles managed through the admin API.
	RoleKindRegular RoleKind = "regular"
)

// Permission represents an atomic capability named resource:action.
type Permission struct {
	ID          int64
	Name        string
	Resource    string
	Action      string
	Description string
}

// Role represents a named permission grouping.
type Role struct {
	ID          int64
	Code        string
	Name        string
	Description string
	Kind        RoleKind
	// IsTopTier marks the single elevated tier allowed to perform
	// sensitive operations. Decoupled from Code and Name on purpose:
	// the gate must never depend on display strings.
	IsTopTier   bool
	Permissions []Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}

// Principal is the evaluation-time view of a user: direct grants plus all
// held roles with their permissions loaded. It is a derived snapshot,
// recomputed from current role and grant state, never persisted.
type Principal struct {
	UserID int64  `json:"user_id"`
	Direct []string `json:"direct"`
	Roles  []Role `json:"roles"`
}

// SensitiveOperation names an operation restricted to the top role tier.
// The set is closed: it grows only by code change, never by data.
type SensitiveOperation string

const (
	OpDeleteRole           SensitiveOperation = "delete_role"
	OpModifySystemRoles    SensitiveOperation = "modify_system_roles"
	OpAssignSuperAdmin     SensitiveOperation = "assign_super_admin"
	OpModifyPermissions    SensitiveOperation = "modify_permissions"
	OpAccessSystemSettings SensitiveOperation = "access_system_settings"
)

// SensitiveOperations lists every gated operation.
func SensitiveOperations() []SensitiveOperation {
	return []SensitiveOperation{
		OpDeleteRole,
		OpModifySystemRoles,
		OpAssignSuperAdmin,
		OpModifyPermissions,
		OpAccessSystemSettings,
	}
}

// Valid reports whether op belongs to the closed operation set.
func (op SensitiveOperation) Valid() bool {
	switch op {
	case OpDeleteRole, OpModifySystemRoles, OpAssignSuperAdmin, OpModifyPermissions, OpAccessSystemSettings:
		return true
	}
	return false
}

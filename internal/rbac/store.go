package rbac

import "context"

// PermissionStore persists the permission registry.
type PermissionStore interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermissionByName(ctx context.Context, name string) (Permission, error)
	InsertPermission(ctx context.Context, p Permission) (Permission, error)
}

// RoleStore persists roles, role-permission assignments and user
// memberships. Multi-step methods are transactional: either every step is
// applied or none is.
type RoleStore interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByCode(ctx context.Context, code string) (Role, error)
	// InsertRole creates the role and attaches its permissions atomically.
	InsertRole(ctx context.Context, role Role, permissionIDs []int64) (Role, error)
	// ReplaceRolePermissions swaps the role's permission set atomically
	// and returns the IDs of users holding the role, read under the same
	// lock as the swap so the caller invalidates exactly the affected
	// principals. Only regular roles are touched; a system role is left
	// unchanged and reported via ErrSystemRoleImmutable.
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) ([]int64, error)
	// DeleteRoleCascade removes every user assignment referencing the role
	// and then the role itself, in one transaction, returning the IDs of
	// the users whose assignment was removed.
	DeleteRoleCascade(ctx context.Context, roleID int64) ([]int64, error)

	AssignRoleToUser(ctx context.Context, userID, roleID int64) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error
	GrantPermissionToUser(ctx context.Context, userID, permissionID int64) error
	RevokePermissionFromUser(ctx context.Context, userID, permissionID int64) error
}

// Store aggregates every persistence port the rbac module needs.
type Store interface {
	PermissionStore
	RoleStore
	PrincipalStore
}

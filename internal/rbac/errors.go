package rbac

import "errors"

var (
	// ErrInvalidPermissionFormat indicates a permission name outside the
	// resource:action grammar, or a wildcard passed where a concrete name
	// is required. A caller bug, never retried.
	ErrInvalidPermissionFormat = errors.New("rbac: invalid permission format")
	// ErrUnknownPermission indicates a permission name absent from the registry.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
	// ErrUnknownRole indicates a role reference that does not resolve.
	ErrUnknownRole = errors.New("rbac: unknown role")
	// ErrUnknownPrincipal indicates a user reference that does not resolve.
	// Kept distinct from a denied check so configuration bugs never
	// masquerade as authorization denials.
	ErrUnknownPrincipal = errors.New("rbac: unknown principal")
	// ErrDuplicatePermission indicates a registry uniqueness violation.
	ErrDuplicatePermission = errors.New("rbac: permission already registered")
	// ErrDuplicateRoleName indicates a role code uniqueness violation.
	ErrDuplicateRoleName = errors.New("rbac: role name already taken")
	// ErrSystemRoleImmutable indicates an attempted mutation of a system role.
	ErrSystemRoleImmutable = errors.New("rbac: system role is immutable")
	// ErrUnknownOperation indicates a sensitive operation outside the closed set.
	ErrUnknownOperation = errors.New("rbac: unknown sensitive operation")
)

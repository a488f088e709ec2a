package shared

// Core platform permissions.
const (
	PermUsersCreate = "users:create"
	PermUsersRead   = "users:read"
	PermUsersUpdate = "users:update"
	PermUsersDelete = "users:delete"
	PermUsersManage = "users:manage"

	PermRolesRead   = "roles:read"
	PermRolesManage = "roles:manage"

	PermPermissionsRead = "permissions:read"

	PermOrgsCreate = "orgs:create"
	PermOrgsRead   = "orgs:read"
	PermOrgsUpdate = "orgs:update"
	PermOrgsDelete = "orgs:delete"

	PermReportsRead   = "reports:read"
	PermSupportManage = "support:manage"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersCreate,
		PermUsersRead,
		PermUsersUpdate,
		PermUsersDelete,
		PermUsersManage,
		PermRolesRead,
		PermRolesManage,
		PermPermissionsRead,
		PermOrgsCreate,
		PermOrgsRead,
		PermOrgsUpdate,
		PermOrgsDelete,
		PermReportsRead,
		PermSupportManage,
	}
}

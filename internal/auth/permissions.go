package auth

// Built-in permission keys guarding the service's own administrative
// surface. Convention: resource.action.
const (
	PermissionManageUsers  = "users.manage"
	PermissionManageRoles  = "roles.manage"
	PermissionManageGroups = "groups.manage"
	PermissionReadUsers    = "users.read"
)

// systemGroupName is the permission group that owns the built-ins.
const systemGroupName = "System"

var BuiltinPermissions = []Permission{
	{Key: PermissionManageUsers, Description: "Create and manage user accounts"},
	{Key: PermissionManageRoles, Description: "Create roles and edit their permissions"},
	{Key: PermissionManageGroups, Description: "Restructure role and permission group trees"},
	{Key: PermissionReadUsers, Description: "List and inspect user accounts"},
}

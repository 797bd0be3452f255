package models

// RoleName is the closed set of roles a user can hold. Roles are seeded
// reference data and are never created by normal request flow.
type RoleName string

const (
	RoleUser       RoleName = "USER"
	RoleAdmin      RoleName = "ADMIN"
	RoleSuperAdmin RoleName = "SUPERADMIN"
)

// Valid reports whether the name is one of the seeded roles.
func (n RoleName) Valid() bool {
	switch n {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// AdminRoles is the allow-list for administrative endpoints.
func AdminRoles() []RoleName {
	return []RoleName{RoleAdmin, RoleSuperAdmin}
}

// Role describes a permission grouping that can be assigned to users.
type Role struct {
	ID   uint     `gorm:"primaryKey;autoIncrement"`
	Name RoleName `gorm:"type:text;uniqueIndex;not null"`
}

func (Role) TableName() string { return "roles" }

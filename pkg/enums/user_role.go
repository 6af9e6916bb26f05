package enums

import "fmt"

// UserRole identifies the platform role carried in access tokens.
type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleAgent    UserRole = "agent"
	UserRoleLandlord UserRole = "landlord"
	UserRoleTenant   UserRole = "tenant"
)

func (r UserRole) String() string {
	return string(r)
}

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleAdmin, UserRoleAgent, UserRoleLandlord, UserRoleTenant:
		return true
	default:
		return false
	}
}

// ParseUserRole converts a raw string into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	role := UserRole(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid user role %q", value)
	}
	return role, nil
}

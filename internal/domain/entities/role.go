package entities

import (
	"fmt"
	"strings"
)

// RoleLevel is an ordered rank; higher levels inherit every permission of the
// levels below them.
type RoleLevel int

const (
	RoleViewer RoleLevel = iota + 1
	RoleStaff
	RoleNurse
	RoleDoctor
	RoleDispatcher
	RoleDepartmentHead
	RoleFacilityAdmin
	RoleSystemAdmin
)

var roleNames = map[RoleLevel]string{
	RoleViewer:         "viewer",
	RoleStaff:          "staff",
	RoleNurse:          "nurse",
	RoleDoctor:         "doctor",
	RoleDispatcher:     "dispatcher",
	RoleDepartmentHead: "department_head",
	RoleFacilityAdmin:  "facility_admin",
	RoleSystemAdmin:    "system_admin",
}

// ParseRoleLevel maps a role name to its rank
func ParseRoleLevel(name string) (RoleLevel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for level, n := range roleNames {
		if n == name {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

// AtLeast reports whether r ranks at or above min
func (r RoleLevel) AtLeast(min RoleLevel) bool {
	return r >= min
}

func (r RoleLevel) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("role(%d)", int(r))
}

package rbac

import (
	"fmt"
	"strings"
)

// Role is the closed set of user roles. Anything else fails ParseRole, so
// role checks elsewhere can switch exhaustively.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleTeacher, RoleStudent}

func ParseRole(s string) (Role, error) {
	want := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, r := range Roles {
		if r == want {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string { return string(r) }

// Actor is the authenticated caller as seen by authorization checks.
type Actor struct {
	ID   string
	Role Role
}

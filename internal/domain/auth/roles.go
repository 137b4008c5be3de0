package auth

import (
	"context"
	"slices"
)

// UserContext is the authenticated caller attached to a request.
type UserContext struct {
	UserID   string
	RoleName string
}

// StaticPermissions answers permission checks from RolePermissions. Role
// names compare case-sensitively.
type StaticPermissions struct {
	roles map[string][]string
}

func NewStaticPermissions(roles map[string][]string) *StaticPermissions {
	if roles == nil {
		roles = RolePermissions
	}
	return &StaticPermissions{roles: roles}
}

func (p *StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	return slices.Contains(p.roles[role], permission), nil
}

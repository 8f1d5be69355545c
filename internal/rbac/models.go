package rbac

import (
	"slices"
	"strings"
	"time"
)

// Built-in role names. Roles are reference data seeded at bootstrap;
// DefaultRole must always exist (its absence is a fatal configuration error).
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
	RoleEditor     = "editor"
	RoleViewer     = "viewer"

	DefaultRole = RoleViewer
)

// PermissionWildcard grants every permission when present in a role's set.
const PermissionWildcard = "*"

// Role is an RBAC role definition. Weight orders the role hierarchy:
// higher weight wins when a user's groups map to multiple roles.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	Weight      int       `json:"weight"`
	Permissions []string  `json:"permissions"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasPermission reports whether the role grants perm, either literally
// or via the wildcard.
func (r *Role) HasPermission(perm string) bool {
	if slices.Contains(r.Permissions, PermissionWildcard) {
		return true
	}
	return slices.Contains(r.Permissions, perm)
}

// HasAnyPermission reports whether the role grants at least one of perms.
func (r *Role) HasAnyPermission(perms []string) bool {
	if slices.Contains(r.Permissions, PermissionWildcard) {
		return true
	}
	for _, p := range perms {
		if slices.Contains(r.Permissions, p) {
			return true
		}
	}
	return false
}

// SuperadminEntry is one email on the superadmin whitelist.
// Matching is case-insensitive on the email.
type SuperadminEntry struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	AddedByEmail string    `json:"added_by_email"`
	Notes        string    `json:"notes,omitempty"`
	Enabled      bool      `json:"enabled"`
	AddedAt      time.Time `json:"added_at"`
}

// GroupRoleMapping maps one identity-provider group to a role.
// At most one enabled mapping may exist per group name.
type GroupRoleMapping struct {
	ID             int64     `json:"id"`
	GroupName      string    `json:"group_name"`
	RoleName       string    `json:"role_name"`
	Weight         int       `json:"weight"`
	Description    string    `json:"description,omitempty"`
	Enabled        bool      `json:"enabled"`
	CreatedByEmail string    `json:"created_by_email,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserContext is the resolved authorization snapshot for one request.
// It is built fresh per request (group membership can change between
// requests) and never mutated after construction.
type UserContext struct {
	UserID       string   `json:"user_id"`
	Email        string   `json:"email"`
	TenantID     string   `json:"tenant_id,omitempty"`
	IsSuperadmin bool     `json:"is_superadmin"`
	Role         Role     `json:"role"`
	Groups       []string `json:"groups"`
}

// HasPermission reports whether the user may perform perm.
// Superadmins hold every permission unconditionally.
func (u *UserContext) HasPermission(perm string) bool {
	if u.IsSuperadmin {
		return true
	}
	return u.Role.HasPermission(perm)
}

// HasAnyPermission reports whether the user holds at least one of perms.
func (u *UserContext) HasAnyPermission(perms []string) bool {
	if u.IsSuperadmin {
		return true
	}
	return u.Role.HasAnyPermission(perms)
}

// CanAccess checks a resource:action permission pair, e.g. CanAccess("agents", "list").
func (u *UserContext) CanAccess(resource, action string) bool {
	return u.HasPermission(resource + ":" + action)
}

// AuditEntry is one immutable record in the RBAC audit log.
type AuditEntry struct {
	ID             int64          `json:"id"`
	Action         string         `json:"action"`
	PerformedBy    string         `json:"performed_by"`
	TargetResource string         `json:"target_resource"`
	TargetID       string         `json:"target_id,omitempty"`
	OldValue       map[string]any `json:"old_value,omitempty"`
	NewValue       map[string]any `json:"new_value,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NormalizeEmail lowercases an email for whitelist comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

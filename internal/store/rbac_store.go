package store

import (
	"context"

	"github.com/nextlevelbuilder/agentgate/internal/rbac"
)

// RoleMappingPatch is a partial update to a group→role mapping.
// Nil fields are left unchanged.
type RoleMappingPatch struct {
	RoleName    *string
	Weight      *int
	Description *string
	Enabled     *bool
}

// RBACStore persists RBAC reference data: roles, the superadmin
// whitelist, group→role mappings, and the append-only audit log.
// Roles and mappings are read on every authorization decision and
// mutated only by rare administrative operations.
type RBACStore interface {
	// GetRole returns the role by name, or ErrNotFound.
	GetRole(ctx context.Context, name string) (*rbac.Role, error)

	// ListRoles returns all roles ordered by weight descending.
	ListRoles(ctx context.Context) ([]rbac.Role, error)

	// IsSuperadmin reports whether email has an enabled whitelist entry.
	// Matching is case-insensitive.
	IsSuperadmin(ctx context.Context, email string) (bool, error)

	// ListSuperadmins returns all whitelist entries, enabled first.
	ListSuperadmins(ctx context.Context) ([]rbac.SuperadminEntry, error)

	// AddSuperadmin inserts a whitelist entry and returns it.
	AddSuperadmin(ctx context.Context, email, addedBy, notes string) (*rbac.SuperadminEntry, error)

	// RemoveSuperadmin deletes the whitelist entry for email.
	// Returns false when no entry existed.
	RemoveSuperadmin(ctx context.Context, email string) (bool, error)

	// RoleMappings returns group→role mappings, optionally restricted to
	// enabled ones, ordered by group name.
	RoleMappings(ctx context.Context, enabledOnly bool) ([]rbac.GroupRoleMapping, error)

	// RoleMappingsForGroups returns the enabled mappings whose group name
	// is in groups.
	RoleMappingsForGroups(ctx context.Context, groups []string) ([]rbac.GroupRoleMapping, error)

	// RoleMappingByGroup returns the enabled mapping for a group name, or
	// ErrNotFound.
	RoleMappingByGroup(ctx context.Context, groupName string) (*rbac.GroupRoleMapping, error)

	// RoleMappingByID returns a mapping by id, or ErrNotFound.
	RoleMappingByID(ctx context.Context, id int64) (*rbac.GroupRoleMapping, error)

	// CreateRoleMapping inserts a mapping and returns it with its id.
	CreateRoleMapping(ctx context.Context, m *rbac.GroupRoleMapping) (*rbac.GroupRoleMapping, error)

	// UpdateRoleMapping applies patch to the mapping, returning the
	// updated row or ErrNotFound.
	UpdateRoleMapping(ctx context.Context, id int64, patch RoleMappingPatch) (*rbac.GroupRoleMapping, error)

	// DeleteRoleMapping removes a mapping. Returns false when absent.
	DeleteRoleMapping(ctx context.Context, id int64) (bool, error)

	// AppendAudit inserts one immutable audit record.
	AppendAudit(ctx context.Context, e *rbac.AuditEntry) error

	// ListAudit returns audit records newest first.
	ListAudit(ctx context.Context, limit, offset int) ([]rbac.AuditEntry, error)
}

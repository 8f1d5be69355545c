package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/agentgate/internal/routing"
	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// Service makes authorization decisions and guards the administrative
// mutations on RBAC reference data. Every mutation follows the same
// pattern: permission predicate, invariant re-validation, write, audit.
type Service struct {
	store store.RBACStore
}

// NewService creates an RBAC service over the given store.
func NewService(s store.RBACStore) *Service {
	return &Service{store: s}
}

// VerifyDefaultRole confirms the fallback role exists. Called once at
// startup; a missing default role aborts the process rather than
// failing per request.
func (s *Service) VerifyDefaultRole(ctx context.Context) error {
	if _, err := s.store.GetRole(ctx, DefaultRole); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrDefaultRoleMissing, DefaultRole)
		}
		return fmt.Errorf("verify default role: %w", err)
	}
	return nil
}

// Resolve builds the authorization context for one authenticated
// request. The superadmin whitelist is checked first so a misconfigured
// group mapping can never downgrade a superadmin; otherwise the
// highest-weight enabled group→role mapping wins, and users with no
// mapped group get the default role.
func (s *Service) Resolve(ctx context.Context, userID, email, tenantID string, groups []string) (*UserContext, error) {
	isSuper, err := s.store.IsSuperadmin(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("superadmin check: %w", err)
	}

	var role *Role
	switch {
	case isSuper:
		role, err = s.store.GetRole(ctx, RoleSuperadmin)
		if errors.Is(err, store.ErrNotFound) {
			// Whitelist membership alone grants everything; a missing
			// superadmin role row is not allowed to lock an operator out.
			role = &Role{Name: RoleSuperadmin, Weight: 1000, Permissions: []string{PermissionWildcard}, Enabled: true}
			err = nil
		}
		if err != nil {
			return nil, fmt.Errorf("load superadmin role: %w", err)
		}
		slog.Info("rbac.resolved_superadmin", "email", email)

	default:
		role, err = s.roleFromGroups(ctx, email, groups)
		if err != nil {
			return nil, err
		}
	}

	return &UserContext{
		UserID:       userID,
		Email:        email,
		TenantID:     tenantID,
		IsSuperadmin: isSuper,
		Role:         *role,
		Groups:       groups,
	}, nil
}

// roleFromGroups runs the weighted resolver over the role-mapping table
// and falls back to the default role when nothing matches.
func (s *Service) roleFromGroups(ctx context.Context, email string, groups []string) (*Role, error) {
	mappings, err := s.store.RoleMappingsForGroups(ctx, groups)
	if err != nil {
		return nil, fmt.Errorf("load role mappings: %w", err)
	}

	candidates := make([]routing.Mapping, 0, len(mappings))
	for _, m := range mappings {
		candidates = append(candidates, routing.Mapping{
			GroupName: m.GroupName,
			Target:    m.RoleName,
			Weight:    m.Weight,
		})
	}

	if best := routing.Resolve(groups, candidates); best != nil {
		role, err := s.store.GetRole(ctx, best.Target)
		if err == nil && role.Enabled {
			slog.Info("rbac.resolved_role", "email", email, "role", role.Name, "group", best.GroupName, "weight", best.Weight)
			return role, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load role %q: %w", best.Target, err)
		}
		// Mapping points at a deleted or disabled role; fall through to
		// the default rather than failing authentication.
		slog.Warn("rbac.mapped_role_unavailable", "email", email, "role", best.Target, "group", best.GroupName)
	}

	role, err := s.store.GetRole(ctx, DefaultRole)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrDefaultRoleMissing, DefaultRole)
		}
		return nil, fmt.Errorf("load default role: %w", err)
	}
	slog.Info("rbac.resolved_default_role", "email", email, "role", role.Name)
	return role, nil
}

// ListRoles returns all roles, highest weight first.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// --- Superadmin whitelist management ---

// AddSuperadmin adds email to the whitelist. Superadmin-only.
func (s *Service) AddSuperadmin(ctx context.Context, actor *UserContext, email, notes, clientIP string) (*SuperadminEntry, error) {
	if !actor.IsSuperadmin {
		return nil, fmt.Errorf("%w: only superadmins can add superadmins", ErrPermissionDenied)
	}

	email = NormalizeEmail(email)
	if email == "" {
		return nil, Validationf("email is required")
	}
	already, err := s.store.IsSuperadmin(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("superadmin check: %w", err)
	}
	if already {
		return nil, Validationf("%s is already a superadmin", email)
	}

	entry, err := s.store.AddSuperadmin(ctx, email, actor.Email, notes)
	if err != nil {
		return nil, fmt.Errorf("add superadmin: %w", err)
	}

	if err := s.store.AppendAudit(ctx, &AuditEntry{
		Action:         "superadmin_added",
		PerformedBy:    actor.Email,
		TargetResource: "superadmin_whitelist",
		TargetID:       email,
		NewValue:       map[string]any{"email": email, "notes": notes},
		IPAddress:      clientIP,
	}); err != nil {
		return nil, fmt.Errorf("audit superadmin_added: %w", err)
	}

	slog.Info("rbac.superadmin_added", "email", email, "by", actor.Email)
	return entry, nil
}

// RemoveSuperadmin removes email from the whitelist. Superadmin-only.
// Removing the last enabled entry is rejected so the system can never
// end up without a superadmin.
func (s *Service) RemoveSuperadmin(ctx context.Context, actor *UserContext, email, clientIP string) (bool, error) {
	if !actor.IsSuperadmin {
		return false, fmt.Errorf("%w: only superadmins can remove superadmins", ErrPermissionDenied)
	}

	email = NormalizeEmail(email)
	entries, err := s.store.ListSuperadmins(ctx)
	if err != nil {
		return false, fmt.Errorf("list superadmins: %w", err)
	}
	enabled := 0
	targetEnabled := false
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		enabled++
		if NormalizeEmail(e.Email) == email {
			targetEnabled = true
		}
	}
	if targetEnabled && enabled <= 1 {
		return false, Validationf("cannot remove the last superadmin")
	}

	removed, err := s.store.RemoveSuperadmin(ctx, email)
	if err != nil {
		return false, fmt.Errorf("remove superadmin: %w", err)
	}
	if !removed {
		return false, nil
	}

	if err := s.store.AppendAudit(ctx, &AuditEntry{
		Action:         "superadmin_removed",
		PerformedBy:    actor.Email,
		TargetResource: "superadmin_whitelist",
		TargetID:       email,
		OldValue:       map[string]any{"email": email},
		IPAddress:      clientIP,
	}); err != nil {
		return false, fmt.Errorf("audit superadmin_removed: %w", err)
	}

	slog.Info("rbac.superadmin_removed", "email", email, "by", actor.Email)
	return true, nil
}

// ListSuperadmins returns the whitelist. Superadmin-only.
func (s *Service) ListSuperadmins(ctx context.Context, actor *UserContext) ([]SuperadminEntry, error) {
	if !actor.IsSuperadmin {
		return nil, fmt.Errorf("%w: only superadmins can view the superadmin list", ErrPermissionDenied)
	}
	return s.store.ListSuperadmins(ctx)
}

// --- Group→role mapping management ---

// CreateRoleMapping creates a group→role mapping. Superadmin-only.
// The role must exist and the group must not already have an enabled
// mapping (at most one enabled mapping per group name).
func (s *Service) CreateRoleMapping(ctx context.Context, actor *UserContext, m *GroupRoleMapping, clientIP string) (*GroupRoleMapping, error) {
	if !actor.IsSuperadmin {
		return nil, fmt.Errorf("%w: only superadmins can create group-role mappings", ErrPermissionDenied)
	}
	if m.GroupName == "" {
		return nil, Validationf("group_name is required")
	}

	if _, err := s.store.GetRole(ctx, m.RoleName); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Validationf("role %q does not exist", m.RoleName)
		}
		return nil, fmt.Errorf("load role %q: %w", m.RoleName, err)
	}

	existing, err := s.store.RoleMappingByGroup(ctx, m.GroupName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing mapping: %w", err)
	}
	if existing != nil {
		return nil, Validationf("an enabled mapping for group %q already exists", m.GroupName)
	}

	m.CreatedByEmail = actor.Email
	m.Enabled = true
	created, err := s.store.CreateRoleMapping(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("create role mapping: %w", err)
	}

	if err := s.store.AppendAudit(ctx, &AuditEntry{
		Action:         "group_role_mapping_created",
		PerformedBy:    actor.Email,
		TargetResource: "group_role_mappings",
		TargetID:       m.GroupName,
		NewValue: map[string]any{
			"group_name": created.GroupName,
			"role_name":  created.RoleName,
			"weight":     created.Weight,
		},
		IPAddress: clientIP,
	}); err != nil {
		return nil, fmt.Errorf("audit mapping_created: %w", err)
	}

	slog.Info("rbac.role_mapping_created", "group", created.GroupName, "role", created.RoleName, "by", actor.Email)
	return created, nil
}

// UpdateRoleMapping patches a mapping. Superadmin-only. A changed role
// name must still reference an existing role.
func (s *Service) UpdateRoleMapping(ctx context.Context, actor *UserContext, id int64, patch store.RoleMappingPatch, clientIP string) (*GroupRoleMapping, error) {
	if !actor.IsSuperadmin {
		return nil, fmt.Errorf("%w: only superadmins can update group-role mappings", ErrPermissionDenied)
	}

	if patch.RoleName != nil {
		if _, err := s.store.GetRole(ctx, *patch.RoleName); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, Validationf("role %q does not exist", *patch.RoleName)
			}
			return nil, fmt.Errorf("load role %q: %w", *patch.RoleName, err)
		}
	}

	old, err := s.store.RoleMappingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateRoleMapping(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendAudit(ctx, &AuditEntry{
		Action:         "group_role_mapping_updated",
		PerformedBy:    actor.Email,
		TargetResource: "group_role_mappings",
		TargetID:       old.GroupName,
		OldValue:       map[string]any{"role_name": old.RoleName, "weight": old.Weight, "enabled": old.Enabled},
		NewValue:       map[string]any{"role_name": updated.RoleName, "weight": updated.Weight, "enabled": updated.Enabled},
		IPAddress:      clientIP,
	}); err != nil {
		return nil, fmt.Errorf("audit mapping_updated: %w", err)
	}

	slog.Info("rbac.role_mapping_updated", "id", id, "by", actor.Email)
	return updated, nil
}

// DeleteRoleMapping removes a mapping. Superadmin-only.
func (s *Service) DeleteRoleMapping(ctx context.Context, actor *UserContext, id int64, clientIP string) (bool, error) {
	if !actor.IsSuperadmin {
		return false, fmt.Errorf("%w: only superadmins can delete group-role mappings", ErrPermissionDenied)
	}

	old, err := s.store.RoleMappingByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	removed, err := s.store.DeleteRoleMapping(ctx, id)
	if err != nil || !removed {
		return removed, err
	}

	if err := s.store.AppendAudit(ctx, &AuditEntry{
		Action:         "group_role_mapping_deleted",
		PerformedBy:    actor.Email,
		TargetResource: "group_role_mappings",
		TargetID:       old.GroupName,
		OldValue:       map[string]any{"group_name": old.GroupName, "role_name": old.RoleName, "weight": old.Weight},
		IPAddress:      clientIP,
	}); err != nil {
		return false, fmt.Errorf("audit mapping_deleted: %w", err)
	}

	slog.Info("rbac.role_mapping_deleted", "id", id, "group", old.GroupName, "by", actor.Email)
	return true, nil
}

// ListRoleMappings returns group→role mappings. Requires the
// group_mappings:list permission.
func (s *Service) ListRoleMappings(ctx context.Context, actor *UserContext, enabledOnly bool) ([]GroupRoleMapping, error) {
	if !actor.HasPermission("group_mappings:list") {
		return nil, fmt.Errorf("%w: group_mappings:list required", ErrPermissionDenied)
	}
	return s.store.RoleMappings(ctx, enabledOnly)
}

// GetRoleMapping returns one mapping by id. Requires the
// group_mappings:view permission.
func (s *Service) GetRoleMapping(ctx context.Context, actor *UserContext, id int64) (*GroupRoleMapping, error) {
	if !actor.HasPermission("group_mappings:view") {
		return nil, fmt.Errorf("%w: group_mappings:view required", ErrPermissionDenied)
	}
	return s.store.RoleMappingByID(ctx, id)
}

// ListAudit returns the audit log, newest first. Superadmin-only.
func (s *Service) ListAudit(ctx context.Context, actor *UserContext, limit, offset int) ([]AuditEntry, error) {
	if !actor.IsSuperadmin {
		return nil, fmt.Errorf("%w: only superadmins can view the audit log", ErrPermissionDenied)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListAudit(ctx, limit, offset)
}

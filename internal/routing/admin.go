package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/agentgate/internal/rbac"
	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// AreaAdmin guards mutations on the group→area mapping table. Same
// discipline as the role-mapping mutations: permission predicate,
// invariant re-validation, write, audit.
type AreaAdmin struct {
	mappings store.AreaMappingStore
	audit    store.RBACStore
}

// NewAreaAdmin creates the area-mapping admin service.
func NewAreaAdmin(mappings store.AreaMappingStore, audit store.RBACStore) *AreaAdmin {
	return &AreaAdmin{mappings: mappings, audit: audit}
}

// List returns group→area mappings. Requires area_mappings:list.
func (a *AreaAdmin) List(ctx context.Context, actor *rbac.UserContext, enabledOnly bool) ([]store.AreaMapping, error) {
	if !actor.HasPermission("area_mappings:list") {
		return nil, fmt.Errorf("%w: area_mappings:list required", rbac.ErrPermissionDenied)
	}
	return a.mappings.Mappings(ctx, enabledOnly)
}

// Get returns one mapping by id. Requires area_mappings:view.
func (a *AreaAdmin) Get(ctx context.Context, actor *rbac.UserContext, id int64) (*store.AreaMapping, error) {
	if !actor.HasPermission("area_mappings:view") {
		return nil, fmt.Errorf("%w: area_mappings:view required", rbac.ErrPermissionDenied)
	}
	return a.mappings.MappingByID(ctx, id)
}

// Create inserts a mapping. Superadmin-only. At most one enabled
// mapping may exist per group name.
func (a *AreaAdmin) Create(ctx context.Context, actor *rbac.UserContext, m *store.AreaMapping, clientIP string) (*store.AreaMapping, error) {
	if !actor.IsSuperadmin {
		return nil, fmt.Errorf("%w: only superadmins can create group-area mappings", rbac.ErrPermissionDenied)
	}
	if m.GroupName == "" {
		return nil, rbac.Validationf("group_name is required")
	}
	if m.AreaType == "" {
		return nil, rbac.Validationf("area_type is required")
	}

	existing, err := a.mappings.MappingByGroup(ctx, m.GroupName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing mapping: %w", err)
	}
	if existing != nil {
		return nil, rbac.Validationf("an enabled mapping for group %q already exists", m.GroupName)
	}

	m.CreatedByEmail = actor.Email
	m.Enabled = true
	created, err := a.mappings.CreateMapping(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("create area mapping: %w", err)
	}

	if err := a.audit.AppendAudit(ctx, &rbac.AuditEntry{
		Action:         "group_area_mapping_created",
		PerformedBy:    actor.Email,
		TargetResource: "group_area_mappings",
		TargetID:       created.GroupName,
		NewValue: map[string]any{
			"group_name": created.GroupName,
			"area_type":  created.AreaType,
			"weight":     created.Weight,
		},
		IPAddress: clientIP,
	}); err != nil {
		return nil, fmt.Errorf("audit area_mapping_created: %w", err)
	}

	slog.Info("routing.area_mapping_created", "group", created.GroupName, "area", created.AreaType, "by", actor.Email)
	return created, nil
}

// Update patches a mapping. Superadmin-only.
func (a *AreaAdmin) Update(ctx context.Context, actor *rbac.UserContext, id int64, patch store.AreaMappingPatch, clientIP string) (*store.AreaMapping, error) {
	if !actor.IsSuperadmin {
		return nil, fmt.Errorf("%w: only superadmins can update group-area mappings", rbac.ErrPermissionDenied)
	}

	old, err := a.mappings.MappingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := a.mappings.UpdateMapping(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	if err := a.audit.AppendAudit(ctx, &rbac.AuditEntry{
		Action:         "group_area_mapping_updated",
		PerformedBy:    actor.Email,
		TargetResource: "group_area_mappings",
		TargetID:       old.GroupName,
		OldValue:       map[string]any{"area_type": old.AreaType, "weight": old.Weight, "enabled": old.Enabled},
		NewValue:       map[string]any{"area_type": updated.AreaType, "weight": updated.Weight, "enabled": updated.Enabled},
		IPAddress:      clientIP,
	}); err != nil {
		return nil, fmt.Errorf("audit area_mapping_updated: %w", err)
	}

	slog.Info("routing.area_mapping_updated", "id", id, "by", actor.Email)
	return updated, nil
}

// Delete removes a mapping. Superadmin-only.
func (a *AreaAdmin) Delete(ctx context.Context, actor *rbac.UserContext, id int64, clientIP string) (bool, error) {
	if !actor.IsSuperadmin {
		return false, fmt.Errorf("%w: only superadmins can delete group-area mappings", rbac.ErrPermissionDenied)
	}

	old, err := a.mappings.MappingByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	removed, err := a.mappings.DeleteMapping(ctx, id)
	if err != nil || !removed {
		return removed, err
	}

	if err := a.audit.AppendAudit(ctx, &rbac.AuditEntry{
		Action:         "group_area_mapping_deleted",
		PerformedBy:    actor.Email,
		TargetResource: "group_area_mappings",
		TargetID:       old.GroupName,
		OldValue:       map[string]any{"group_name": old.GroupName, "area_type": old.AreaType, "weight": old.Weight},
		IPAddress:      clientIP,
	}); err != nil {
		return false, fmt.Errorf("audit area_mapping_deleted: %w", err)
	}

	slog.Info("routing.area_mapping_deleted", "id", id, "group", old.GroupName, "by", actor.Email)
	return true, nil
}

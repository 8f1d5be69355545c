package store

import (
	"context"
	"time"
)

// AreaMapping maps one identity-provider group to an agent area type.
// At most one enabled mapping may exist per group name.
type AreaMapping struct {
	ID             int64     `json:"id"`
	GroupName      string    `json:"group_name"`
	AreaType       string    `json:"area_type"`
	Weight         int       `json:"weight"`
	Description    string    `json:"description,omitempty"`
	Enabled        bool      `json:"enabled"`
	CreatedByEmail string    `json:"created_by_email,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AreaMappingPatch is a partial update to a group→area mapping.
// Nil fields are left unchanged.
type AreaMappingPatch struct {
	AreaType    *string
	Weight      *int
	Description *string
	Enabled     *bool
}

// AreaMappingStore persists group→area mappings for agent routing.
// Same resolution contract as the role-mapping table.
type AreaMappingStore interface {
	// Mappings returns mappings ordered by weight descending, optionally
	// restricted to enabled ones.
	Mappings(ctx context.Context, enabledOnly bool) ([]AreaMapping, error)

	// MappingsForGroups returns the enabled mappings whose group name is
	// in groups.
	MappingsForGroups(ctx context.Context, groups []string) ([]AreaMapping, error)

	// MappingByGroup returns the enabled mapping for a group name, or
	// ErrNotFound.
	MappingByGroup(ctx context.Context, groupName string) (*AreaMapping, error)

	// MappingByID returns a mapping by id, or ErrNotFound.
	MappingByID(ctx context.Context, id int64) (*AreaMapping, error)

	// CreateMapping inserts a mapping and returns it with its id.
	CreateMapping(ctx context.Context, m *AreaMapping) (*AreaMapping, error)

	// UpdateMapping applies patch, returning the updated row or ErrNotFound.
	UpdateMapping(ctx context.Context, id int64, patch AreaMappingPatch) (*AreaMapping, error)

	// DeleteMapping removes a mapping. Returns false when absent.
	DeleteMapping(ctx context.Context, id int64) (bool, error)
}

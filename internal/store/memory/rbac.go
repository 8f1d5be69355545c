package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/agentgate/internal/rbac"
	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// RBACStore is an in-memory store.RBACStore.
type RBACStore struct {
	mu          sync.RWMutex
	roles       map[string]rbac.Role
	superadmins map[string]rbac.SuperadminEntry // keyed by normalized email
	mappings    map[int64]rbac.GroupRoleMapping
	audit       []rbac.AuditEntry
	nextID      int64
}

// NewRBACStore returns an empty RBAC store.
func NewRBACStore() *RBACStore {
	return &RBACStore{
		roles:       make(map[string]rbac.Role),
		superadmins: make(map[string]rbac.SuperadminEntry),
		mappings:    make(map[int64]rbac.GroupRoleMapping),
		nextID:      1,
	}
}

// PutRole inserts or replaces a role definition. Test and seed helper.
func (s *RBACStore) PutRole(r rbac.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.nextID
		s.nextID++
	}
	s.roles[r.Name] = r
}

func (s *RBACStore) GetRole(_ context.Context, name string) (*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *RBACStore) ListRoles(_ context.Context) ([]rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rbac.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *RBACStore) IsSuperadmin(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.superadmins[rbac.NormalizeEmail(email)]
	return ok && e.Enabled, nil
}

func (s *RBACStore) ListSuperadmins(_ context.Context) ([]rbac.SuperadminEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rbac.SuperadminEntry, 0, len(s.superadmins))
	for _, e := range s.superadmins {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Enabled != out[j].Enabled {
			return out[i].Enabled
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

func (s *RBACStore) AddSuperadmin(_ context.Context, email, addedBy, notes string) (*rbac.SuperadminEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := rbac.SuperadminEntry{
		ID:           s.nextID,
		Email:        rbac.NormalizeEmail(email),
		AddedByEmail: rbac.NormalizeEmail(addedBy),
		Notes:        notes,
		Enabled:      true,
		AddedAt:      time.Now().UTC(),
	}
	s.nextID++
	s.superadmins[e.Email] = e
	return &e, nil
}

func (s *RBACStore) RemoveSuperadmin(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rbac.NormalizeEmail(email)
	if _, ok := s.superadmins[key]; !ok {
		return false, nil
	}
	delete(s.superadmins, key)
	return true, nil
}

func (s *RBACStore) RoleMappings(_ context.Context, enabledOnly bool) ([]rbac.GroupRoleMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rbac.GroupRoleMapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		if enabledOnly && !m.Enabled {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupName < out[j].GroupName })
	return out, nil
}

func (s *RBACStore) RoleMappingsForGroups(_ context.Context, groups []string) ([]rbac.GroupRoleMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rbac.GroupRoleMapping
	for _, m := range s.mappings {
		if m.Enabled && slices.Contains(groups, m.GroupName) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupName < out[j].GroupName })
	return out, nil
}

func (s *RBACStore) RoleMappingByGroup(_ context.Context, groupName string) (*rbac.GroupRoleMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.mappings {
		if m.Enabled && strings.EqualFold(m.GroupName, groupName) {
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *RBACStore) RoleMappingByID(_ context.Context, id int64) (*rbac.GroupRoleMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *RBACStore) CreateRoleMapping(_ context.Context, m *rbac.GroupRoleMapping) (*rbac.GroupRoleMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := *m
	created.ID = s.nextID
	s.nextID++
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now
	s.mappings[created.ID] = created
	return &created, nil
}

func (s *RBACStore) UpdateRoleMapping(_ context.Context, id int64, patch store.RoleMappingPatch) (*rbac.GroupRoleMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.RoleName != nil {
		m.RoleName = *patch.RoleName
	}
	if patch.Weight != nil {
		m.Weight = *patch.Weight
	}
	if patch.Description != nil {
		m.Description = *patch.Description
	}
	if patch.Enabled != nil {
		m.Enabled = *patch.Enabled
	}
	m.UpdatedAt = time.Now().UTC()
	s.mappings[id] = m
	return &m, nil
}

func (s *RBACStore) DeleteRoleMapping(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[id]; !ok {
		return false, nil
	}
	delete(s.mappings, id)
	return true, nil
}

func (s *RBACStore) AppendAudit(_ context.Context, e *rbac.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *e
	rec.ID = s.nextID
	s.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.audit = append(s.audit, rec)
	return nil
}

func (s *RBACStore) ListAudit(_ context.Context, limit, offset int) ([]rbac.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Newest first.
	out := make([]rbac.AuditEntry, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		out = append(out, s.audit[i])
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

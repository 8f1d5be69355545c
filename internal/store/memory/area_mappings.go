package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// AreaMappingStore is an in-memory store.AreaMappingStore.
type AreaMappingStore struct {
	mu       sync.RWMutex
	mappings map[int64]store.AreaMapping
	nextID   int64
}

// NewAreaMappingStore returns an empty area-mapping store.
func NewAreaMappingStore() *AreaMappingStore {
	return &AreaMappingStore{mappings: make(map[int64]store.AreaMapping), nextID: 1}
}

func (s *AreaMappingStore) Mappings(_ context.Context, enabledOnly bool) ([]store.AreaMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.AreaMapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		if enabledOnly && !m.Enabled {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].GroupName < out[j].GroupName
	})
	return out, nil
}

func (s *AreaMappingStore) MappingsForGroups(_ context.Context, groups []string) ([]store.AreaMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.AreaMapping
	for _, m := range s.mappings {
		if m.Enabled && slices.Contains(groups, m.GroupName) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupName < out[j].GroupName })
	return out, nil
}

func (s *AreaMappingStore) MappingByGroup(_ context.Context, groupName string) (*store.AreaMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.mappings {
		if m.Enabled && strings.EqualFold(m.GroupName, groupName) {
			return &m, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *AreaMappingStore) MappingByID(_ context.Context, id int64) (*store.AreaMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *AreaMappingStore) CreateMapping(_ context.Context, m *store.AreaMapping) (*store.AreaMapping, error) {
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

func (s *AreaMappingStore) UpdateMapping(_ context.Context, id int64, patch store.AreaMappingPatch) (*store.AreaMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.AreaType != nil {
		m.AreaType = *patch.AreaType
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

func (s *AreaMappingStore) DeleteMapping(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[id]; !ok {
		return false, nil
	}
	delete(s.mappings, id)
	return true, nil
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// AgentStore is an in-memory store.AgentStore.
type AgentStore struct {
	mu     sync.RWMutex
	agents map[uuid.UUID]store.AgentData
}

// NewAgentStore returns an empty agent store.
func NewAgentStore() *AgentStore {
	return &AgentStore{agents: make(map[uuid.UUID]store.AgentData)}
}

func (s *AgentStore) List(_ context.Context, enabledOnly bool) ([]store.AgentData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.AgentData, 0, len(s.agents))
	for _, a := range s.agents {
		if enabledOnly && !a.Enabled {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *AgentStore) GetByID(_ context.Context, id uuid.UUID) (*store.AgentData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *AgentStore) GetByKey(_ context.Context, key string) (*store.AgentData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.AgentKey == key {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *AgentStore) Create(_ context.Context, a *store.AgentData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = store.GenNewID()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.agents[a.ID] = *a
	return nil
}

func (s *AgentStore) Update(_ context.Context, a *store.AgentData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.agents[a.ID]
	if !ok {
		return store.ErrNotFound
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	s.agents[a.ID] = *a
	return nil
}

func (s *AgentStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return false, nil
	}
	delete(s.agents, id)
	return true, nil
}

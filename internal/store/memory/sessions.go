package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// SessionStore is an in-memory store.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]store.SessionData
	turns    map[string][]store.Turn
}

// NewSessionStore returns an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]store.SessionData),
		turns:    make(map[string][]store.Turn),
	}
}

func (s *SessionStore) Load(_ context.Context, scope, userID, sessionID string) (*store.SessionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Scope != scope || sess.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &sess, nil
}

func (s *SessionStore) Create(_ context.Context, scope, userID, sessionID string) (*store.SessionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	sess := store.SessionData{
		ID:        sessionID,
		Scope:     scope,
		UserID:    userID,
		Status:    store.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sessionID] = sess
	return &sess, nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*store.SessionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sess, nil
}

func (s *SessionStore) Turns(_ context.Context, sessionID string, limit int) ([]store.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns[sessionID]
	if limit > 0 && len(turns) > limit {
		// Keep the most recent turns, still oldest first.
		turns = turns[len(turns)-limit:]
	}
	return append([]store.Turn(nil), turns...), nil
}

func (s *SessionStore) AppendTurns(_ context.Context, sessionID string, turns []store.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	for _, t := range turns {
		if t.ID == uuid.Nil {
			t.ID = store.GenNewID()
		}
		t.SessionID = sessionID
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		s.turns[sessionID] = append(s.turns[sessionID], t)
	}
	sess.TurnCount += len(turns)
	sess.UpdatedAt = now
	s.sessions[sessionID] = sess
	return nil
}

func (s *SessionStore) SetMetadata(_ context.Context, sessionID string, agentID uuid.UUID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	if sess.AgentID == uuid.Nil && agentID != uuid.Nil {
		sess.AgentID = agentID
	}
	if sess.Title == "" && title != "" {
		sess.Title = title
	}
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = sess
	return nil
}

func (s *SessionStore) List(_ context.Context, userID string, opts store.SessionListOpts) (*store.SessionListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []store.SessionData
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		if opts.Status != "" && sess.Status != opts.Status {
			continue
		}
		matched = append(matched, sess)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UpdatedAt.After(matched[j].UpdatedAt) })

	total := len(matched)
	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return &store.SessionListResult{Sessions: matched, Total: total}, nil
}

func (s *SessionStore) Close(_ context.Context, sessionID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return false, nil
	}
	if sess.Status == store.SessionClosed {
		return true, nil
	}
	sess.Status = store.SessionClosed
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = sess
	return true, nil
}

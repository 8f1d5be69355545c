package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session status values.
const (
	SessionActive = "active"
	SessionClosed = "closed"
)

// SessionData is one persisted conversation thread between a user and
// an agent, scoped by (scope, user id, session id).
type SessionData struct {
	ID        string    `json:"session_id"`
	Scope     string    `json:"scope"`
	UserID    string    `json:"user_id"`
	AgentID   uuid.UUID `json:"agent_id,omitempty"` // uuid.Nil until first turn
	Title     string    `json:"title,omitempty"`
	Status    string    `json:"status"`
	TurnCount int       `json:"turn_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one message in a session's ordered history.
type Turn struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionListOpts holds filter and pagination options for List.
type SessionListOpts struct {
	Status string // "" = any
	Limit  int
	Offset int
}

// SessionListResult is the paginated result of List.
type SessionListResult struct {
	Sessions []SessionData `json:"sessions"`
	Total    int           `json:"total"`
}

// SessionStore persists sessions and their turns. Concurrency control
// is not this layer's job: the orchestrator serializes all writes for a
// session under its session lock.
type SessionStore interface {
	// Load returns the session for (scope, userID, sessionID), or
	// ErrNotFound.
	Load(ctx context.Context, scope, userID, sessionID string) (*SessionData, error)

	// Create inserts a new empty session.
	Create(ctx context.Context, scope, userID, sessionID string) (*SessionData, error)

	// Get returns a session by id alone (ownership checks are the
	// caller's job), or ErrNotFound.
	Get(ctx context.Context, sessionID string) (*SessionData, error)

	// Turns returns the session's history oldest first, up to limit
	// (0 = no limit).
	Turns(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// AppendTurns appends turns atomically: either every turn is
	// persisted or none is.
	AppendTurns(ctx context.Context, sessionID string, turns []Turn) error

	// SetMetadata fills in the agent id and title if they are still
	// unset. Existing values are never overwritten.
	SetMetadata(ctx context.Context, sessionID string, agentID uuid.UUID, title string) error

	// List returns userID's sessions newest first.
	List(ctx context.Context, userID string, opts SessionListOpts) (*SessionListResult, error)

	// Close marks a session closed. Returns false when the session does
	// not exist or does not belong to userID.
	Close(ctx context.Context, sessionID, userID string) (bool, error)
}

package sessions

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Session ids are prefixed so they are recognizable in logs and cannot
// collide with caller-supplied identifiers of other shapes.
const sessionIDPrefix = "sess_"

// NewSessionID generates a fresh session identifier.
func NewSessionID() string {
	return sessionIDPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// ScopeForAgent builds the persistence scope for an agent's sessions.
// All sessions served by one agent share a scope, so history lookups
// are always (scope, user, session) triples.
func ScopeForAgent(agentID uuid.UUID) string {
	return fmt.Sprintf("agent_%s", agentID)
}

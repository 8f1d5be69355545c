// Package memory provides in-memory store implementations used by the
// standalone gateway mode and by tests. All stores are safe for
// concurrent use.
package memory

import "github.com/nextlevelbuilder/agentgate/internal/store"

// NewStores returns a fully wired in-memory Stores aggregate.
func NewStores() *store.Stores {
	return &store.Stores{
		RBAC:         NewRBACStore(),
		AreaMappings: NewAreaMappingStore(),
		Agents:       NewAgentStore(),
		Sessions:     NewSessionStore(),
	}
}

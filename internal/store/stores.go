package store

import (
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups whose subject does not exist.
// Callers distinguish it from validation and transport failures.
var ErrNotFound = errors.New("not found")

// Stores is the top-level container for all storage backends.
// Constructed once at startup and passed into request-scoped handlers;
// there is no ambient global state.
type Stores struct {
	RBAC         RBACStore
	AreaMappings AreaMappingStore
	Agents       AgentStore
	Sessions     SessionStore
}

// StoreConfig holds backend selection for store factories.
type StoreConfig struct {
	PostgresDSN string
}

// GenNewID returns a new time-ordered UUID for database rows.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

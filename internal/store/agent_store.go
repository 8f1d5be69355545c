package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultAreaType is the fallback routing area. A deployment should
// always keep one enabled agent in this area.
const DefaultAreaType = "general"

// AgentData is one configured conversational agent. The router reads
// only AreaType and Enabled; the orchestrator reads the provider fields.
type AgentData struct {
	ID          uuid.UUID `json:"id"`
	AgentKey    string    `json:"agent_key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	AreaType    string    `json:"area_type"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model,omitempty"`
	Instruction string    `json:"instruction,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AgentStore persists agent configurations.
type AgentStore interface {
	// List returns agents ordered by name ascending, optionally
	// restricted to enabled ones. Name order is the stable registry
	// order the router relies on.
	List(ctx context.Context, enabledOnly bool) ([]AgentData, error)

	// GetByID returns an agent by id, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*AgentData, error)

	// GetByKey returns an agent by its key, or ErrNotFound.
	GetByKey(ctx context.Context, key string) (*AgentData, error)

	// Create inserts an agent.
	Create(ctx context.Context, a *AgentData) error

	// Update replaces the mutable fields of an agent.
	Update(ctx context.Context, a *AgentData) error

	// Delete removes an agent. Returns false when absent.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

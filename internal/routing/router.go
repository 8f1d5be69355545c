package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// ErrNoAgent means no enabled agent exists for the resolved area and
// there is no general-purpose fallback either. This is a deployment
// configuration error the caller must surface, never an empty response.
var ErrNoAgent = errors.New("no suitable agent configured")

// RankedAgent pairs an accessible agent with the mapping that granted
// access to it.
type RankedAgent struct {
	Agent     store.AgentData `json:"agent"`
	Weight    int             `json:"weight"`
	GroupName string          `json:"group_name"`
}

// AgentRouter picks the serving agent for a user from their group
// memberships via the group→area mapping table.
type AgentRouter struct {
	agents   store.AgentStore
	mappings store.AreaMappingStore
}

// NewAgentRouter creates a router over the given stores.
func NewAgentRouter(agents store.AgentStore, mappings store.AreaMappingStore) *AgentRouter {
	return &AgentRouter{agents: agents, mappings: mappings}
}

// AreaForGroups resolves the single area type for a user's groups, or
// the default area when no mapping matches. A mapping-store failure
// also degrades to the default area: routing must survive a flaky
// reference table.
func (r *AgentRouter) AreaForGroups(ctx context.Context, groups []string) string {
	if len(groups) == 0 {
		return store.DefaultAreaType
	}

	mappings, err := r.mappings.MappingsForGroups(ctx, groups)
	if err != nil {
		slog.Warn("routing.area_mappings_unavailable", "error", err)
		return store.DefaultAreaType
	}

	candidates := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		candidates = append(candidates, Mapping{
			GroupName:   m.GroupName,
			Target:      m.AreaType,
			Weight:      m.Weight,
			Description: m.Description,
		})
	}

	best := Resolve(groups, candidates)
	if best == nil {
		return store.DefaultAreaType
	}
	slog.Debug("routing.area_resolved", "area", best.Target, "group", best.GroupName, "weight", best.Weight)
	return best.Target
}

// AgentForGroups picks the serving agent for a user: the first enabled
// agent (stable name order) in the resolved area, then the first in the
// default area, then ErrNoAgent.
func (r *AgentRouter) AgentForGroups(ctx context.Context, groups []string) (*store.AgentData, error) {
	area := r.AreaForGroups(ctx, groups)

	agents, err := r.agents.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	if a := firstInArea(agents, area); a != nil {
		return a, nil
	}
	if area != store.DefaultAreaType {
		slog.Warn("routing.area_has_no_agent", "area", area)
		if a := firstInArea(agents, store.DefaultAreaType); a != nil {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: area %q", ErrNoAgent, area)
}

// AvailableAgents returns every agent the user's groups grant access
// to, one per area, sorted by mapping weight descending. The default
// area is always appended at weight 0 when not already granted, so the
// result reflects what the user could reach, not just the top pick.
func (r *AgentRouter) AvailableAgents(ctx context.Context, groups []string) ([]RankedAgent, error) {
	var (
		mappings []store.AreaMapping
		agents   []store.AgentData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mappings, err = r.mappings.MappingsForGroups(gctx, groups)
		if err != nil {
			return fmt.Errorf("list area mappings: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		agents, err = r.agents.List(gctx, true)
		if err != nil {
			return fmt.Errorf("list agents: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		candidates = append(candidates, Mapping{
			GroupName:   m.GroupName,
			Target:      m.AreaType,
			Weight:      m.Weight,
			Description: m.Description,
		})
	}
	ranked := RankAll(groups, candidates)

	hasDefault := false
	for _, m := range ranked {
		if m.Target == store.DefaultAreaType {
			hasDefault = true
			break
		}
	}
	if !hasDefault {
		ranked = append(ranked, Mapping{GroupName: "fallback", Target: store.DefaultAreaType, Weight: 0})
	}

	var out []RankedAgent
	seen := make(map[string]bool)
	for _, m := range ranked {
		if seen[m.Target] {
			continue
		}
		seen[m.Target] = true
		if a := firstInArea(agents, m.Target); a != nil {
			out = append(out, RankedAgent{Agent: *a, Weight: m.Weight, GroupName: m.GroupName})
		}
	}
	return out, nil
}

// firstInArea returns the first enabled agent in the area, relying on
// the store's stable name ordering.
func firstInArea(agents []store.AgentData, area string) *store.AgentData {
	for i := range agents {
		if agents[i].AreaType == area {
			return &agents[i]
		}
	}
	return nil
}

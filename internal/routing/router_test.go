package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/agentgate/internal/store"
	"github.com/nextlevelbuilder/agentgate/internal/store/memory"
)

func seedRouterFixture(t *testing.T) (*AgentRouter, *memory.AgentStore, *memory.AreaMappingStore) {
	t.Helper()
	ctx := context.Background()
	agents := memory.NewAgentStore()
	mappings := memory.NewAreaMappingStore()

	for _, a := range []store.AgentData{
		{AgentKey: "general", Name: "General Assistant", AreaType: "general", Provider: "anthropic", Enabled: true},
		{AgentKey: "hr-bot", Name: "HR Assistant", AreaType: "hr", Provider: "anthropic", Enabled: true},
		{AgentKey: "eng-bot", Name: "Engineering Assistant", AreaType: "engineering", Provider: "openai", Enabled: true},
		{AgentKey: "eng-legacy", Name: "Zz Legacy Engineering", AreaType: "engineering", Provider: "openai", Enabled: true},
		{AgentKey: "fin-bot", Name: "Finance Assistant", AreaType: "finance", Provider: "anthropic", Enabled: false},
	} {
		a := a
		if err := agents.Create(ctx, &a); err != nil {
			t.Fatalf("seed agent %s: %v", a.AgentKey, err)
		}
	}

	for _, m := range []store.AreaMapping{
		{GroupName: "HR-Staff", AreaType: "hr", Weight: 50, Enabled: true},
		{GroupName: "Engineers", AreaType: "engineering", Weight: 80, Enabled: true},
		{GroupName: "Finance", AreaType: "finance", Weight: 90, Enabled: true},
	} {
		m := m
		if _, err := mappings.CreateMapping(ctx, &m); err != nil {
			t.Fatalf("seed mapping %s: %v", m.GroupName, err)
		}
	}

	return NewAgentRouter(agents, mappings), agents, mappings
}

// TestAgentRouter_AreaForGroups verifies weighted area resolution and the
// default-area fallback for unmapped or empty group sets.
func TestAgentRouter_AreaForGroups(t *testing.T) {
	router, _, _ := seedRouterFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		groups []string
		want   string
	}{
		{"single mapped group", []string{"HR-Staff"}, "hr"},
		{"highest weight wins", []string{"HR-Staff", "Engineers"}, "engineering"},
		{"unmapped groups fall back", []string{"Marketing", "Sales"}, store.DefaultAreaType},
		{"empty groups fall back", nil, store.DefaultAreaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := router.AreaForGroups(ctx, tt.groups); got != tt.want {
				t.Errorf("AreaForGroups(%v) = %q, want %q", tt.groups, got, tt.want)
			}
		})
	}
}

// TestAgentRouter_AgentForGroups covers the pick order: resolved area
// first (stable name ordering), then the general area, then ErrNoAgent.
func TestAgentRouter_AgentForGroups(t *testing.T) {
	ctx := context.Background()

	t.Run("picks first agent in area by name", func(t *testing.T) {
		router, _, _ := seedRouterFixture(t)
		got, err := router.AgentForGroups(ctx, []string{"Engineers"})
		if err != nil {
			t.Fatalf("AgentForGroups: %v", err)
		}
		// "Engineering Assistant" sorts before "Zz Legacy Engineering".
		if got.AgentKey != "eng-bot" {
			t.Errorf("picked agent %q, want eng-bot", got.AgentKey)
		}
	})

	t.Run("falls back to general when area has no enabled agent", func(t *testing.T) {
		router, _, _ := seedRouterFixture(t)
		// Finance outweighs everything but its only agent is disabled.
		got, err := router.AgentForGroups(ctx, []string{"Finance"})
		if err != nil {
			t.Fatalf("AgentForGroups: %v", err)
		}
		if got.AgentKey != "general" {
			t.Errorf("picked agent %q, want general fallback", got.AgentKey)
		}
	})

	t.Run("unmapped groups get the general agent", func(t *testing.T) {
		router, _, _ := seedRouterFixture(t)
		got, err := router.AgentForGroups(ctx, []string{"Marketing"})
		if err != nil {
			t.Fatalf("AgentForGroups: %v", err)
		}
		if got.AgentKey != "general" {
			t.Errorf("picked agent %q, want general", got.AgentKey)
		}
	})

	t.Run("no agents at all yields ErrNoAgent", func(t *testing.T) {
		router := NewAgentRouter(memory.NewAgentStore(), memory.NewAreaMappingStore())
		_, err := router.AgentForGroups(ctx, []string{"Anyone"})
		if !errors.Is(err, ErrNoAgent) {
			t.Errorf("err = %v, want ErrNoAgent", err)
		}
	})
}

// TestAgentRouter_AvailableAgents verifies the ranked listing: one agent
// per area, weight descending, and the general area always present at
// weight zero when no mapping grants it.
func TestAgentRouter_AvailableAgents(t *testing.T) {
	router, _, _ := seedRouterFixture(t)
	ctx := context.Background()

	got, err := router.AvailableAgents(ctx, []string{"HR-Staff", "Engineers"})
	if err != nil {
		t.Fatalf("AvailableAgents: %v", err)
	}

	wantKeys := []string{"eng-bot", "hr-bot", "general"}
	if len(got) != len(wantKeys) {
		t.Fatalf("got %d agents, want %d: %+v", len(got), len(wantKeys), got)
	}
	for i, k := range wantKeys {
		if got[i].Agent.AgentKey != k {
			t.Errorf("position %d: got %q, want %q", i, got[i].Agent.AgentKey, k)
		}
	}
	if got[0].Weight != 80 {
		t.Errorf("top weight = %d, want 80", got[0].Weight)
	}
	if last := got[len(got)-1]; last.Weight != 0 {
		t.Errorf("general fallback weight = %d, want 0", last.Weight)
	}
}

// TestAgentRouter_AvailableAgents_EmptyGroups verifies that a user with
// no mapped groups still sees the general agent.
func TestAgentRouter_AvailableAgents_EmptyGroups(t *testing.T) {
	router, _, _ := seedRouterFixture(t)

	got, err := router.AvailableAgents(context.Background(), nil)
	if err != nil {
		t.Fatalf("AvailableAgents: %v", err)
	}
	if len(got) != 1 || got[0].Agent.AgentKey != "general" {
		t.Fatalf("got %+v, want only the general agent", got)
	}
}

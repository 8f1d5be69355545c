package bootstrap

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/agentgate/internal/config"
	"github.com/nextlevelbuilder/agentgate/internal/directory"
	"github.com/nextlevelbuilder/agentgate/internal/rbac"
	"github.com/nextlevelbuilder/agentgate/internal/store"
	"github.com/nextlevelbuilder/agentgate/internal/store/memory"
)

// TestSeed_FreshDeployment verifies a first run creates roles, initial
// superadmins, the fallback mapping, and the general agent.
func TestSeed_FreshDeployment(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewStores()
	cfg := config.Default()
	cfg.RBAC.InitialSuperadmins = []string{"Root@Example.com", "", "ops@example.com"}
	cfg.Providers.Anthropic.APIKey = "sk-test"

	if err := Seed(ctx, stores, cfg); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	for _, name := range []string{rbac.RoleSuperadmin, rbac.RoleAdmin, rbac.RoleEditor, rbac.RoleViewer} {
		if _, err := stores.RBAC.GetRole(ctx, name); err != nil {
			t.Errorf("role %q not seeded: %v", name, err)
		}
	}

	// Emails are normalized; blank entries skipped.
	ok, err := stores.RBAC.IsSuperadmin(ctx, "root@example.com")
	if err != nil || !ok {
		t.Errorf("root@example.com not whitelisted (ok=%v err=%v)", ok, err)
	}
	admins, _ := stores.RBAC.ListSuperadmins(ctx)
	if len(admins) != 2 {
		t.Errorf("got %d superadmins, want 2", len(admins))
	}

	m, err := stores.RBAC.RoleMappingByGroup(ctx, directory.FallbackGroup)
	if err != nil {
		t.Fatalf("fallback mapping missing: %v", err)
	}
	if m.RoleName != rbac.DefaultRole || m.Weight != 0 {
		t.Errorf("fallback mapping = %+v, want default role at weight 0", m)
	}

	agent, err := stores.Agents.GetByKey(ctx, "general")
	if err != nil {
		t.Fatalf("general agent missing: %v", err)
	}
	if agent.AreaType != store.DefaultAreaType || !agent.Enabled {
		t.Errorf("general agent = %+v", agent)
	}
	if agent.Provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic when its key is set", agent.Provider)
	}
}

// TestSeed_Idempotent verifies a second seeding pass changes nothing.
func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewStores()
	cfg := config.Default()
	cfg.RBAC.InitialSuperadmins = []string{"root@example.com"}

	if err := Seed(ctx, stores, cfg); err != nil {
		t.Fatalf("first Seed: %v", err)
	}
	if err := Seed(ctx, stores, cfg); err != nil {
		t.Fatalf("second Seed: %v", err)
	}

	admins, _ := stores.RBAC.ListSuperadmins(ctx)
	if len(admins) != 1 {
		t.Errorf("got %d superadmins after reseeding, want 1", len(admins))
	}
	agents, _ := stores.Agents.List(ctx, false)
	if len(agents) != 1 {
		t.Errorf("got %d agents after reseeding, want 1", len(agents))
	}
}

// TestSeed_OpenAIOnly verifies provider selection when only an OpenAI
// key is configured.
func TestSeed_OpenAIOnly(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewStores()
	cfg := config.Default()
	cfg.Providers.OpenAI.APIKey = "sk-test"
	cfg.Providers.OpenAI.Model = "gpt-test"

	if err := Seed(ctx, stores, cfg); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	agent, err := stores.Agents.GetByKey(ctx, "general")
	if err != nil {
		t.Fatalf("general agent missing: %v", err)
	}
	if agent.Provider != "openai" || agent.Model != "gpt-test" {
		t.Errorf("agent provider/model = %s/%s, want openai/gpt-test", agent.Provider, agent.Model)
	}
}

// Package bootstrap seeds the reference data a fresh deployment needs:
// the built-in roles, the initial superadmins, and a default agent for
// the general area. Seeding is idempotent and never overwrites
// existing rows.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/agentgate/internal/config"
	"github.com/nextlevelbuilder/agentgate/internal/directory"
	"github.com/nextlevelbuilder/agentgate/internal/rbac"
	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// builtinRoles are seeded on first start. The default role must be
// among them: authorization fails closed without it.
var builtinRoles = []rbac.Role{
	{
		Name:        rbac.RoleSuperadmin,
		DisplayName: "Superadmin",
		Description: "Full access to everything, including RBAC administration",
		Weight:      1000,
		Permissions: []string{rbac.PermissionWildcard},
		Enabled:     true,
	},
	{
		Name:        rbac.RoleAdmin,
		DisplayName: "Administrator",
		Description: "Manage agents and view RBAC configuration",
		Weight:      100,
		Permissions: []string{
			"chat:send",
			"sessions:list", "sessions:view", "sessions:close",
			"agents:list", "agents:view", "agents:create", "agents:update", "agents:delete",
			"group_mappings:list", "group_mappings:view",
			"area_mappings:list", "area_mappings:view",
		},
		Enabled: true,
	},
	{
		Name:        rbac.RoleEditor,
		DisplayName: "Editor",
		Description: "Chat plus read access to routing configuration",
		Weight:      50,
		Permissions: []string{
			"chat:send",
			"sessions:list", "sessions:view", "sessions:close",
			"agents:list", "agents:view",
			"group_mappings:list", "group_mappings:view",
			"area_mappings:list", "area_mappings:view",
		},
		Enabled: true,
	},
	{
		Name:        rbac.RoleViewer,
		DisplayName: "Viewer",
		Description: "Chat and own-session access; the fallback for unmapped users",
		Weight:      10,
		Permissions: []string{
			"chat:send",
			"sessions:list", "sessions:view", "sessions:close",
			"agents:list",
		},
		Enabled: true,
	},
}

// RoleSeeder is implemented by stores that can insert role rows. The
// Postgres store seeds roles via migrations instead, so this is
// optional.
type RoleSeeder interface {
	PutRole(r rbac.Role)
}

// Seed populates missing reference data. Safe to run on every start.
func Seed(ctx context.Context, stores *store.Stores, cfg *config.Config) error {
	if err := seedRoles(ctx, stores.RBAC); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	if err := seedSuperadmins(ctx, stores.RBAC, cfg.RBAC.InitialSuperadmins); err != nil {
		return fmt.Errorf("seed superadmins: %w", err)
	}
	if err := seedFallbackMapping(ctx, stores.RBAC); err != nil {
		return fmt.Errorf("seed fallback mapping: %w", err)
	}
	if err := seedDefaultAgent(ctx, stores.Agents, cfg); err != nil {
		return fmt.Errorf("seed default agent: %w", err)
	}
	return nil
}

func seedRoles(ctx context.Context, rbacStore store.RBACStore) error {
	seeder, ok := rbacStore.(RoleSeeder)
	if !ok {
		// Postgres deployments get roles from migrations; nothing to do
		// beyond verifying they ran.
		return nil
	}
	for _, role := range builtinRoles {
		if _, err := rbacStore.GetRole(ctx, role.Name); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		seeder.PutRole(role)
		slog.Info("bootstrap.role_seeded", "role", role.Name, "weight", role.Weight)
	}
	return nil
}

func seedSuperadmins(ctx context.Context, rbacStore store.RBACStore, emails []string) error {
	for _, email := range emails {
		email = rbac.NormalizeEmail(email)
		if email == "" {
			continue
		}
		already, err := rbacStore.IsSuperadmin(ctx, email)
		if err != nil {
			return err
		}
		if already {
			continue
		}
		if _, err := rbacStore.AddSuperadmin(ctx, email, "bootstrap", "initial superadmin"); err != nil {
			return err
		}
		slog.Info("bootstrap.superadmin_seeded", "email", email)
	}
	return nil
}

// seedFallbackMapping gives the directory fallback group an explicit
// mapping to the default role, so degraded directory lookups resolve
// through the same table as everything else.
func seedFallbackMapping(ctx context.Context, rbacStore store.RBACStore) error {
	_, err := rbacStore.RoleMappingByGroup(ctx, directory.FallbackGroup)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	_, err = rbacStore.CreateRoleMapping(ctx, &rbac.GroupRoleMapping{
		GroupName:      directory.FallbackGroup,
		RoleName:       rbac.DefaultRole,
		Weight:         0,
		Description:    "fallback group for users without directory lookup",
		Enabled:        true,
		CreatedByEmail: "bootstrap",
	})
	if err != nil {
		return err
	}
	slog.Info("bootstrap.fallback_mapping_seeded", "group", directory.FallbackGroup, "role", rbac.DefaultRole)
	return nil
}

// seedDefaultAgent ensures the general area always has one enabled
// agent, since it is the routing fallback of last resort.
func seedDefaultAgent(ctx context.Context, agents store.AgentStore, cfg *config.Config) error {
	if _, err := agents.GetByKey(ctx, "general"); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	provider := "anthropic"
	model := cfg.Providers.Anthropic.Model
	if cfg.Providers.Anthropic.APIKey == "" && cfg.Providers.OpenAI.APIKey != "" {
		provider = "openai"
		model = cfg.Providers.OpenAI.Model
	}

	a := &store.AgentData{
		AgentKey:    "general",
		Name:        "General Assistant",
		Description: "Default assistant for the general area",
		AreaType:    store.DefaultAreaType,
		Provider:    provider,
		Model:       model,
		Instruction: "You are a helpful general-purpose assistant.",
		Enabled:     true,
	}
	if err := agents.Create(ctx, a); err != nil {
		return err
	}
	slog.Info("bootstrap.default_agent_seeded", "agent_key", a.AgentKey, "provider", provider)
	return nil
}

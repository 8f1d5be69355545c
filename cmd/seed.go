package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentgate/internal/bootstrap"
	"github.com/nextlevelbuilder/agentgate/internal/config"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed default roles, superadmins, and the general agent",
		Long:  "Seed is idempotent: existing roles, whitelist entries, and agents are left untouched. Superadmins come from AGENTGATE_INITIAL_SUPERADMINS.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			stores, err := buildStores(cfg)
			if err != nil {
				return fmt.Errorf("store initialization: %w", err)
			}

			if err := bootstrap.Seed(context.Background(), stores, cfg); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			slog.Info("seed complete", "superadmins", len(cfg.RBAC.InitialSuperadmins))
			return nil
		},
	}
}

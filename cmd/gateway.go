package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentgate/internal/agent"
	"github.com/nextlevelbuilder/agentgate/internal/bootstrap"
	"github.com/nextlevelbuilder/agentgate/internal/config"
	"github.com/nextlevelbuilder/agentgate/internal/directory"
	"github.com/nextlevelbuilder/agentgate/internal/gateway"
	"github.com/nextlevelbuilder/agentgate/internal/providers"
	"github.com/nextlevelbuilder/agentgate/internal/store"
	"github.com/nextlevelbuilder/agentgate/internal/store/memory"
	"github.com/nextlevelbuilder/agentgate/internal/store/pg"
	"github.com/nextlevelbuilder/agentgate/internal/telemetry"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the gateway server",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		slog.Error("AGENTGATE_JWT_SECRET is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTelemetry(shutdownCtx)
	}()

	stores, err := buildStores(cfg)
	if err != nil {
		slog.Error("store initialization failed", "error", err)
		os.Exit(1)
	}

	if err := bootstrap.Seed(ctx, stores, cfg); err != nil {
		slog.Error("bootstrap seeding failed", "error", err)
		os.Exit(1)
	}

	providerRegistry := providers.NewRegistry()
	registerProviders(providerRegistry, cfg)
	if len(providerRegistry.List()) == 0 {
		slog.Error("no AI provider configured; set AGENTGATE_ANTHROPIC_API_KEY or AGENTGATE_OPENAI_API_KEY")
		os.Exit(1)
	}

	orch := agent.NewOrchestrator(providerRegistry, stores.Sessions,
		agent.WithInvokeTimeout(time.Duration(cfg.Sessions.InvokeTimeoutSec)*time.Second))

	dir := buildDirectory(cfg)

	server := gateway.NewServer(cfg, stores, orch, dir)

	// A deployment with no default role cannot authorize anyone; refuse
	// to start rather than fail every request.
	if err := server.RBAC().VerifyDefaultRole(ctx); err != nil {
		slog.Error("rbac misconfigured", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := config.Watch(ctx, cfgPath, func(newCfg *config.Config) {
			slog.Info("config change detected; restart to apply server-level settings")
		}); err != nil {
			slog.Warn("config watch unavailable", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil {
		slog.Error("gateway failed", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

func buildStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.Database.Mode == config.ModeManaged {
		slog.Info("using postgres stores")
		return pg.NewPGStores(store.StoreConfig{PostgresDSN: cfg.Database.PostgresDSN})
	}
	slog.Info("using in-memory stores (standalone mode)")
	return memory.NewStores(), nil
}

func registerProviders(reg *providers.Registry, cfg *config.Config) {
	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		var opts []providers.AnthropicOption
		if cfg.Providers.Anthropic.BaseURL != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(cfg.Providers.Anthropic.BaseURL))
		}
		if cfg.Providers.Anthropic.Model != "" {
			opts = append(opts, providers.WithAnthropicModel(cfg.Providers.Anthropic.Model))
		}
		reg.Register(providers.NewAnthropicProvider(key, opts...))
	}
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		var opts []providers.OpenAIOption
		if cfg.Providers.OpenAI.BaseURL != "" {
			opts = append(opts, providers.WithOpenAIBaseURL(cfg.Providers.OpenAI.BaseURL))
		}
		if cfg.Providers.OpenAI.Model != "" {
			opts = append(opts, providers.WithOpenAIModel(cfg.Providers.OpenAI.Model))
		}
		reg.Register(providers.NewOpenAIProvider(key, opts...))
	}
}

func buildDirectory(cfg *config.Config) directory.Directory {
	if cfg.Directory.Mode == config.DirectoryGraph {
		slog.Info("using graph directory", "tenant", cfg.Directory.TenantID)
		return directory.NewGraphDirectory(cfg.Directory.TenantID, cfg.Directory.ClientID, cfg.Directory.ClientSecret)
	}
	slog.Info("using static directory", "users", len(cfg.Directory.Groups))
	return directory.NewStaticDirectory(cfg.Directory.Groups)
}

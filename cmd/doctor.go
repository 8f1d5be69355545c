package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentgate/internal/config"
	"github.com/nextlevelbuilder/agentgate/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("agentgate doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	// Auth
	fmt.Println()
	fmt.Println("  Auth:")
	if cfg.Auth.JWTSecret != "" {
		fmt.Printf("    %-12s set (%d bytes)\n", "JWT secret:", len(cfg.Auth.JWTSecret))
	} else {
		fmt.Printf("    %-12s NOT SET (server will refuse to start)\n", "JWT secret:")
	}

	// Database (managed mode only)
	isManaged := cfg.Database.Mode == config.ModeManaged && cfg.Database.PostgresDSN != ""
	fmt.Println()
	fmt.Println("  Database:")
	if isManaged {
		fmt.Printf("    %-12s managed\n", "Mode:")
		db, dbErr := sql.Open("pgx", cfg.Database.PostgresDSN)
		if dbErr != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", dbErr)
		} else if pingErr := db.Ping(); pingErr != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", pingErr)
			db.Close()
		} else {
			defer db.Close()
			fmt.Printf("    %-12s connected\n", "Status:")
			checkSchemaVersion(db)
			checkRBACHealth(db)
		}
	} else {
		fmt.Printf("    %-12s standalone (in-memory)\n", "Mode:")
	}

	// Providers
	fmt.Println()
	fmt.Println("  Providers:")
	checkProvider("Anthropic", cfg.Providers.Anthropic.APIKey)
	checkProvider("OpenAI", cfg.Providers.OpenAI.APIKey)

	// Directory
	fmt.Println()
	fmt.Println("  Directory:")
	if cfg.Directory.Mode == config.DirectoryGraph {
		fmt.Printf("    %-12s graph\n", "Mode:")
		fmt.Printf("    %-12s %s\n", "Tenant:", cfg.Directory.TenantID)
		if cfg.Directory.ClientSecret != "" {
			fmt.Printf("    %-12s set\n", "Secret:")
		} else {
			fmt.Printf("    %-12s NOT SET\n", "Secret:")
		}
	} else {
		fmt.Printf("    %-12s static (%d users mapped)\n", "Mode:", len(cfg.Directory.Groups))
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkProvider(name, apiKey string) {
	if apiKey != "" && len(apiKey) > 8 {
		maskedKey := apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
		fmt.Printf("    %-12s %s\n", name+":", maskedKey)
	} else if apiKey != "" {
		fmt.Printf("    %-12s set\n", name+":")
	} else {
		fmt.Printf("    %-12s (not configured)\n", name+":")
	}
}

func checkSchemaVersion(db *sql.DB) {
	var version int64
	var dirty bool
	err := db.QueryRowContext(context.Background(),
		"SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty)
	if err != nil {
		fmt.Printf("    %-12s NOT MIGRATED (run: agentgate migrate up)\n", "Schema:")
		return
	}
	if dirty {
		fmt.Printf("    %-12s v%d (DIRTY — run: agentgate migrate force %d)\n", "Schema:", version, version-1)
		return
	}
	fmt.Printf("    %-12s v%d\n", "Schema:", version)
}

func checkRBACHealth(db *sql.DB) {
	var defaultRoleExists bool
	err := db.QueryRowContext(context.Background(),
		"SELECT EXISTS (SELECT 1 FROM roles WHERE name = 'viewer')").Scan(&defaultRoleExists)
	if err != nil {
		return
	}
	if defaultRoleExists {
		fmt.Printf("    %-12s default role present\n", "RBAC:")
	} else {
		fmt.Printf("    %-12s DEFAULT ROLE MISSING (run: agentgate seed)\n", "RBAC:")
	}

	var superadmins int
	if err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM superadmin_whitelist WHERE enabled").Scan(&superadmins); err == nil {
		fmt.Printf("    %-12s %d active superadmin(s)\n", "Whitelist:", superadmins)
	}
}

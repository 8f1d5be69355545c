package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            18790,
			MaxMessageChars: 32000,
			RateLimitRPM:    60,
		},
		Database: DatabaseConfig{
			Mode: ModeStandalone,
		},
		Directory: DirectoryConfig{
			Mode: DirectoryStatic,
		},
		Sessions: SessionsConfig{
			InvokeTimeoutSec: 60,
			HistoryWindow:    50,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "agentgate",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets: only ever sourced from the environment.
	envStr("AGENTGATE_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("AGENTGATE_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("AGENTGATE_JWT_SECRET", &c.Auth.JWTSecret)
	envStr("AGENTGATE_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("AGENTGATE_DIRECTORY_CLIENT_SECRET", &c.Directory.ClientSecret)

	envStr("AGENTGATE_MODE", &c.Database.Mode)
	envStr("AGENTGATE_HOST", &c.Gateway.Host)
	if v := os.Getenv("AGENTGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	envStr("AGENTGATE_DIRECTORY_MODE", &c.Directory.Mode)
	envStr("AGENTGATE_DIRECTORY_TENANT_ID", &c.Directory.TenantID)
	envStr("AGENTGATE_DIRECTORY_CLIENT_ID", &c.Directory.ClientID)

	// Initial superadmins from env (comma-separated)
	if v := os.Getenv("AGENTGATE_INITIAL_SUPERADMINS"); v != "" {
		c.RBAC.InitialSuperadmins = strings.Split(v, ",")
	}

	// Telemetry
	envStr("AGENTGATE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("AGENTGATE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("AGENTGATE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("AGENTGATE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTGATE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Validate reports fatal configuration errors that must stop startup.
func (c *Config) Validate() error {
	switch c.Database.Mode {
	case ModeStandalone:
	case ModeManaged:
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("managed mode requires AGENTGATE_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown database mode %q", c.Database.Mode)
	}

	switch c.Directory.Mode {
	case DirectoryStatic:
	case DirectoryGraph:
		if c.Directory.TenantID == "" || c.Directory.ClientID == "" || c.Directory.ClientSecret == "" {
			return fmt.Errorf("graph directory requires tenant id, client id and AGENTGATE_DIRECTORY_CLIENT_SECRET")
		}
	default:
		return fmt.Errorf("unknown directory mode %q", c.Directory.Mode)
	}

	return nil
}

// Hash fingerprints the file contents at path, used by the reload
// watcher to skip spurious filesystem events.
func Hash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

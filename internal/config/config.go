// Package config defines the gateway configuration: a JSON5 file
// overlaid with AGENTGATE_* environment variables. Secrets (API keys,
// JWT secret, database DSN) are env-only and never written to disk.
package config

// Config is the root configuration.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Auth      AuthConfig      `json:"auth"`
	Database  DatabaseConfig  `json:"database"`
	Providers ProvidersConfig `json:"providers"`
	Directory DirectoryConfig `json:"directory"`
	Sessions  SessionsConfig  `json:"sessions"`
	RBAC      RBACConfig      `json:"rbac"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// GatewayConfig configures the HTTP server.
type GatewayConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	MaxMessageChars int    `json:"max_message_chars"`
	RateLimitRPM    int    `json:"rate_limit_rpm"`
}

// AuthConfig configures bearer-token authentication. The JWT secret is
// env-only (AGENTGATE_JWT_SECRET).
type AuthConfig struct {
	JWTSecret string `json:"-"`
	Issuer    string `json:"issuer"`
}

// Database modes.
const (
	ModeStandalone = "standalone" // in-memory stores, single process
	ModeManaged    = "managed"    // Postgres-backed
)

// DatabaseConfig selects the persistence backend. The DSN is env-only
// (AGENTGATE_POSTGRES_DSN).
type DatabaseConfig struct {
	Mode        string `json:"mode"`
	PostgresDSN string `json:"-"`
}

// ProvidersConfig holds per-provider settings. API keys are env-only.
type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic"`
	OpenAI    ProviderConfig `json:"openai"`
}

// ProviderConfig is one LLM provider's settings.
type ProviderConfig struct {
	APIKey  string `json:"-"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Directory modes.
const (
	DirectoryStatic = "static"
	DirectoryGraph  = "graph"
)

// DirectoryConfig selects where group memberships come from.
type DirectoryConfig struct {
	Mode         string              `json:"mode"`
	TenantID     string              `json:"tenant_id,omitempty"`
	ClientID     string              `json:"client_id,omitempty"`
	ClientSecret string              `json:"-"`
	Groups       map[string][]string `json:"groups,omitempty"` // static mode: user id -> groups
}

// SessionsConfig tunes conversation handling.
type SessionsConfig struct {
	InvokeTimeoutSec int `json:"invoke_timeout_sec"`
	HistoryWindow    int `json:"history_window"`
}

// RBACConfig holds bootstrap-time RBAC settings.
type RBACConfig struct {
	// InitialSuperadmins is seeded into the whitelist on first start so
	// a fresh deployment is never locked out of administration.
	InitialSuperadmins []string `json:"initial_superadmins,omitempty"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" or "http"
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/praxis/acapy-mcp-gateway/pkg/utils"
)

// AppConfig is the main configuration structure for the application
type AppConfig struct {
	Agent      AgentConfig      `yaml:"agent" json:"agent"`
	Tenant     TenantConfig     `yaml:"tenant" json:"tenant"`
	Auth       AuthConfig       `yaml:"auth" json:"auth"`
	Invitation InvitationConfig `yaml:"invitation" json:"invitation"`
	Ledger     LedgerConfig     `yaml:"ledger" json:"ledger"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Logging    utils.LogConfig  `yaml:"logging" json:"logging"`
}

// AgentConfig points the gateway at an identity agent's admin API.
type AgentConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit"` // requests per second, 0 = unlimited
}

// TenantConfig holds the credentials of one tenant wallet. Both fields empty
// means single-tenant mode (no bearer token).
type TenantConfig struct {
	ID     string `yaml:"id" json:"id"`
	APIKey Secret `yaml:"api_key" json:"api_key"`
}

// MultiTenant reports whether tenant credentials are configured.
func (t TenantConfig) MultiTenant() bool {
	return t.ID != "" && t.APIKey != ""
}

// AuthConfig configures token caching.
type AuthConfig struct {
	Cache TokenCacheConfig `yaml:"cache" json:"cache"`
}

// TokenCacheConfig controls where bearer tokens are kept between calls.
type TokenCacheConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
	RedisURL string        `yaml:"redis_url" json:"redis_url"`
}

// InvitationConfig configures the out-of-band connection URL.
type InvitationConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// LedgerConfig configures the optional ledger browser lookup tool.
type LedgerConfig struct {
	BrowserURL string `yaml:"browser_url" json:"browser_url"`
}

// ServerConfig configures the MCP transport.
type ServerConfig struct {
	Name      string `yaml:"name" json:"name"`
	Version   string `yaml:"version" json:"version"`
	Transport string `yaml:"transport" json:"transport"`
	Address   string `yaml:"address" json:"address"`
}

// MetricsConfig configures Prometheus exposition. The /metrics endpoint is
// served on the SSE listener; remote write pushes from either transport.
type MetricsConfig struct {
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	RemoteWrite RemoteWriteConfig `yaml:"remote_write" json:"remote_write"`
}

// RemoteWriteConfig points at a Prometheus remote write endpoint.
type RemoteWriteConfig struct {
	URL      string        `yaml:"url" json:"url"`
	Interval time.Duration `yaml:"interval" json:"interval"`
	Username string        `yaml:"username" json:"username"`
	Password Secret        `yaml:"password" json:"password"`
}

// Secret is a string that never prints its value.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string {
	return utils.Mask(string(s))
}

// GoString keeps %#v from leaking the value.
func (s Secret) GoString() string {
	return fmt.Sprintf("config.Secret(%q)", s.String())
}

// Value returns the raw secret.
func (s Secret) Value() string {
	return string(s)
}

// MarshalYAML writes the masked form so SaveConfig never persists secrets.
func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML reads a plain scalar.
func (s *Secret) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("secret must be a scalar, got kind %d", value.Kind)
	}
	*s = Secret(value.Value)
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Agent: AgentConfig{
			BaseURL: "http://localhost:8032",
			Timeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Cache: TokenCacheConfig{
				Enabled: true,
				TTL:     5 * time.Minute,
			},
		},
		Invitation: InvitationConfig{
			BaseURL: "http://localhost:8030",
		},
		Server: ServerConfig{
			Name:      "acapy-mcp-gateway",
			Version:   "1.0.0",
			Transport: "stdio",
			Address:   ":8090",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			RemoteWrite: RemoteWriteConfig{
				Interval: 30 * time.Second,
			},
		},
		Logging: utils.DefaultLogConfig(),
	}
}

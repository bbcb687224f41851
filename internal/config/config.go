package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/praxis/acapy-mcp-gateway/pkg/utils"
)

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(path string, logger *logrus.Logger) (*AppConfig, error) {
	// A .env next to the working directory feeds TENANT_ID / API_KEY and friends.
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded environment from .env")
	}

	// Start with default configuration
	config := DefaultConfig()

	// Check if the config file exists
	if _, err := os.Stat(path); path == "" || os.IsNotExist(err) {
		if path != "" {
			logger.Warnf("Configuration file %s not found, using defaults", path)
		}
		// Still apply environment overrides even with defaults
		applyEnvironmentOverrides(config, logger)
		if err := validateConfig(config); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return config, nil
	}

	// Read the configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the configuration
	configString := utils.ExpandEnvVars(string(data))

	// Parse YAML
	if err := yaml.Unmarshal([]byte(configString), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables
	applyEnvironmentOverrides(config, logger)

	// Validate the configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a YAML file. Secrets are written masked.
func SaveConfig(config *AppConfig, path string) error {
	// Create the directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// validateConfig checks if the configuration is valid
func validateConfig(config *AppConfig) error {
	if err := validateHTTPURL("agent.base_url", config.Agent.BaseURL, true); err != nil {
		return err
	}
	config.Agent.BaseURL = strings.TrimRight(config.Agent.BaseURL, "/")

	if config.Agent.Timeout <= 0 {
		return fmt.Errorf("agent.timeout must be positive, got %s", config.Agent.Timeout)
	}
	if config.Agent.RateLimit < 0 {
		return fmt.Errorf("agent.rate_limit cannot be negative")
	}

	// Tenant credentials come as a pair
	if (config.Tenant.ID == "") != (config.Tenant.APIKey == "") {
		return fmt.Errorf("tenant.id and tenant.api_key must be set together")
	}

	if config.Auth.Cache.TTL < 0 {
		return fmt.Errorf("auth.cache.ttl cannot be negative")
	}
	if config.Auth.Cache.RedisURL != "" {
		u, err := url.Parse(config.Auth.Cache.RedisURL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			return fmt.Errorf("auth.cache.redis_url must be a redis:// or rediss:// URL")
		}
	}

	if err := validateHTTPURL("invitation.base_url", config.Invitation.BaseURL, true); err != nil {
		return err
	}
	if err := validateHTTPURL("ledger.browser_url", config.Ledger.BrowserURL, false); err != nil {
		return err
	}

	switch config.Server.Transport {
	case "stdio":
	case "sse":
		if config.Server.Address == "" {
			return fmt.Errorf("server.address is required for sse transport")
		}
	default:
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got '%s'", config.Server.Transport)
	}
	if config.Server.Name == "" {
		return fmt.Errorf("server name cannot be empty")
	}

	if err := validateHTTPURL("metrics.remote_write.url", config.Metrics.RemoteWrite.URL, false); err != nil {
		return err
	}
	if config.Metrics.RemoteWrite.Interval < 0 {
		return fmt.Errorf("metrics.remote_write.interval cannot be negative")
	}

	return nil
}

func validateHTTPURL(field, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got '%s'", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", field)
	}
	return nil
}

// applyEnvironmentOverrides applies environment variable overrides to the configuration
func applyEnvironmentOverrides(config *AppConfig, logger *logrus.Logger) {
	// Agent overrides
	if baseURL := os.Getenv("ACAPY_BASE_URL"); baseURL != "" {
		config.Agent.BaseURL = baseURL
	}
	config.Agent.Timeout = utils.DurationFromEnv("ACAPY_TIMEOUT", config.Agent.Timeout)
	if rate := os.Getenv("ACAPY_RATE_LIMIT"); rate != "" {
		if v, err := strconv.ParseFloat(rate, 64); err != nil {
			logger.Warnf("Invalid ACAPY_RATE_LIMIT: %s", rate)
		} else {
			config.Agent.RateLimit = v
		}
	}

	// Tenant overrides
	if id := utils.GetEnv("TENANT_ID", ""); id != "" {
		config.Tenant.ID = id
	}
	if key := utils.GetEnv("API_KEY", ""); key != "" {
		config.Tenant.APIKey = Secret(key)
	}

	// Token cache overrides
	config.Auth.Cache.Enabled = utils.BoolFromEnv("TOKEN_CACHE_ENABLED", config.Auth.Cache.Enabled)
	config.Auth.Cache.TTL = utils.DurationFromEnv("TOKEN_CACHE_TTL", config.Auth.Cache.TTL)
	if redisURL := os.Getenv("TOKEN_CACHE_REDIS_URL"); redisURL != "" {
		config.Auth.Cache.RedisURL = redisURL
	}

	if base := os.Getenv("INVITATION_BASE_URL"); base != "" {
		config.Invitation.BaseURL = base
	}
	if browser := os.Getenv("LEDGER_BROWSER_URL"); browser != "" {
		config.Ledger.BrowserURL = browser
	}

	// Server overrides
	if transport := os.Getenv("MCP_TRANSPORT"); transport != "" {
		config.Server.Transport = strings.ToLower(transport)
	}
	if addr := os.Getenv("MCP_ADDRESS"); addr != "" {
		config.Server.Address = addr
	}

	// Metrics overrides
	config.Metrics.Enabled = utils.BoolFromEnv("METRICS_ENABLED", config.Metrics.Enabled)
	if rw := os.Getenv("METRICS_REMOTE_WRITE_URL"); rw != "" {
		config.Metrics.RemoteWrite.URL = rw
	}
	if user := os.Getenv("METRICS_REMOTE_WRITE_USERNAME"); user != "" {
		config.Metrics.RemoteWrite.Username = user
	}
	if pass := os.Getenv("METRICS_REMOTE_WRITE_PASSWORD"); pass != "" {
		config.Metrics.RemoteWrite.Password = Secret(pass)
	}

	// Logging overrides
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
}

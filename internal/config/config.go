// ABOUTME: Configuration loading and parsing for relay-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete relay-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Agent    AgentConfig    `yaml:"agent"`
	Tasks    TasksConfig    `yaml:"tasks"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds connection registry backend configuration.
// URL takes precedence over Addr when both are set.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	URL  string `yaml:"url"`
}

// AgentConfig holds model provider and sampling loop configuration
type AgentConfig struct {
	Model              string `yaml:"model"`
	Provider           string `yaml:"provider"`
	APIKey             string `yaml:"api_key"`
	SystemPromptSuffix string `yaml:"system_prompt_suffix"`
	ToolVersion        string `yaml:"tool_version"`
	MaxTokens          int64  `yaml:"max_tokens"`
	ThinkingBudget     int64  `yaml:"thinking_budget"`
	MaxRetries         int    `yaml:"max_retries"`

	RetryDelay time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RetryDelayRaw string `yaml:"retry_delay"`
}

// TasksConfig holds background task supervision configuration
type TasksConfig struct {
	MaxConcurrent int64 `yaml:"max_concurrent"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Redis.Addr == "" && c.Redis.URL == "" {
		return fmt.Errorf("redis.addr or redis.url is required")
	}

	if c.Agent.Model == "" {
		return fmt.Errorf("agent.model is required")
	}

	if c.Agent.MaxRetries < 0 {
		return fmt.Errorf("agent.max_retries must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agent.RetryDelayRaw != "" {
		cfg.Agent.RetryDelay, err = time.ParseDuration(cfg.Agent.RetryDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing retry_delay %q: %w", cfg.Agent.RetryDelayRaw, err)
		}
	}

	return nil
}

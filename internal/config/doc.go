// Package config handles configuration loading for relay-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	agent:
//	  api_key: "${ANTHROPIC_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agent:
//	  retry_delay: "2s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API and WebSocket endpoints
//
// Database:
//
//	database:
//	  path: "/var/lib/relay/gateway.db"
//
// Connection registry backend:
//
//	redis:
//	  addr: "localhost:6379"
//	  url: "${REDIS_URL}"   # takes precedence over addr
//
// Agent sampling loop:
//
//	agent:
//	  model: "claude-sonnet-4-20250514"
//	  provider: "anthropic"
//	  api_key: "${ANTHROPIC_API_KEY}"
//	  max_tokens: 8192
//	  thinking_budget: 2048
//	  max_retries: 3
//	  retry_delay: "1s"
//
// Background tasks:
//
//	tasks:
//	  max_concurrent: 64
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Server HTTP address presence
//   - Database path presence
//   - Redis address or URL presence
//   - Agent model presence
//   - Duration format validity
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/relay/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

// Package config handles configuration loading for copilot-gateway.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Defaults are applied after parsing and the result is validated
// with struct tags plus a few cross-field checks.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COPILOT_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/copilot-gateway/gateway.yaml
//  3. ~/.config/copilot-gateway/gateway.yaml
//
// Files ending in .toml are decoded as TOML. Anything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	uploader:
//	  bearer_token: "${UPLOAD_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	runtime:
//	  timeout: "2m"
//
// A zero or missing timeout means the client never gives up on its own.
//
// # Example Configuration
//
//	server:
//	  http_addr: "0.0.0.0:4111"
//	  route: "/copilotkit"
//
//	uploader:
//	  endpoint: "https://files.example.com/upload"
//	  timeout: "30s"
//
//	runtime:
//	  endpoint: "http://localhost:4112/copilotkit"
//	  resource_id: "pdfQuestionAgent"
//
//	attachments:
//	  missing_file: "skip"  # or "fail"
//	  other_kinds: "drop"   # or "keep"
//
//	logging:
//	  level: "info"
//	  format: "text"
package config

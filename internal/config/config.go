// ABOUTME: Configuration loading and parsing for copilot-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Attachment policy values.
const (
	MissingFileSkip = "skip"
	MissingFileFail = "fail"

	OtherKindsDrop = "drop"
	OtherKindsKeep = "keep"
)

// Config represents the complete copilot-gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Tailscale   TailscaleConfig   `yaml:"tailscale" toml:"tailscale"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	CORS        CORSConfig        `yaml:"cors" toml:"cors"`
	Uploader    UploaderConfig    `yaml:"uploader" toml:"uploader"`
	Runtime     RuntimeConfig     `yaml:"runtime" toml:"runtime"`
	Context     ContextConfig     `yaml:"context" toml:"context"`
	Attachments AttachmentsConfig `yaml:"attachments" toml:"attachments"`
	Agents      []AgentConfig     `yaml:"agents" toml:"agents" validate:"dive"`
	Workflows   []WorkflowConfig  `yaml:"workflows" toml:"workflows" validate:"dive"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener and gateway route settings
type ServerConfig struct {
	HTTPAddr     string `yaml:"http_addr" toml:"http_addr"`
	Route        string `yaml:"route" toml:"route" validate:"startswith=/"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" toml:"max_body_bytes" validate:"gte=0"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // Serve HTTPS on :443 with Tailscale certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// DatabaseConfig holds the telemetry database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration.
// An empty JWTSecret disables the bearer token gate.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// CORSConfig holds the cross-origin policy applied to every route
type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins" toml:"allow_origins"`
	AllowMethods []string `yaml:"allow_methods" toml:"allow_methods"`
	AllowHeaders []string `yaml:"allow_headers" toml:"allow_headers"`
}

// UploaderConfig describes the external attachment storage endpoint
type UploaderConfig struct {
	Endpoint    string             `yaml:"endpoint" toml:"endpoint" validate:"required,url"`
	BearerToken string             `yaml:"bearer_token" toml:"bearer_token"`
	OAuth       *OAuthClientConfig `yaml:"oauth" toml:"oauth"`
	Timeout     time.Duration      `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// OAuthClientConfig holds OAuth2 client-credentials settings for the uploader
type OAuthClientConfig struct {
	TokenURL     string   `yaml:"token_url" toml:"token_url" validate:"required,url"`
	ClientID     string   `yaml:"client_id" toml:"client_id" validate:"required"`
	ClientSecret string   `yaml:"client_secret" toml:"client_secret"`
	Scopes       []string `yaml:"scopes" toml:"scopes"`
}

// RuntimeConfig describes the downstream agent runtime
type RuntimeConfig struct {
	Endpoint   string        `yaml:"endpoint" toml:"endpoint" validate:"required,url"`
	ResourceID string        `yaml:"resource_id" toml:"resource_id"`
	Timeout    time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// ContextConfig controls how the per-request execution context is built
type ContextConfig struct {
	UserHeader       string `yaml:"user_header" toml:"user_header"`
	AnonymousUser    string `yaml:"anonymous_user" toml:"anonymous_user"`
	TemperatureScale string `yaml:"temperature_scale" toml:"temperature_scale" validate:"omitempty,oneof=celsius fahrenheit"`
}

// AttachmentsConfig selects the attachment rewrite policies
type AttachmentsConfig struct {
	MissingFile string `yaml:"missing_file" toml:"missing_file" validate:"omitempty,oneof=skip fail"`
	OtherKinds  string `yaml:"other_kinds" toml:"other_kinds" validate:"omitempty,oneof=drop keep"`
}

// AgentConfig registers a named agent with the runtime
type AgentConfig struct {
	Name        string `yaml:"name" toml:"name" validate:"required"`
	Description string `yaml:"description" toml:"description"`
}

// WorkflowConfig registers a named workflow with the runtime
type WorkflowConfig struct {
	Name        string   `yaml:"name" toml:"name" validate:"required"`
	Description string   `yaml:"description" toml:"description"`
	Agents      []string `yaml:"agents" toml:"agents"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"omitempty,oneof=text json"`
}

var validate = validator.New()

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills every unset field with the gateway default.
func (c *Config) ApplyDefaults() {
	if c.Server.Route == "" {
		c.Server.Route = "/copilotkit"
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 32 << 20
	}
	if c.Database.Path == "" {
		c.Database.Path = ":memory:"
	}

	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"*"}
	}
	if len(c.CORS.AllowMethods) == 0 {
		c.CORS.AllowMethods = []string{"*"}
	}
	if len(c.CORS.AllowHeaders) == 0 {
		c.CORS.AllowHeaders = []string{"*"}
	}

	if c.Context.UserHeader == "" {
		c.Context.UserHeader = "X-User-ID"
	}
	if c.Context.AnonymousUser == "" {
		c.Context.AnonymousUser = "anonymous"
	}
	if c.Context.TemperatureScale == "" {
		c.Context.TemperatureScale = "celsius"
	}

	if c.Attachments.MissingFile == "" {
		c.Attachments.MissingFile = MissingFileSkip
	}
	if c.Attachments.OtherKinds == "" {
		c.Attachments.OtherKinds = OtherKindsDrop
	}

	// Built-in workflows only reference built-in agents
	defaultAgents := len(c.Agents) == 0
	if defaultAgents {
		c.Agents = []AgentConfig{
			{Name: "textQuestionAgent", Description: "Generates questions from plain text"},
			{Name: "pdfQuestionAgent", Description: "Generates questions from an uploaded PDF"},
			{Name: "pdfSummarizationAgent", Description: "Summarizes an uploaded PDF"},
		}
	}
	if len(c.Workflows) == 0 && defaultAgents {
		c.Workflows = []WorkflowConfig{
			{
				Name:        "pdfToQuestionsWorkflow",
				Description: "Summarizes a PDF and generates questions from the summary",
				Agents:      []string{"pdfSummarizationAgent", "textQuestionAgent"},
			},
		}
	}
	if c.Runtime.ResourceID == "" {
		c.Runtime.ResourceID = "pdfQuestionAgent"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return err
	}

	// The HTTP address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if seen[a.Name] {
			return fmt.Errorf("agent %q is registered twice", a.Name)
		}
		seen[a.Name] = true
	}
	if !seen[c.Runtime.ResourceID] {
		return fmt.Errorf("runtime.resource_id %q is not a registered agent", c.Runtime.ResourceID)
	}

	for _, wf := range c.Workflows {
		for _, name := range wf.Agents {
			if !seen[name] {
				return fmt.Errorf("workflow %q references unknown agent %q", wf.Name, name)
			}
		}
	}

	route := c.Server.Route
	if strings.HasPrefix(route, "/api/") || route == "/health" || strings.HasPrefix(route, "/health/") {
		return fmt.Errorf("server.route %q collides with a built-in route", c.Server.Route)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Uploader.TimeoutRaw != "" {
		cfg.Uploader.Timeout, err = time.ParseDuration(cfg.Uploader.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing uploader.timeout %q: %w", cfg.Uploader.TimeoutRaw, err)
		}
	}

	if cfg.Runtime.TimeoutRaw != "" {
		cfg.Runtime.Timeout, err = time.ParseDuration(cfg.Runtime.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing runtime.timeout %q: %w", cfg.Runtime.TimeoutRaw, err)
		}
	}

	return nil
}

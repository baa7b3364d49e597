package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBufferSize   = 1000
	DefaultPollInterval = 500 * time.Millisecond
	DefaultSendTimeout  = 10 * time.Second
)

// Config is the top-level configuration for the relay agent.
type Config struct {
	// LogLevel is one of debug | info | warn | error (default info).
	LogLevel string      `yaml:"log_level"`
	Agent    AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerURL is the base URL of pilotwatch-server (scheme://host:port).
	// Samples are posted to {ServerURL}/api/v1/pilots/{id}/vitals.
	ServerURL string `yaml:"server_url"`

	// BufferSize is the maximum number of samples held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// SendTimeout bounds a single POST to the server.
	SendTimeout time.Duration `yaml:"send_timeout"`

	// Sources is the list of sample streams to relay.
	Sources []Source `yaml:"sources"`

	// ServerAuth configures how the agent authenticates to pilotwatch-server.
	ServerAuth AuthConfig `yaml:"server_auth"`

	// TLS holds optional TLS dial options for the server connection.
	TLS TLSConfig `yaml:"tls"`
}

// Source describes one stream of JSON-lines vitals samples.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Type is one of: file | stdin.
	Type string `yaml:"type"`

	// Path is the file to read. Required for type file.
	Path string `yaml:"path"`

	// Follow keeps reading appended lines after EOF, like tail -f.
	Follow bool `yaml:"follow"`

	// PollInterval is how often a followed file is checked for new lines.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// AuthConfig specifies how the agent authenticates to the server.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | none.
	Mode string `yaml:"mode"`

	// mTLS fields: used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields: used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	for i := range cfg.Agent.Sources {
		if cfg.Agent.Sources[i].PollInterval == 0 {
			cfg.Agent.Sources[i].PollInterval = DefaultPollInterval
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Agent: AgentConfig{
			BufferSize:  DefaultBufferSize,
			SendTimeout: DefaultSendTimeout,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error", cfg.LogLevel)
	}
	if cfg.Agent.ServerURL == "" {
		return fmt.Errorf("agent.server_url is required")
	}
	if cfg.Agent.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if cfg.Agent.SendTimeout <= 0 {
		return fmt.Errorf("agent.send_timeout must be positive")
	}
	switch cfg.Agent.ServerAuth.Mode {
	case "mtls":
		if cfg.Agent.ServerAuth.CertFile == "" || cfg.Agent.ServerAuth.KeyFile == "" {
			return fmt.Errorf("agent.server_auth: cert_file and key_file are required for mtls")
		}
	case "apikey", "none", "":
	default:
		return fmt.Errorf("agent.server_auth: unknown mode %q", cfg.Agent.ServerAuth.Mode)
	}

	seen := make(map[string]bool, len(cfg.Agent.Sources))
	stdin := 0
	for i, src := range cfg.Agent.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		switch src.Type {
		case "file":
			if src.Path == "" {
				return fmt.Errorf("sources[%d] %q: path is required", i, src.ID)
			}
		case "stdin":
			stdin++
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.ID, src.Type)
		}
		if src.PollInterval < 0 {
			return fmt.Errorf("sources[%d] %q: poll_interval must not be negative", i, src.ID)
		}
	}
	if stdin > 1 {
		return fmt.Errorf("at most one stdin source is allowed")
	}
	return nil
}

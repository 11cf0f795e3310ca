package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultCollectInterval = 30 * time.Second
	DefaultShipInterval    = 15 * time.Second
	DefaultBufferSize      = 1000
	DefaultLogLevel        = "info"
	DefaultRedfishLogPath  = "/Systems/1/LogServices/SEL/Entries"
	DefaultIPMICommand     = "ipmitool"
)

// DefaultIPMIArgs is the argument list used when an ipmi source sets no args.
var DefaultIPMIArgs = []string{"sel", "elist"}

// DefaultFamilies are the exporter gauge families read from prometheus sources.
var DefaultFamilies = []string{"ipmi_sensor_state", "redfish_health"}

// Config is the top-level agent configuration. The server section of a shared
// config file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the OTLP/gRPC address of tems-server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// CollectInterval controls how often each source is polled.
	CollectInterval time.Duration `yaml:"collect_interval"`

	// ShipInterval controls how often buffered batches are exported.
	ShipInterval time.Duration `yaml:"ship_interval"`

	// BufferSize is the maximum number of batches held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Sources is the list of BMCs and exporters to collect from.
	Sources []Source `yaml:"sources"`
}

// SlogLevel returns LogLevel as a slog.Level. validate guarantees it parses.
func (a AgentConfig) SlogLevel() slog.Level {
	var l slog.Level
	_ = l.UnmarshalText([]byte(a.LogLevel))
	return l
}

// Source describes one event source.
type Source struct {
	// ID is a unique, human-readable identifier for this source. The server
	// keeps one scoring window per ID.
	ID string `yaml:"id"`

	// Type is the collector kind: redfish | ipmi | prometheus.
	Type string `yaml:"type"`

	// Vendor is free-form metadata (dell, hpe, supermicro, ...) passed through
	// to the server.
	Vendor string `yaml:"vendor"`

	// Endpoint is the BMC base URL (redfish), exporter metrics URL
	// (prometheus) or BMC address handed to ipmitool -H (ipmi, optional).
	Endpoint string `yaml:"endpoint"`

	// Host overrides the host name stamped on events. Defaults to the
	// endpoint's host.
	Host string `yaml:"host"`

	// LogPath is the Redfish log service path below /redfish/v1.
	LogPath string `yaml:"log_path"`

	// Command and Args select the ipmitool invocation.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// Families lists the gauge families a prometheus source turns into events.
	Families []string `yaml:"families"`

	// Auth configures how the agent authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`

	// CheckCert enables the TLS certificate expiry check for https endpoints.
	CheckCert bool `yaml:"check_cert"`
}

// EventHost returns the host name to stamp on events from this source.
func (s Source) EventHost() string {
	if s.Host != "" {
		return s.Host
	}
	if u, err := url.Parse(s.Endpoint); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	if h, _, err := net.SplitHostPort(s.Endpoint); err == nil && h != "" {
		return h
	}
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return s.ID
}

// RedfishLogPath returns LogPath or the SEL entries default.
func (s Source) RedfishLogPath() string {
	if s.LogPath == "" {
		return DefaultRedfishLogPath
	}
	return s.LogPath
}

// IPMICommand returns the command and arguments for an ipmi source.
func (s Source) IPMICommand() (string, []string) {
	cmd := s.Command
	if cmd == "" {
		cmd = DefaultIPMICommand
	}
	args := s.Args
	if len(args) == 0 {
		args = DefaultIPMIArgs
	}
	return cmd, args
}

// GaugeFamilies returns Families or DefaultFamilies.
func (s Source) GaugeFamilies() []string {
	if len(s.Families) == 0 {
		return DefaultFamilies
	}
	return s.Families
}

// AuthConfig specifies the authentication mode for a source.
type AuthConfig struct {
	// Mode is one of: basic | bearer | apikey | none.
	Mode string `yaml:"mode"`

	// Basic auth fields, used when Mode == "basic".
	// Username is the literal username (safe to store in config).
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`

	// Bearer token fields, used when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// API key fields, used when Mode == "apikey".
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

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification. Most BMCs
	// ship self-signed certificates.
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

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			CollectInterval: DefaultCollectInterval,
			ShipInterval:    DefaultShipInterval,
			BufferSize:      DefaultBufferSize,
			LogLevel:        DefaultLogLevel,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if a.CollectInterval <= 0 {
		return fmt.Errorf("agent.collect_interval must be positive")
	}
	if a.ShipInterval <= 0 {
		return fmt.Errorf("agent.ship_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(a.LogLevel)); err != nil {
		return fmt.Errorf("agent.log_level: %w", err)
	}

	seen := make(map[string]bool, len(a.Sources))
	for i, src := range a.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true

		switch src.Type {
		case "redfish", "prometheus":
			if src.Endpoint == "" {
				return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
			}
		case "ipmi":
			if src.Endpoint == "" && src.Host == "" {
				return fmt.Errorf("sources[%d] %q: ipmi needs endpoint or host", i, src.ID)
			}
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.ID, src.Type)
		}
		switch src.Auth.Mode {
		case "basic", "bearer", "apikey", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
	}
	return nil
}

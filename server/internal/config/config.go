package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "score > 0.5", "critical_count >= 1",
	// "service_concentration > 0.8", "label == degraded".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultGRPCPort          = 4317
	DefaultHTTPPort          = 8080
	DefaultLogLevel          = "info"
	DefaultWindowMaxEvents   = 500
	DefaultWindowMaxAge      = 15 * time.Minute
	DefaultSnapshotTTL       = 5 * time.Minute
	DefaultPredictMaxEvents  = 10000
	DefaultPredictMaxBody    = 8 << 20
	DefaultBroadcastInterval = 5 * time.Second
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the OTLP/gRPC receiver listens on (default 4317).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API, OTLP/HTTP receiver and WebSocket hub
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Window bounds the per-source event window that is scored.
	Window WindowConfig `yaml:"window"`

	// Snapshot controls in-memory result retention.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Predict bounds the synchronous /predict endpoint.
	Predict PredictConfig `yaml:"predict"`

	// Stream controls the WebSocket snapshot broadcast.
	Stream StreamConfig `yaml:"stream"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// SlogLevel returns LogLevel as a slog.Level. validate guarantees it parses.
func (s ServerConfig) SlogLevel() slog.Level {
	var l slog.Level
	_ = l.UnmarshalText([]byte(s.LogLevel))
	return l
}

// WindowConfig bounds each source's scoring window. An event leaves the
// window when more than MaxEvents newer events have arrived or it arrived
// more than MaxAge ago.
type WindowConfig struct {
	MaxEvents int           `yaml:"max_events"`
	MaxAge    time.Duration `yaml:"max_age"`
}

// SnapshotConfig controls in-memory result retention.
type SnapshotConfig struct {
	// TTL is how long a source's result remains in the store after its last update.
	// When TTL elapses without new events from a source, the entry is evicted.
	// Default: 5m.
	TTL time.Duration `yaml:"ttl"`
}

// PredictConfig bounds one /predict request.
type PredictConfig struct {
	MaxEvents    int   `yaml:"max_events"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// StreamConfig controls the WebSocket hub.
type StreamConfig struct {
	// Interval is how often the full snapshot is pushed to clients (default 5s).
	Interval time.Duration `yaml:"interval"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			LogLevel: DefaultLogLevel,
			Window: WindowConfig{
				MaxEvents: DefaultWindowMaxEvents,
				MaxAge:    DefaultWindowMaxAge,
			},
			Snapshot: SnapshotConfig{
				TTL: DefaultSnapshotTTL,
			},
			Predict: PredictConfig{
				MaxEvents:    DefaultPredictMaxEvents,
				MaxBodyBytes: DefaultPredictMaxBody,
			},
			Stream: StreamConfig{
				Interval: DefaultBroadcastInterval,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort == s.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ")
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return fmt.Errorf("server.log_level: %w", err)
	}
	if s.Window.MaxEvents <= 0 {
		return fmt.Errorf("server.window.max_events must be positive")
	}
	if s.Window.MaxAge < 0 {
		return fmt.Errorf("server.window.max_age must not be negative")
	}
	if s.Snapshot.TTL < 0 {
		return fmt.Errorf("server.snapshot.ttl must not be negative")
	}
	if s.Predict.MaxEvents <= 0 {
		return fmt.Errorf("server.predict.max_events must be positive")
	}
	if s.Predict.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.predict.max_body_bytes must be positive")
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "teams", "slack", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d] %q: condition is required", i, r.Name)
		}
	}
	return nil
}

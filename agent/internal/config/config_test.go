package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  server_endpoint: "localhost:4317"
  collect_interval: 10s
  ship_interval: 5s
  buffer_size: 500
  log_level: debug
  sources:
    - id: r740-01
      type: redfish
      vendor: dell
      endpoint: "https://10.0.0.21"
      auth:
        mode: basic
        username: root
        password_env: BMC_PASSWORD
      tls:
        insecure_skip_verify: true
      check_cert: true
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.ServerEndpoint != "localhost:4317" {
		t.Errorf("server_endpoint: got %q", cfg.Agent.ServerEndpoint)
	}
	if cfg.Agent.CollectInterval != 10*time.Second {
		t.Errorf("collect_interval: got %v", cfg.Agent.CollectInterval)
	}
	if cfg.Agent.ShipInterval != 5*time.Second {
		t.Errorf("ship_interval: got %v", cfg.Agent.ShipInterval)
	}
	if cfg.Agent.BufferSize != 500 {
		t.Errorf("buffer_size: got %d", cfg.Agent.BufferSize)
	}
	if cfg.Agent.SlogLevel() != slog.LevelDebug {
		t.Errorf("log_level: got %v", cfg.Agent.SlogLevel())
	}
	if len(cfg.Agent.Sources) != 1 {
		t.Fatalf("sources: got %d, want 1", len(cfg.Agent.Sources))
	}
	src := cfg.Agent.Sources[0]
	if src.ID != "r740-01" || src.Type != "redfish" || src.Vendor != "dell" {
		t.Errorf("source: got %+v", src)
	}
	if !src.TLS.InsecureSkipVerify || !src.CheckCert {
		t.Errorf("tls/check_cert not parsed: %+v", src)
	}
	if src.Auth.Username != "root" || src.Auth.PasswordEnv != "BMC_PASSWORD" {
		t.Errorf("auth: got %+v", src.Auth)
	}
}

func TestLoad_Defaults(t *testing.T) {
	yaml := `
agent:
  server_endpoint: "localhost:4317"
  sources:
    - id: exp
      type: prometheus
      endpoint: "http://localhost:9290/metrics"
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.CollectInterval != DefaultCollectInterval {
		t.Errorf("default collect_interval: got %v, want %v", cfg.Agent.CollectInterval, DefaultCollectInterval)
	}
	if cfg.Agent.ShipInterval != DefaultShipInterval {
		t.Errorf("default ship_interval: got %v, want %v", cfg.Agent.ShipInterval, DefaultShipInterval)
	}
	if cfg.Agent.BufferSize != DefaultBufferSize {
		t.Errorf("default buffer_size: got %d, want %d", cfg.Agent.BufferSize, DefaultBufferSize)
	}
	if cfg.Agent.SlogLevel() != slog.LevelInfo {
		t.Errorf("default log level: got %v", cfg.Agent.SlogLevel())
	}
	fams := cfg.Agent.Sources[0].GaugeFamilies()
	if len(fams) != len(DefaultFamilies) || fams[0] != DefaultFamilies[0] {
		t.Errorf("default families: got %v", fams)
	}
}

func TestLoad_IgnoresServerSection(t *testing.T) {
	yaml := `
agent:
  server_endpoint: "localhost:4317"
server:
  grpc_port: 4317
  window:
    max_events: 10
`
	cfg := loadFromString(t, yaml)
	if len(cfg.Agent.Sources) != 0 {
		t.Errorf("sources: got %d, want 0", len(cfg.Agent.Sources))
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing server_endpoint", `
agent:
  sources:
    - id: exp
      type: prometheus
      endpoint: "http://localhost:9290/metrics"
`},
		{"unknown source type", `
agent:
  server_endpoint: "localhost:4317"
  sources:
    - id: mystery
      type: snmp
      endpoint: "udp://10.0.0.1"
`},
		{"unknown auth mode", `
agent:
  server_endpoint: "localhost:4317"
  sources:
    - id: bmc
      type: redfish
      endpoint: "https://10.0.0.1"
      auth:
        mode: magictoken
`},
		{"redfish without endpoint", `
agent:
  server_endpoint: "localhost:4317"
  sources:
    - id: bmc
      type: redfish
`},
		{"ipmi without endpoint or host", `
agent:
  server_endpoint: "localhost:4317"
  sources:
    - id: local
      type: ipmi
`},
		{"duplicate id", `
agent:
  server_endpoint: "localhost:4317"
  sources:
    - id: bmc
      type: redfish
      endpoint: "https://10.0.0.1"
    - id: bmc
      type: redfish
      endpoint: "https://10.0.0.2"
`},
		{"bad log level", `
agent:
  server_endpoint: "localhost:4317"
  log_level: loud
`},
		{"zero buffer", `
agent:
  server_endpoint: "localhost:4317"
  buffer_size: 0
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_AuthModes(t *testing.T) {
	for _, mode := range []string{"basic", "bearer", "apikey", "none", ""} {
		t.Run("mode="+mode, func(t *testing.T) {
			yaml := `
agent:
  server_endpoint: "localhost:4317"
  sources:
    - id: src
      type: redfish
      endpoint: "https://10.0.0.1"
      auth:
        mode: "` + mode + `"
`
			cfg := loadFromString(t, yaml)
			if cfg.Agent.Sources[0].Auth.Mode != mode {
				t.Errorf("auth mode: got %q, want %q", cfg.Agent.Sources[0].Auth.Mode, mode)
			}
		})
	}
}

func TestAuthConfig_Secrets(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	t.Setenv("TEST_BMC_PASSWORD", "calvin")

	a := AuthConfig{KeyEnv: "TEST_API_KEY", TokenEnv: "TEST_BEARER_TOKEN", PasswordEnv: "TEST_BMC_PASSWORD"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q", got)
	}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q", got)
	}
	if got := a.Password(); got != "calvin" {
		t.Errorf("Password(): got %q", got)
	}
	if got := (AuthConfig{}).Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestSource_EventHost(t *testing.T) {
	tests := []struct {
		src  Source
		want string
	}{
		{Source{ID: "a", Host: "node-7", Endpoint: "https://10.0.0.1"}, "node-7"},
		{Source{ID: "a", Endpoint: "https://10.0.0.1:8443/redfish"}, "10.0.0.1"},
		{Source{ID: "a", Endpoint: "bmc-3.lab:623"}, "bmc-3.lab"},
		{Source{ID: "a", Endpoint: "bmc-3.lab"}, "bmc-3.lab"},
		{Source{ID: "lonely"}, "lonely"},
	}
	for _, tc := range tests {
		if got := tc.src.EventHost(); got != tc.want {
			t.Errorf("EventHost(%+v) = %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestSource_IPMICommand(t *testing.T) {
	cmd, args := Source{}.IPMICommand()
	if cmd != "ipmitool" || len(args) != 2 || args[0] != "sel" || args[1] != "elist" {
		t.Errorf("default command: %q %v", cmd, args)
	}
	cmd, args = Source{Command: "/usr/bin/ipmitool", Args: []string{"-I", "lanplus", "sel", "elist"}}.IPMICommand()
	if cmd != "/usr/bin/ipmitool" || len(args) != 4 {
		t.Errorf("custom command: %q %v", cmd, args)
	}
}

func TestWatch_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(endpoint string) {
		t.Helper()
		body := "agent:\n  server_endpoint: \"" + endpoint + "\"\n"
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write("first:4317")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	go func() {
		_ = Watch(ctx, path, func(c *Config) { got <- c.Agent.ServerEndpoint })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	write("second:4317")

	select {
	case ep := <-got:
		if ep != "second:4317" {
			t.Errorf("reloaded endpoint: got %q", ep)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  server_url: "http://localhost:8080"
  buffer_size: 500
  send_timeout: 3s
  server_auth:
    mode: apikey
    key_env: PILOTWATCH_API_KEY
  sources:
    - id: sim
      type: file
      path: /var/lib/pilotwatch/samples.jsonl
      follow: true
      poll_interval: 2s
    - id: pipe
      type: stdin
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.ServerURL != "http://localhost:8080" {
		t.Errorf("server_url: got %q", cfg.Agent.ServerURL)
	}
	if cfg.Agent.BufferSize != 500 {
		t.Errorf("buffer_size: got %d", cfg.Agent.BufferSize)
	}
	if cfg.Agent.SendTimeout != 3*time.Second {
		t.Errorf("send_timeout: got %v", cfg.Agent.SendTimeout)
	}
	if len(cfg.Agent.Sources) != 2 {
		t.Fatalf("sources: got %d, want 2", len(cfg.Agent.Sources))
	}
	src := cfg.Agent.Sources[0]
	if src.ID != "sim" || src.Type != "file" || !src.Follow {
		t.Errorf("source 0: got %+v", src)
	}
	if src.PollInterval != 2*time.Second {
		t.Errorf("poll_interval: got %v", src.PollInterval)
	}
}

func TestLoad_Defaults(t *testing.T) {
	yaml := `
agent:
  server_url: "http://localhost:8080"
  sources:
    - id: sim
      type: file
      path: samples.jsonl
`
	cfg := loadFromString(t, yaml)

	if cfg.LogLevel != "info" {
		t.Errorf("default log_level: got %q", cfg.LogLevel)
	}
	if cfg.Agent.BufferSize != DefaultBufferSize {
		t.Errorf("default buffer_size: got %d, want %d", cfg.Agent.BufferSize, DefaultBufferSize)
	}
	if cfg.Agent.SendTimeout != DefaultSendTimeout {
		t.Errorf("default send_timeout: got %v, want %v", cfg.Agent.SendTimeout, DefaultSendTimeout)
	}
	if cfg.Agent.Sources[0].PollInterval != DefaultPollInterval {
		t.Errorf("default poll_interval: got %v, want %v", cfg.Agent.Sources[0].PollInterval, DefaultPollInterval)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing server_url", `
agent:
  sources:
    - id: sim
      type: file
      path: samples.jsonl
`},
		{"unknown source type", `
agent:
  server_url: "http://localhost:8080"
  sources:
    - id: mystery
      type: garmin
`},
		{"file without path", `
agent:
  server_url: "http://localhost:8080"
  sources:
    - id: sim
      type: file
`},
		{"duplicate id", `
agent:
  server_url: "http://localhost:8080"
  sources:
    - {id: a, type: file, path: a.jsonl}
    - {id: a, type: file, path: b.jsonl}
`},
		{"two stdin sources", `
agent:
  server_url: "http://localhost:8080"
  sources:
    - {id: a, type: stdin}
    - {id: b, type: stdin}
`},
		{"unknown auth mode", `
agent:
  server_url: "http://localhost:8080"
  server_auth:
    mode: magictoken
`},
		{"mtls without cert", `
agent:
  server_url: "http://localhost:8080"
  server_auth:
    mode: mtls
`},
		{"bad log level", `
log_level: loud
agent:
  server_url: "http://localhost:8080"
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

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
}

func TestAuthConfig_Key_Empty(t *testing.T) {
	a := AuthConfig{Mode: "apikey"}
	if got := a.Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestAuthConfig_EffectiveHeader(t *testing.T) {
	if got := (AuthConfig{}).EffectiveHeader(); got != "x-api-key" {
		t.Errorf("default header: got %q", got)
	}
	if got := (AuthConfig{Header: "X-Token"}).EffectiveHeader(); got != "X-Token" {
		t.Errorf("custom header: got %q", got)
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

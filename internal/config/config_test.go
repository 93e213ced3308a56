package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.Engine != "colly" || cfg.Fetch.MaxRetries != 5 {
		t.Fatalf("unexpected fetch defaults: %+v", cfg.Fetch)
	}
	if got := cfg.FetchTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s fetch timeout, got %v", got)
	}
	if cfg.Store.Driver != "memory" || cfg.Store.FuzzyThreshold != 0.94 {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if len(cfg.Sources) != 0 {
		t.Fatalf("expected no configured sources, got %d", len(cfg.Sources))
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
fetch:
  engine: resty
  agent_name: civic-bot
  agent_version: "2.0"
  contact: mailto:ops@example.ca
  purpose: testing
  timeout_seconds: 45
  max_retries: 3
  backoff_initial_ms: 100
  backoff_max_ms: 500
store:
  driver: sqlite
  dsn: file:test.db
archive:
  backend: local
  local_dir: /tmp/archive
logging:
  development: false
sources:
  - name: Test Council
    root_address: https://council.example.ca
    tier: municipal
    data_types: [politicians, bills]
    politeness_interval: 1500ms
    refresh_interval: 24h
    endpoints:
      politicians:
        path: /council
      bills:
        path: /bylaws.csv
        format: csv
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if got := cfg.Fetch.UserAgent(); got != "civic-bot/2.0 (+mailto:ops@example.ca; testing)" {
		t.Fatalf("unexpected user agent %q", got)
	}
	if cfg.BackoffInitial() != 100*time.Millisecond || cfg.BackoffMax() != 500*time.Millisecond {
		t.Fatalf("expected backoff overrides to apply: %+v", cfg.Fetch)
	}
	if len(cfg.Sources) != 1 {
		t.Fatalf("expected one source, got %d", len(cfg.Sources))
	}
	src := cfg.Sources[0]
	if src.PolitenessInterval != 1500*time.Millisecond || src.RefreshInterval != 24*time.Hour {
		t.Fatalf("expected durations to decode: %+v", src)
	}
	if src.Endpoints["bills"].Format != "csv" || src.Endpoints["politicians"].Path != "/council" {
		t.Fatalf("expected endpoints to decode: %+v", src.Endpoints)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("INGEST_FETCH_MAX_RETRIES", "2")
	t.Setenv("INGEST_STORE_FUZZY_THRESHOLD", "0.9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.MaxRetries != 2 {
		t.Fatalf("expected env override for max retries, got %d", cfg.Fetch.MaxRetries)
	}
	if cfg.Store.FuzzyThreshold != 0.9 {
		t.Fatalf("expected env override for fuzzy threshold, got %v", cfg.Store.FuzzyThreshold)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Fetch:    FetchConfig{Engine: "colly", AgentName: "bot", Contact: "ops", TimeoutSeconds: 10, MaxRetries: 5},
		Pipeline: PipelineConfig{ExtractConcurrency: 1, QueueDepth: 1},
		Store:    StoreConfig{Driver: "memory", FuzzyThreshold: 0.94},
		Archive:  ArchiveConfig{Backend: "none"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "unknown engine",
			cfg: func() Config {
				c := base
				c.Fetch.Engine = "curl"
				return c
			}(),
			want: "fetch.engine",
		},
		{
			name: "zero retries",
			cfg: func() Config {
				c := base
				c.Fetch.MaxRetries = 0
				return c
			}(),
			want: "fetch.max_retries",
		},
		{
			name: "sql driver without dsn",
			cfg: func() Config {
				c := base
				c.Store.Driver = "postgres"
				return c
			}(),
			want: "store.dsn",
		},
		{
			name: "gcs archive without bucket",
			cfg: func() Config {
				c := base
				c.Archive.Backend = "gcs"
				return c
			}(),
			want: "archive.gcs_bucket",
		},
		{
			name: "topic without project",
			cfg: func() Config {
				c := base
				c.Report.TopicName = "runs"
				return c
			}(),
			want: "report.project_id",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
				return c
			}(),
			want: "headless.max_parallel",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

// Package config loads and validates ingestion configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Store     StoreConfig     `mapstructure:"store"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Report    ReportConfig    `mapstructure:"report"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Sources   []SourceConfig  `mapstructure:"sources"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the operator HTTP server.
type ServerConfig struct {
	Port               int `mapstructure:"port"`
	RequestTimeoutSecs int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FetchConfig governs endpoint retrieval, identification and retry behavior.
type FetchConfig struct {
	Engine           string  `mapstructure:"engine"`
	AgentName        string  `mapstructure:"agent_name"`
	AgentVersion     string  `mapstructure:"agent_version"`
	Contact          string  `mapstructure:"contact"`
	Purpose          string  `mapstructure:"purpose"`
	From             string  `mapstructure:"from"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	JitterFraction   float64 `mapstructure:"jitter_fraction"`
	IgnoreRobots     bool    `mapstructure:"ignore_robots"`
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`
	MaxBodyBytes     int     `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the chromedp engine used for sources marked render.
type HeadlessConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	WaitSelector  string `mapstructure:"wait_selector"`
	// AutoPromote re-renders static responses that look like JavaScript shells.
	AutoPromote     bool `mapstructure:"auto_promote"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// PipelineConfig controls orchestrator concurrency and the run queue.
type PipelineConfig struct {
	ExtractConcurrency int `mapstructure:"extract_concurrency"`
	QueueDepth         int `mapstructure:"queue_depth"`
	RunHistory         int `mapstructure:"run_history"`
}

// StoreConfig selects and tunes the upsert store backend.
type StoreConfig struct {
	Driver         string  `mapstructure:"driver"`
	DSN            string  `mapstructure:"dsn"`
	MaxOpenConns   int     `mapstructure:"max_open_conns"`
	MaxIdleConns   int     `mapstructure:"max_idle_conns"`
	Migrate        bool    `mapstructure:"migrate"`
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
}

// ArchiveConfig sets where raw fetched documents are kept.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ReportConfig lists the sinks that receive each finished RunReport.
type ReportConfig struct {
	StatusFile   bool   `mapstructure:"status_file"`
	StatusPrefix string `mapstructure:"status_prefix"`
	ProjectID    string `mapstructure:"project_id"`
	TopicName    string `mapstructure:"topic_name"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// SourceConfig declares one source in the config file.
type SourceConfig struct {
	Name               string                    `mapstructure:"name"`
	RootAddress        string                    `mapstructure:"root_address"`
	Tier               string                    `mapstructure:"tier"`
	DataTypes          []string                  `mapstructure:"data_types"`
	Endpoints          map[string]EndpointConfig `mapstructure:"endpoints"`
	PolitenessInterval time.Duration             `mapstructure:"politeness_interval"`
	RefreshInterval    time.Duration             `mapstructure:"refresh_interval"`
	Render             bool                      `mapstructure:"render"`
}

// EndpointConfig is the relative path and body format of one source endpoint.
type EndpointConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

// Load builds a Config from an optional .env file, disk and environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("fetch.engine", "colly")
	v.SetDefault("fetch.agent_name", "govdata-ingest")
	v.SetDefault("fetch.agent_version", "0.1.0")
	v.SetDefault("fetch.contact", "https://github.com/JakeFAU/govdata-ingest")
	v.SetDefault("fetch.purpose", "public civic data research")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_retries", 5)
	v.SetDefault("fetch.backoff_initial_ms", 1000)
	v.SetDefault("fetch.backoff_max_ms", 30000)
	v.SetDefault("fetch.jitter_fraction", 0.1)
	v.SetDefault("fetch.ignore_robots", false)
	v.SetDefault("fetch.rate_limit_rps", 0)
	v.SetDefault("fetch.rate_limit_burst", 1)
	v.SetDefault("fetch.max_body_bytes", 10<<20)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.auto_promote", true)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("pipeline.extract_concurrency", 4)
	v.SetDefault("pipeline.queue_depth", 16)
	v.SetDefault("pipeline.run_history", 100)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.migrate", true)
	v.SetDefault("store.fuzzy_threshold", 0.94)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.local_dir", "data/archive")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("report.status_file", false)
	v.SetDefault("report.status_prefix", "runs")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "govdata-ingest")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Fetch.Engine {
	case "colly", "resty":
	default:
		return fmt.Errorf("fetch.engine must be colly or resty, got %q", c.Fetch.Engine)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("fetch.max_retries must be > 0")
	}
	if c.Fetch.BackoffInitialMs < 0 || c.Fetch.BackoffMaxMs < c.Fetch.BackoffInitialMs {
		return fmt.Errorf("fetch.backoff_max_ms must be >= fetch.backoff_initial_ms >= 0")
	}
	if c.Fetch.JitterFraction < 0 || c.Fetch.JitterFraction > 1 {
		return fmt.Errorf("fetch.jitter_fraction must be within [0,1]")
	}
	if c.Fetch.AgentName == "" || c.Fetch.Contact == "" {
		return fmt.Errorf("fetch.agent_name and fetch.contact must be set")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Pipeline.ExtractConcurrency <= 0 {
		return fmt.Errorf("pipeline.extract_concurrency must be > 0")
	}
	if c.Pipeline.QueueDepth <= 0 {
		return fmt.Errorf("pipeline.queue_depth must be > 0")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres", "sqlite", "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be memory, postgres, sqlite or mysql, got %q", c.Store.Driver)
	}
	if c.Store.FuzzyThreshold <= 0 || c.Store.FuzzyThreshold > 1 {
		return fmt.Errorf("store.fuzzy_threshold must be within (0,1]")
	}
	switch c.Archive.Backend {
	case "none", "memory", "local":
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.backend is gcs")
		}
	default:
		return fmt.Errorf("archive.backend must be none, memory, local or gcs, got %q", c.Archive.Backend)
	}
	if c.Report.TopicName != "" && c.Report.ProjectID == "" {
		return fmt.Errorf("report.project_id must be set when report.topic_name is set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout is the hard per-attempt timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// BackoffInitial is the base delay between fetch attempts.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Fetch.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps the delay between fetch attempts.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Fetch.BackoffMaxMs) * time.Millisecond
}

// UserAgent renders the identification header value.
func (f FetchConfig) UserAgent() string {
	agent := f.AgentName
	if f.AgentVersion != "" {
		agent += "/" + f.AgentVersion
	}
	detail := "+" + f.Contact
	if f.Purpose != "" {
		detail += "; " + f.Purpose
	}
	return fmt.Sprintf("%s (%s)", agent, detail)
}

// Package config provides two layers: the bootstrap file loaded by Load
// (the handful of settings needed before a database connection exists —
// where to connect, which provider endpoints to call, how to log) and the
// database-backed Store (store.go) that owns every runtime-tunable
// threshold named in spec §6.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	sharederrors "github.com/openpolicylabs/govintel/pkg/shared/errors"
)

// ServerConfig controls the optional operator-facing admin/metrics ports.
// This system has no user-facing HTTP API (that's a separate facade); these
// ports exist only for health checks and Prometheus scraping.
type ServerConfig struct {
	AdminPort   string `yaml:"admin_port"`
	MetricsPort string `yaml:"metrics_port"`
}

// DatabaseConfig is the subset of internal/database.Config that belongs in
// the bootstrap file; LoadFromEnv still overlays DB_* secrets on top.
type DatabaseConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Name string `yaml:"name"`
}

// ProviderConfig describes how to reach one external LLM or embedding
// backend (spec §6 "External LLM/embedding").
type ProviderConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
	Provider    string        `yaml:"provider"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Dimension   int           `yaml:"dimension"`
}

// UnmarshalYAML parses Timeout as a Go duration string ("30s"), leaving
// the value already in the struct (the compiled default) in place when
// the field is absent.
func (p *ProviderConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Endpoint    string  `yaml:"endpoint"`
		Model       string  `yaml:"model"`
		Timeout     string  `yaml:"timeout"`
		RetryCount  int     `yaml:"retry_count"`
		Provider    string  `yaml:"provider"`
		Temperature float32 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
		Dimension   int     `yaml:"dimension"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	p.Endpoint = raw.Endpoint
	p.Model = raw.Model
	p.RetryCount = raw.RetryCount
	p.Provider = raw.Provider
	p.Temperature = raw.Temperature
	p.MaxTokens = raw.MaxTokens
	p.Dimension = raw.Dimension

	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return sharederrors.Wrapf(err, "invalid timeout duration %q", raw.Timeout)
		}
		p.Timeout = d
	}
	return nil
}

// ProvidersConfig groups the LLM Provider (C5) and Embedding Provider (C4)
// bootstrap settings.
type ProvidersConfig struct {
	LLM       ProviderConfig `yaml:"llm"`
	Embedding ProviderConfig `yaml:"embedding"`
}

// PathsConfig seeds the Path Resolver (C2) before the Config Store (which
// can override these at runtime) is reachable.
type PathsConfig struct {
	RawDataDir string `yaml:"raw_data_dir"`
	LogDir     string `yaml:"log_dir"`
	ConfigDir  string `yaml:"config_dir"`
}

// CycleConfig controls the Cycle Driver's top-level cadence.
type CycleConfig struct {
	DryRun         bool          `yaml:"dry_run"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	CooldownPeriod time.Duration `yaml:"cooldown_period"`
}

// UnmarshalYAML parses CooldownPeriod as a Go duration string ("5m").
func (c *CycleConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		DryRun         bool   `yaml:"dry_run"`
		MaxConcurrent  int    `yaml:"max_concurrent"`
		CooldownPeriod string `yaml:"cooldown_period"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.DryRun = raw.DryRun
	c.MaxConcurrent = raw.MaxConcurrent

	if raw.CooldownPeriod != "" {
		d, err := time.ParseDuration(raw.CooldownPeriod)
		if err != nil {
			return sharederrors.Wrapf(err, "invalid cooldown_period duration %q", raw.CooldownPeriod)
		}
		c.CooldownPeriod = d
	}
	return nil
}

// IngestFilter drops raw records matching a field/value condition before
// they ever reach the Deduplication Service, e.g. excluding known
// low-signal platforms.
type IngestFilter struct {
	Name       string              `yaml:"name"`
	Conditions map[string][]string `yaml:"conditions"`
}

// LoggingConfig controls logrus's level and formatter.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the bootstrap configuration loaded once at process start.
type Config struct {
	Server        ServerConfig    `yaml:"server"`
	Database      DatabaseConfig  `yaml:"database"`
	Providers     ProvidersConfig `yaml:"providers"`
	Paths         PathsConfig     `yaml:"paths"`
	Cycle         CycleConfig     `yaml:"cycle"`
	IngestFilters []IngestFilter  `yaml:"ingest_filters"`
	Logging       LoggingConfig   `yaml:"logging"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			AdminPort:   "8080",
			MetricsPort: "9090",
		},
		Database: DatabaseConfig{
			Host: "localhost",
			Port: 5432,
			Name: "governance_intel",
		},
		Providers: ProvidersConfig{
			LLM: ProviderConfig{
				Provider:   "anthropic",
				Timeout:    30 * time.Second,
				RetryCount: 3,
			},
			Embedding: ProviderConfig{
				Provider:  "local",
				Timeout:   20 * time.Second,
				Dimension: 1536,
			},
		},
		Paths: PathsConfig{
			RawDataDir: "/var/lib/govintel/raw",
			LogDir:     "/var/log/govintel",
			ConfigDir:  "/etc/govintel",
		},
		Cycle: CycleConfig{
			MaxConcurrent:  5,
			CooldownPeriod: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads, parses and defaults a bootstrap config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, fmt.Sprintf("failed to read config file: %s", path))
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, fmt.Sprintf("failed to parse config file: %s", path))
	}

	return cfg, nil
}

// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher" yaml:"fetcher"`
	Scoring  ScoringConfig  `mapstructure:"scoring" yaml:"scoring"`
	Classify ClassifyConfig `mapstructure:"classify" yaml:"classify"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	// Run gets its marching orders from CLI flags, not the config file.
	Run RunConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// CacheConfig selects and tunes the enrichment cache backend.
type CacheConfig struct {
	// Backend is "sqlite" (default, local file) or "postgres" (shared).
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the SQLite database file. Empty means ~/.insightshield/cache.db.
	Path string `mapstructure:"path" yaml:"path"`
	// URL is the Postgres connection string when Backend is "postgres".
	URL string `mapstructure:"url" yaml:"url"`
	// TTL is how long found and not-found records stay fresh.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
	// ErrorTTL is the short freshness window for error records, so a later
	// run retries instead of treating the identifier as permanently unknown.
	ErrorTTL time.Duration `mapstructure:"error_ttl" yaml:"error_ttl"`
}

// ResolvePath returns the effective SQLite file path, expanding the default
// under the user's home directory when unset.
func (c CacheConfig) ResolvePath() (string, error) {
	if c.Path != "" {
		return c.Path, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory for cache path: %w", err)
	}
	return filepath.Join(home, ".insightshield", "cache.db"), nil
}

// FetcherConfig tunes the external metadata client.
type FetcherConfig struct {
	// BaseURL is the metadata source endpoint (NVD CVE API shape).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// APIKey is sent as the apiKey header when set.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	// Timeout bounds a single HTTP request.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RateLimit is the sustained request rate in requests per second,
	// shared across all identifiers in a run.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	// RateBurst is the limiter's burst allowance.
	RateBurst int `mapstructure:"rate_burst" yaml:"rate_burst"`
	// RetryAttempts bounds the retry loop for transient failures.
	RetryAttempts int `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	// BackoffBase is the delay before the first retry; subsequent retries
	// double it.
	BackoffBase time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	// BackoffCap clamps the exponential growth.
	BackoffCap time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
}

// ScoringConfig holds the weighted-combination parameters. Thresholds and
// weights are a configuration surface, not constants in the engine.
type ScoringConfig struct {
	Weights    WeightsConfig    `mapstructure:"weights" yaml:"weights"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds" yaml:"thresholds"`
}

// WeightsConfig assigns a relative weight to each signal. Weights are
// renormalized over the signals present on each finding, so they need not
// sum to one.
type WeightsConfig struct {
	Severity float64 `mapstructure:"severity" yaml:"severity"`
	CVSS     float64 `mapstructure:"cvss" yaml:"cvss"`
	EPSS     float64 `mapstructure:"epss" yaml:"epss"`
	VPR      float64 `mapstructure:"vpr" yaml:"vpr"`
}

// ThresholdsConfig maps composite-score bands to priority categories.
// A score at or above High is "high", and so on; anything below Low is
// informational. "Immediate" is reserved for the known-exploited override.
type ThresholdsConfig struct {
	High   float64 `mapstructure:"high" yaml:"high"`
	Medium float64 `mapstructure:"medium" yaml:"medium"`
	Low    float64 `mapstructure:"low" yaml:"low"`
}

// ClassifyConfig drives name-based severity assignment and bucket
// categorization for findings whose scanner output is incomplete.
type ClassifyConfig struct {
	// SeverityPatterns maps a severity label to lowercase substrings of
	// vulnerability names that imply it.
	SeverityPatterns map[string][]string `mapstructure:"severity_patterns" yaml:"severity_patterns"`
	// Buckets maps a reporting bucket to the lowercase keywords that place
	// a finding in it.
	Buckets map[string][]string `mapstructure:"buckets" yaml:"buckets"`
}

// EngineConfig tunes the pipeline's concurrency.
type EngineConfig struct {
	// Concurrency bounds how many identifiers resolve in parallel. The
	// rate limiter still gates actual request departure.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// RunConfig holds settings populated from CLI flags for a specific run.
type RunConfig struct {
	InputPath   string
	KEVPath     string
	Output      string
	Format      string
	ClearCache  bool
	Concurrency int
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "insightshield")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Cache --
	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.ttl", 7*24*time.Hour)
	v.SetDefault("cache.error_ttl", time.Hour)

	// -- Fetcher --
	v.SetDefault("fetcher.base_url", "https://services.nvd.nist.gov/rest/json/cves/2.0")
	v.SetDefault("fetcher.timeout", 10*time.Second)
	v.SetDefault("fetcher.rate_limit", 0.6)
	v.SetDefault("fetcher.rate_burst", 2)
	v.SetDefault("fetcher.retry_attempts", 5)
	v.SetDefault("fetcher.backoff_base", 5*time.Second)
	v.SetDefault("fetcher.backoff_cap", 80*time.Second)

	// -- Scoring --
	v.SetDefault("scoring.weights.severity", 0.2)
	v.SetDefault("scoring.weights.cvss", 0.3)
	v.SetDefault("scoring.weights.epss", 0.3)
	v.SetDefault("scoring.weights.vpr", 0.2)
	v.SetDefault("scoring.thresholds.high", 0.75)
	v.SetDefault("scoring.thresholds.medium", 0.5)
	v.SetDefault("scoring.thresholds.low", 0.25)

	// -- Classify --
	v.SetDefault("classify.severity_patterns", defaultSeverityPatterns)
	v.SetDefault("classify.buckets", defaultBuckets)

	// -- Engine --
	v.SetDefault("engine.concurrency", 4)
}

// defaultSeverityPatterns mirror the name heuristics the triage team uses for
// scanner rows that arrive without a usable risk label.
var defaultSeverityPatterns = map[string][]string{
	"critical": {"seol", "unsupported version", "end of life", "backdoor"},
	"high":     {"default credential", "remote code execution", "sql injection"},
	"medium":   {"self-signed", "untrusted", "weak cipher", "deprecated protocol"},
	"low":      {"banner", "version disclosure", "timestamp"},
}

// defaultBuckets group findings into remediation themes for reporting.
var defaultBuckets = map[string][]string{
	"Patching":       {"update", "patch", "upgrade", "out-of-date"},
	"Configuration":  {"configuration", "default credential", "permissions", "policy"},
	"Encryption":     {"tls", "ssl", "cipher", "certificate", "encryption"},
	"End of Life":    {"seol", "unsupported", "end of life"},
	"Web":            {"http", "web server", "cross-site", "injection"},
	"Authentication": {"password", "credential", "authentication", "login"},
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("fetcher.api_key", "INSIGHTSHIELD_NVD_API_KEY")
	v.BindEnv("cache.url", "INSIGHTSHIELD_CACHE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "sqlite":
	case "postgres":
		if c.Cache.URL == "" {
			return fmt.Errorf("cache.url is required when cache.backend is postgres")
		}
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be a positive duration")
	}
	if c.Cache.ErrorTTL <= 0 || c.Cache.ErrorTTL > c.Cache.TTL {
		return fmt.Errorf("cache.error_ttl must be positive and no longer than cache.ttl")
	}
	if err := c.Fetcher.Validate(); err != nil {
		return fmt.Errorf("fetcher configuration invalid: %w", err)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring configuration invalid: %w", err)
	}
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be a positive integer")
	}
	return nil
}

// Validate checks the fetcher settings.
func (f *FetcherConfig) Validate() error {
	if f.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if f.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be greater than 0")
	}
	if f.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be greater than 0")
	}
	if f.RetryAttempts <= 0 {
		return fmt.Errorf("retry_attempts must be greater than 0")
	}
	if f.BackoffBase <= 0 {
		return fmt.Errorf("backoff_base must be a positive duration")
	}
	if f.BackoffCap < f.BackoffBase {
		return fmt.Errorf("backoff_cap must be at least backoff_base")
	}
	return nil
}

// Validate checks the scoring settings.
func (s *ScoringConfig) Validate() error {
	w := s.Weights
	if w.Severity < 0 || w.CVSS < 0 || w.EPSS < 0 || w.VPR < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	if w.Severity+w.CVSS+w.EPSS+w.VPR == 0 {
		return fmt.Errorf("at least one weight must be greater than 0")
	}
	t := s.Thresholds
	if t.High <= t.Medium || t.Medium <= t.Low || t.Low <= 0 || t.High > 1 {
		return fmt.Errorf("thresholds must satisfy 0 < low < medium < high <= 1")
	}
	return nil
}

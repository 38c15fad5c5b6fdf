// Package config defines the taskloom configuration, loaded with viper
// from config.yaml plus TASKLOOM_* environment overrides.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete taskloom configuration
type Config struct {
	Endpoints    EndpointsConfig    `mapstructure:"endpoints"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// EndpointConfig describes one model endpoint
type EndpointConfig struct {
	// Provider is the API dialect: "openai" (or any OpenAI-compatible
	// server) or "anthropic"
	Provider string `mapstructure:"provider"`
	// Model is the model identifier sent to the provider
	Model string `mapstructure:"model"`
	// BaseURL overrides the provider's default API URL (optional)
	BaseURL string `mapstructure:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never lives in the config file.
	APIKeyEnv string `mapstructure:"api_key_env"`
	// TimeoutSeconds bounds a single request (default: 120)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// APIKey resolves the endpoint's API key from the environment
func (e EndpointConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// Timeout returns the request timeout as a time.Duration
func (e EndpointConfig) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// TierConfig is the ordered endpoint chain for one capability tier:
// the primary endpoint followed by its fallbacks
type TierConfig struct {
	Primary   EndpointConfig   `mapstructure:"primary"`
	Fallbacks []EndpointConfig `mapstructure:"fallbacks"`
}

// All returns the tier's endpoints in invocation order. An unset primary
// is omitted, so an unconfigured tier yields an empty chain.
func (t TierConfig) All() []EndpointConfig {
	if t.Primary == (EndpointConfig{}) {
		return t.Fallbacks
	}
	return append([]EndpointConfig{t.Primary}, t.Fallbacks...)
}

// EndpointsConfig maps capability tiers to endpoint chains
type EndpointsConfig struct {
	Low    TierConfig `mapstructure:"low"`
	Medium TierConfig `mapstructure:"medium"`
	High   TierConfig `mapstructure:"high"`
}

// ForTier returns the chain for a tier name, defaulting to medium
func (e EndpointsConfig) ForTier(tier string) TierConfig {
	switch tier {
	case "low":
		return e.Low
	case "high":
		return e.High
	default:
		return e.Medium
	}
}

// RetryConfig controls per-endpoint retry behavior
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int `mapstructure:"max_retries"`
	// BaseDelayMs seeds the exponential backoff (default: 1000)
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	// MaxDelayMs caps any single backoff sleep (default: 30000)
	MaxDelayMs int `mapstructure:"max_delay_ms"`
	// Multiplier is the exponential growth factor (default: 2.0)
	Multiplier float64 `mapstructure:"multiplier"`
}

// BaseDelay returns the base backoff delay as a time.Duration
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff cap as a time.Duration
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// CacheConfig controls result memoization
type CacheConfig struct {
	// Enabled turns the result cache on (default: true)
	Enabled bool `mapstructure:"enabled"`
	// TTLMinutes is how long a cached result stays valid (default: 60)
	TTLMinutes int `mapstructure:"ttl_minutes"`
	// Capacity is the maximum number of cached results (default: 100)
	Capacity int `mapstructure:"capacity"`
}

// TTL returns the cache TTL as a time.Duration
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// LedgerConfig controls where run records are stored
type LedgerConfig struct {
	// Dir is the record directory. Empty means <config dir>/ledger.
	Dir string `mapstructure:"dir"`
	// CleanupAgeHours is the age past which terminal records are
	// eligible for cleanup (default: 168, one week)
	CleanupAgeHours int `mapstructure:"cleanup_age_hours"`
}

// CleanupAge returns the cleanup threshold as a time.Duration
func (l LedgerConfig) CleanupAge() time.Duration {
	return time.Duration(l.CleanupAgeHours) * time.Hour
}

// ResolveDir returns the record directory, defaulting under the config dir
func (l LedgerConfig) ResolveDir() string {
	if l.Dir != "" {
		return expandHome(l.Dir)
	}
	return filepath.Join(ConfigDir(), "ledger")
}

// OrchestratorConfig controls run execution
type OrchestratorConfig struct {
	// MaxParallel is the maximum number of concurrent subtask
	// invocations (default: 3)
	MaxParallel int `mapstructure:"max_parallel"`
	// PlannerTier is the capability tier used for decomposition
	// (default: "high")
	PlannerTier string `mapstructure:"planner_tier"`
	// ReviewTier is the capability tier used for the review pass
	// (default: "high")
	ReviewTier string `mapstructure:"review_tier"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether file logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the log directory. Empty means <config dir>/logs.
	Dir string `mapstructure:"dir"`
}

// ResolveDir returns the log directory, defaulting under the config dir
func (l LoggingConfig) ResolveDir() string {
	if l.Dir != "" {
		return expandHome(l.Dir)
	}
	return filepath.Join(ConfigDir(), "logs")
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Retry: RetryConfig{
			MaxRetries:  2,
			BaseDelayMs: 1000,
			MaxDelayMs:  30000,
			Multiplier:  2.0,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLMinutes: 60,
			Capacity:   100,
		},
		Ledger: LedgerConfig{
			Dir:             "",
			CleanupAgeHours: 168,
		},
		Orchestrator: OrchestratorConfig{
			MaxParallel: 3,
			PlannerTier: "high",
			ReviewTier:  "high",
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Retry defaults
	viper.SetDefault("retry.max_retries", defaults.Retry.MaxRetries)
	viper.SetDefault("retry.base_delay_ms", defaults.Retry.BaseDelayMs)
	viper.SetDefault("retry.max_delay_ms", defaults.Retry.MaxDelayMs)
	viper.SetDefault("retry.multiplier", defaults.Retry.Multiplier)

	// Cache defaults
	viper.SetDefault("cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("cache.ttl_minutes", defaults.Cache.TTLMinutes)
	viper.SetDefault("cache.capacity", defaults.Cache.Capacity)

	// Ledger defaults
	viper.SetDefault("ledger.dir", defaults.Ledger.Dir)
	viper.SetDefault("ledger.cleanup_age_hours", defaults.Ledger.CleanupAgeHours)

	// Orchestrator defaults
	viper.SetDefault("orchestrator.max_parallel", defaults.Orchestrator.MaxParallel)
	viper.SetDefault("orchestrator.planner_tier", defaults.Orchestrator.PlannerTier)
	viper.SetDefault("orchestrator.review_tier", defaults.Orchestrator.ReviewTier)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskloom")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskloom"
	}
	return filepath.Join(home, ".config", "taskloom")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func expandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	if len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

const appName = "ytfilter"

// Scoring providers
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// DefaultModel is the model sent to the Ollama endpoint
const DefaultModel = "llama3.2:3b"

// ErrInvalid is returned by Validate for out-of-range settings
var ErrInvalid = errors.New("invalid config")

// Config holds all application configuration
type Config struct {
	Version   int             `toml:"version"`
	Filter    Filter          `toml:"filter"`
	Scoring   ScoringConfig   `toml:"scoring"`
	Browser   BrowserConfig   `toml:"browser"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Storage   StorageConfig   `toml:"storage"`
	Logging   LoggingConfig   `toml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

type ScoringConfig struct {
	Provider        string `toml:"provider"`
	Model           string `toml:"model"`
	APIKey          string `toml:"api_key"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	HealthTimeoutMS int    `toml:"health_timeout_ms"`
	DumpExchanges   bool   `toml:"dump_exchanges"`

	// Circuit breaker around the relay. Off by default, so a failing
	// endpoint is retried on every pass.
	BreakerEnabled          bool `toml:"breaker_enabled"`
	BreakerFailureThreshold int  `toml:"breaker_failure_threshold"`
	BreakerDelaySeconds     int  `toml:"breaker_delay_seconds"`
}

type BrowserConfig struct {
	FeedURL        string `toml:"feed_url"`
	Headless       bool   `toml:"headless"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
}

type SchedulerConfig struct {
	DebounceMS        int    `toml:"debounce_ms"`
	InitialDelayMS    int    `toml:"initial_delay_ms"`
	NavigationDelayMS int    `toml:"navigation_delay_ms"`
	HealthSchedule    string `toml:"health_schedule"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Filter:  DefaultFilter(),
		Scoring: ScoringConfig{
			Provider:                ProviderOllama,
			Model:                   DefaultModel,
			TimeoutSeconds:          120,
			HealthTimeoutMS:         3000,
			BreakerFailureThreshold: 5,
			BreakerDelaySeconds:     60,
		},
		Browser: BrowserConfig{
			FeedURL:        "https://www.youtube.com/",
			Headless:       false,
			PollIntervalMS: 750,
		},
		Scheduler: SchedulerConfig{
			DebounceMS:        500,
			InitialDelayMS:    2000,
			NavigationDelayMS: 1000,
			HealthSchedule:    "@every 30s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks ranges that cannot be clamped silently
func (c *Config) Validate() error {
	switch c.Scoring.Provider {
	case ProviderOllama, ProviderAnthropic:
	default:
		return fmt.Errorf("%w: unknown scoring provider %q", ErrInvalid, c.Scoring.Provider)
	}
	if c.Scoring.Provider == ProviderAnthropic && c.Scoring.APIKey == "" {
		return fmt.Errorf("%w: scoring.api_key is required for the anthropic provider", ErrInvalid)
	}
	if c.Scheduler.DebounceMS <= 0 {
		return fmt.Errorf("%w: scheduler.debounce_ms must be positive", ErrInvalid)
	}
	if c.Browser.PollIntervalMS <= 0 {
		return fmt.Errorf("%w: browser.poll_interval_ms must be positive", ErrInvalid)
	}
	if c.Scheduler.HealthSchedule != "" {
		if _, err := cron.ParseStandard(c.Scheduler.HealthSchedule); err != nil {
			return fmt.Errorf("%w: scheduler.health_schedule: %v", ErrInvalid, err)
		}
	}
	return nil
}

// ScoringTimeout is the HTTP client timeout for scoring calls
func (c ScoringConfig) ScoringTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HealthTimeout is the deadline for a health probe
func (c ScoringConfig) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutMS) * time.Millisecond
}

func (c SchedulerConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c SchedulerConfig) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMS) * time.Millisecond
}

func (c SchedulerConfig) NavigationDelay() time.Duration {
	return time.Duration(c.NavigationDelayMS) * time.Millisecond
}

func (c BrowserConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the directory for debug dumps and session reports
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, appName), nil
}

// DataDir returns the directory holding the database and cookies
func DataDir() (string, error) {
	return ConfigDir()
}

// DBPath returns the configured database path, or the default under DataDir
func (c *Config) DBPath() (string, error) {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ytfilter.db"), nil
}

// Load reads config from the default path
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads config from path. Keys absent from the file keep their
// defaults. A missing file returns an error satisfying os.IsNotExist.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.Filter = cfg.Filter.Clamp()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

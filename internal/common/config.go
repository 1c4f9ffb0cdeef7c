package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Browser     BrowserConfig   `toml:"browser"`
	Scraper     ScraperConfig   `toml:"scraper"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Anthropic   AnthropicConfig `toml:"anthropic"`
	Reports     ReportsConfig   `toml:"reports"`
	Cleanup     CleanupConfig   `toml:"cleanup"`
	Logging     LoggingConfig   `toml:"logging"`
}

type StorageConfig struct {
	Badger    BadgerConfig `toml:"badger"`
	Documents string       `toml:"documents"` // directory for downloaded document files
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	InMemory       bool   `toml:"in_memory"`        // In-memory store, used by tests
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
	PollInterval      string `toml:"poll_interval"`      // e.g. "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent worker goroutines
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "5m" - redelivery window for in-flight messages
	MaxReceive        int    `toml:"max_receive"`        // Max deliveries before a message is dead-lettered
}

// BrowserConfig controls the pooled chromedp sessions used for scraping.
type BrowserConfig struct {
	PoolSize            int    `toml:"pool_size"`             // Managed session capacity
	Headless            bool   `toml:"headless"`              //
	NoSandbox           bool   `toml:"no_sandbox"`            //
	UserAgent           string `toml:"user_agent"`            //
	RecycleThreshold    int    `toml:"recycle_threshold"`     // Requests per session before teardown and replacement
	AcquirePollInterval string `toml:"acquire_poll_interval"` // Wait between acquisition attempts when all slots busy
	AcquireMaxRetries   int    `toml:"acquire_max_retries"`   // Poll attempts before falling back to a temporary session
	StartupTimeout      string `toml:"startup_timeout"`       // Per-session launch/navigation check timeout
}

type ScraperConfig struct {
	RequestsPerMinute int    `toml:"requests_per_minute"` // Rate limit against county sites
	RequestTimeout    string `toml:"request_timeout"`
	DownloadTimeout   string `toml:"download_timeout"`
}

type PipelineConfig struct {
	StageTimeout     string `toml:"stage_timeout"`     // Deadline for one pipeline stage
	ChildTimeout     string `toml:"child_timeout"`     // Join timeout for one fan-out child task
	ChildConcurrency int    `toml:"child_concurrency"` // Parallel child joins per fan-out stage
	MaxRetryCount    int    `toml:"max_retry_count"`   // Ceiling on explicit resumptions of one search
}

type AnthropicConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
	Timeout   string `toml:"timeout"`
}

type ReportsConfig struct {
	OutputDir string `toml:"output_dir"`
}

type CleanupConfig struct {
	Enabled    bool   `toml:"enabled"`
	Schedule   string `toml:"schedule"`    // cron spec, e.g. "*/15 * * * *"
	StaleAfter string `toml:"stale_after"` // e.g. "2h" - in-flight searches older than this get failed
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// DefaultConfig returns configuration with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger:    BadgerConfig{Path: "./data/titlesearch"},
			Documents: "./data/documents",
		},
		Queue: QueueConfig{
			QueueName:         "titlesearch",
			PollInterval:      "1s",
			Concurrency:       4,
			VisibilityTimeout: "5m",
			MaxReceive:        3,
		},
		Browser: BrowserConfig{
			PoolSize:            3,
			Headless:            true,
			NoSandbox:           true,
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RecycleThreshold:    50,
			AcquirePollInterval: "1s",
			AcquireMaxRetries:   10,
			StartupTimeout:      "30s",
		},
		Scraper: ScraperConfig{
			RequestsPerMinute: 12,
			RequestTimeout:    "60s",
			DownloadTimeout:   "60s",
		},
		Pipeline: PipelineConfig{
			StageTimeout:     "5m",
			ChildTimeout:     "2m",
			ChildConcurrency: 4,
			MaxRetryCount:    5,
		},
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			Timeout:   "120s",
		},
		Reports: ReportsConfig{
			OutputDir: "./data/reports",
		},
		Cleanup: CleanupConfig{
			Enabled:    true,
			Schedule:   "*/15 * * * *",
			StaleAfter: "2h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadConfig loads configuration: defaults, then each file in order, then
// environment variable overrides.
func LoadConfig(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TITLESEARCH_ENV"); env != "" {
		config.Environment = env
	}
	if path := os.Getenv("TITLESEARCH_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if dir := os.Getenv("TITLESEARCH_DOCUMENTS_DIR"); dir != "" {
		config.Storage.Documents = dir
	}
	if v := os.Getenv("TITLESEARCH_QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Queue.Concurrency = n
		}
	}
	if v := os.Getenv("TITLESEARCH_BROWSER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Browser.PoolSize = n
		}
	}
	if v := os.Getenv("TITLESEARCH_BROWSER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Browser.Headless = b
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Anthropic.APIKey = key
	}
	if level := os.Getenv("TITLESEARCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

func (c *Config) validate() error {
	if c.Browser.PoolSize <= 0 {
		return fmt.Errorf("browser.pool_size must be greater than 0, got %d", c.Browser.PoolSize)
	}
	if c.Queue.Concurrency <= 0 {
		return fmt.Errorf("queue.concurrency must be greater than 0, got %d", c.Queue.Concurrency)
	}
	if _, err := c.Duration(c.Queue.VisibilityTimeout, 0); err != nil {
		return fmt.Errorf("queue.visibility_timeout: %w", err)
	}
	return nil
}

// Duration parses a duration field, returning fallback for empty values.
func (c *Config) Duration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}

// MustDuration parses a duration field, falling back on parse errors.
// Used where a bad value should degrade rather than halt the worker.
func (c *Config) MustDuration(value string, fallback time.Duration) time.Duration {
	d, err := c.Duration(value, fallback)
	if err != nil {
		return fallback
	}
	return d
}

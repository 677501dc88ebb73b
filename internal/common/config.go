package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Sources     SourcesConfig   `toml:"sources"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Dispatch    DispatchConfig  `toml:"dispatch"`
	Extract     ExtractConfig   `toml:"extract"`
	Dedup       DedupConfig     `toml:"dedup"`
	Lifecycle   LifecycleConfig `toml:"lifecycle"`
	Metadata    MetadataConfig  `toml:"metadata"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path              string `toml:"path"`                // Database directory path
	ResetOnStartup    bool   `toml:"reset_on_startup"`    // Delete database on startup for clean test runs
	GCIntervalMinutes int    `toml:"gc_interval_minutes"` // Value-log GC frequency (0 disables)
}

func (c BadgerConfig) GCInterval() time.Duration {
	return time.Duration(c.GCIntervalMinutes) * time.Minute
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// SourcesConfig points at the directory of administrator-owned source
// definition files (.toml or .yaml, one or more sources per file).
type SourcesConfig struct {
	Dir string `toml:"dir"`
}

type SchedulerConfig struct {
	TickSchedule    string `toml:"tick_schedule" validate:"required"`    // cron expression for the due check
	ArchiveSchedule string `toml:"archive_schedule" validate:"required"` // cron expression for the archival sweep
	Workers         int    `toml:"workers" validate:"min=1"`             // parallel dispatch workers
}

type DispatchConfig struct {
	RunTimeoutSeconds    int `toml:"run_timeout_seconds" validate:"min=1"`    // per-run deadline
	MaxRetries           int `toml:"max_retries" validate:"min=1"`            // extraction retries per run
	BackoffBaseSeconds   int `toml:"backoff_base_seconds" validate:"min=1"`   // exponential backoff base
	BackoffCapSeconds    int `toml:"backoff_cap_seconds" validate:"min=1"`    // backoff ceiling
	DisableAfterFailures int `toml:"disable_after_failures" validate:"min=1"` // consecutive failures before auto-disable
	MergeConflictRetries int `toml:"merge_conflict_retries" validate:"min=1"` // revision-conflict retries per candidate
}

func (c DispatchConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

func (c DispatchConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

func (c DispatchConfig) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

type ExtractConfig struct {
	UserAgent             string        `toml:"user_agent"`
	RequestTimeoutSeconds int           `toml:"request_timeout_seconds" validate:"min=1"`
	Dynamic               DynamicConfig `toml:"dynamic"`
}

func (c ExtractConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// DynamicConfig controls the headless browser pool used by the dynamic
// engine. The dynamic engine is rate-limited independently of the static
// one; RequestsPerMinute applies across all dynamic sources.
type DynamicConfig struct {
	PoolSize          int  `toml:"pool_size" validate:"min=1"`
	Headless          bool `toml:"headless"`
	RenderWaitSeconds int  `toml:"render_wait_seconds" validate:"min=0"`
	RequestsPerMinute int  `toml:"requests_per_minute" validate:"min=1"`
}

func (c DynamicConfig) RenderWait() time.Duration {
	return time.Duration(c.RenderWaitSeconds) * time.Second
}

// DedupConfig exposes the fuzzy-match tuning knobs. The similarity
// threshold and date tolerance are operationally tuned values, so they are
// configuration rather than constants.
type DedupConfig struct {
	TitleSimilarity    float64 `toml:"title_similarity" validate:"gt=0,lte=1"`
	DateToleranceHours int     `toml:"date_tolerance_hours" validate:"min=0"`
}

func (c DedupConfig) DateTolerance() time.Duration {
	return time.Duration(c.DateToleranceHours) * time.Hour
}

type LifecycleConfig struct {
	RetentionDays int `toml:"retention_days" validate:"min=1"` // archive postings this long past their result date
}

func (c LifecycleConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

type MetadataConfig struct {
	Extractor   string `toml:"extractor" validate:"oneof=rake frequency"` // primary keyphrase extractor
	MinKeywords int    `toml:"min_keywords" validate:"min=1"`
	MaxKeywords int    `toml:"max_keywords" validate:"min=1"`
}

// DefaultConfig returns the configuration defaults. File values, env vars
// and CLI flags layer on top, in that order.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:              "./data/praeco",
				ResetOnStartup:    false,
				GCIntervalMinutes: 10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Sources: SourcesConfig{
			Dir: "./sources",
		},
		Scheduler: SchedulerConfig{
			TickSchedule:    "* * * * *",
			ArchiveSchedule: "0 * * * *",
			Workers:         4,
		},
		Dispatch: DispatchConfig{
			RunTimeoutSeconds:    300,
			MaxRetries:           3,
			BackoffBaseSeconds:   2,
			BackoffCapSeconds:    60,
			DisableAfterFailures: 5,
			MergeConflictRetries: 3,
		},
		Extract: ExtractConfig{
			UserAgent:             "Praeco/1.0 (+https://github.com/ternarybob/praeco)",
			RequestTimeoutSeconds: 30,
			Dynamic: DynamicConfig{
				PoolSize:          2,
				Headless:          true,
				RenderWaitSeconds: 3,
				RequestsPerMinute: 12,
			},
		},
		Dedup: DedupConfig{
			TitleSimilarity:    0.8,
			DateToleranceHours: 72,
		},
		Lifecycle: LifecycleConfig{
			RetentionDays: 90,
		},
		Metadata: MetadataConfig{
			Extractor:   "rake",
			MinKeywords: 5,
			MaxKeywords: 10,
		},
	}
}

// LoadConfig loads configuration from defaults, then each file in order
// (later files override earlier ones), then environment variables.
func LoadConfig(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies PRAECO_* environment variable overrides.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PRAECO_DATA_DIR"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("PRAECO_SOURCES_DIR"); v != "" {
		config.Sources.Dir = v
	}
	if v := os.Getenv("PRAECO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("PRAECO_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Scheduler.Workers = n
		}
	}
	if v := os.Getenv("PRAECO_ENVIRONMENT"); v != "" {
		config.Environment = v
	}
}

var configValidator = validator.New()

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Metadata.MaxKeywords < c.Metadata.MinKeywords {
		return fmt.Errorf("invalid configuration: max_keywords (%d) below min_keywords (%d)",
			c.Metadata.MaxKeywords, c.Metadata.MinKeywords)
	}
	return nil
}

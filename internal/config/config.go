package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"GATHER_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"GATHER_DB_MAX_CONNS" default:"8"`

	// Duplicate detection tunables. The defaults match the engine's
	// built-in defaults so an empty environment changes nothing.
	TitleSimilarity     float64 `envconfig:"GATHER_TITLE_SIMILARITY" default:"0.85"`
	TimeWindowMinutes   int     `envconfig:"GATHER_TIME_WINDOW_MINUTES" default:"120"`
	RequireSameLocation bool    `envconfig:"GATHER_REQUIRE_SAME_LOCATION" default:"false"`
	RequireExactTime    bool    `envconfig:"GATHER_REQUIRE_EXACT_TIME" default:"false"`
	RequireSameSource   bool    `envconfig:"GATHER_REQUIRE_SAME_SOURCE" default:"true"`
	IgnoreCase          bool    `envconfig:"GATHER_IGNORE_CASE" default:"true"`
	NormalizeWhitespace bool    `envconfig:"GATHER_NORMALIZE_WHITESPACE" default:"true"`

	SourcesFile     string `envconfig:"SOURCES_FILE" default:"sources.yaml"`
	CacheDir        string `envconfig:"CACHE_DIR" default:".gather-cache"`
	DefaultTimezone string `envconfig:"DEFAULT_TIMEZONE" default:"Europe/Oslo"`

	APIKey string `envconfig:"API_KEY" default:""`

	BrightDataAPIKey    string `envconfig:"BRIGHTDATA_API_KEY" default:""`
	BrightDataDatasetID string `envconfig:"BRIGHTDATA_DATASET_ID" default:""`

	LLMBaseURL string `envconfig:"LLM_BASE_URL" default:""`
	LLMAPIKey  string `envconfig:"LLM_API_KEY" default:""`
	LLMModel   string `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("GATHER_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("GATHER_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("GATHER_DB_MIN_CONNS (%d) cannot exceed GATHER_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.TitleSimilarity < 0 || c.TitleSimilarity > 1 {
		return fmt.Errorf("GATHER_TITLE_SIMILARITY must be in [0,1], got %f", c.TitleSimilarity)
	}
	if c.TimeWindowMinutes < 0 {
		return fmt.Errorf("GATHER_TIME_WINDOW_MINUTES must be >= 0")
	}
	if strings.TrimSpace(c.DefaultTimezone) != "" {
		if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
			return fmt.Errorf("DEFAULT_TIMEZONE %q is not a valid IANA zone: %w", c.DefaultTimezone, err)
		}
	}
	return nil
}

// TimeWindow converts the minute-granularity tunable into a duration.
func (c *Config) TimeWindow() time.Duration {
	return time.Duration(c.TimeWindowMinutes) * time.Minute
}

// Location resolves the configured default timezone, falling back to UTC
// when the zone database is missing at runtime.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

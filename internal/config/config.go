package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBaseURL           = "https://hacker-news.firebaseio.com/v0"
	DefaultRankingCount      = 100
	DefaultFetchTimeout      = 30 * time.Second
	DefaultMaxAttempts       = 3
	DefaultRateLimitRPS      = 1.0
	DefaultRateBurst         = 1
	DefaultCacheTTL          = time.Hour
	DefaultConcurrency       = 4
	DefaultThreadMaxDepth    = 3
	DefaultAmbiguityThresh   = 0.78
	DefaultMinConfidence     = 0.5
	DefaultOverrideThresh    = 0.9
	DefaultEngagementWeight  = 0.4
	DefaultSpamWeight        = 0.35
	DefaultSentimentWeight   = 0.25
	DefaultLowEngagementMark = 5
	DefaultStorePath         = "newsreaper.db"
	DefaultCatalogPath       = "patterns.yaml"
)

// ConfigurationError reports an invalid configuration value. It is fatal at
// startup; values are never silently clamped into range.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config is the top-level configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	Feed    FeedConfig    `yaml:"feed"`
	Storage StorageConfig `yaml:"storage"`
	Stages  StagesConfig  `yaml:"stages"`
	Report  ReportConfig  `yaml:"report"`
}

// FeedConfig holds all upstream feed client settings.
type FeedConfig struct {
	// BaseURL is the upstream feed API root (no trailing slash).
	BaseURL string `yaml:"base_url"`

	// RankingCount is how many ids of the ranked list to process per run.
	RankingCount int `yaml:"ranking_count"`

	// Timeout bounds each individual HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	// MaxAttempts limits ranking-fetch retries (exponential backoff between).
	MaxAttempts int `yaml:"max_attempts"`

	// RateLimitRPS is the token refill rate for outbound requests.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`

	// RateBurst is the token bucket capacity.
	RateBurst int `yaml:"rate_burst"`

	// CacheTTL is how long a cached upstream response stays valid within a run.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Concurrency bounds the item-fetch worker pool.
	Concurrency int `yaml:"concurrency"`

	// ThreadMaxDepth bounds comment-thread traversal depth.
	ThreadMaxDepth int `yaml:"thread_max_depth"`
}

// StorageConfig configures the embedded database.
type StorageConfig struct {
	// Path is the filesystem path of the SQLite database file.
	Path string `yaml:"path"`
}

// StagesConfig holds every threshold and weight used by the scoring stages.
type StagesConfig struct {
	// AmbiguityThreshold flags items whose ambiguity score meets or exceeds it.
	AmbiguityThreshold float64 `yaml:"ambiguity_threshold"`

	// MinConfidence is the floor below which a template match is discarded.
	MinConfidence float64 `yaml:"min_confidence"`

	// OverrideThreshold is the risk score at which human override is required.
	OverrideThreshold float64 `yaml:"override_threshold"`

	// Risk sub-score weights. Each must be within [0,1].
	EngagementWeight float64 `yaml:"engagement_weight"`
	SpamWeight       float64 `yaml:"spam_weight"`
	SentimentWeight  float64 `yaml:"sentiment_weight"`

	// LowEngagementThreshold is the comment count below which the
	// low-engagement penalty ramps from 0 toward 1.
	LowEngagementThreshold int `yaml:"low_engagement_threshold"`

	// SpamDomains are URL substrings that set the spam indicator.
	SpamDomains []string `yaml:"spam_domains"`

	// SensitiveDomains are template domains that force an override
	// regardless of risk score.
	SensitiveDomains []string `yaml:"sensitive_domains"`

	// CatalogPath points at the pattern template catalog file.
	CatalogPath string `yaml:"catalog_path"`
}

// ReportConfig configures run summary export.
type ReportConfig struct {
	// MetricsPath, when set, is where run counters are written in Prometheus
	// text exposition format for a textfile collector. Empty disables export.
	MetricsPath string `yaml:"metrics_path"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Feed: FeedConfig{
			BaseURL:        DefaultBaseURL,
			RankingCount:   DefaultRankingCount,
			Timeout:        DefaultFetchTimeout,
			MaxAttempts:    DefaultMaxAttempts,
			RateLimitRPS:   DefaultRateLimitRPS,
			RateBurst:      DefaultRateBurst,
			CacheTTL:       DefaultCacheTTL,
			Concurrency:    DefaultConcurrency,
			ThreadMaxDepth: DefaultThreadMaxDepth,
		},
		Storage: StorageConfig{
			Path: DefaultStorePath,
		},
		Stages: StagesConfig{
			AmbiguityThreshold:     DefaultAmbiguityThresh,
			MinConfidence:          DefaultMinConfidence,
			OverrideThreshold:      DefaultOverrideThresh,
			EngagementWeight:       DefaultEngagementWeight,
			SpamWeight:             DefaultSpamWeight,
			SentimentWeight:        DefaultSentimentWeight,
			LowEngagementThreshold: DefaultLowEngagementMark,
			SensitiveDomains:       []string{"financial", "security"},
			CatalogPath:            DefaultCatalogPath,
		},
	}
}

// Validate checks required fields and value ranges. Threshold and weight
// violations are returned as *ConfigurationError and must abort startup.
func Validate(cfg *Config) error {
	if cfg.Feed.BaseURL == "" {
		return &ConfigurationError{Field: "feed.base_url", Reason: "is required"}
	}
	if cfg.Feed.RankingCount <= 0 {
		return &ConfigurationError{Field: "feed.ranking_count", Reason: "must be positive"}
	}
	if cfg.Feed.Timeout <= 0 {
		return &ConfigurationError{Field: "feed.timeout", Reason: "must be positive"}
	}
	if cfg.Feed.MaxAttempts <= 0 {
		return &ConfigurationError{Field: "feed.max_attempts", Reason: "must be positive"}
	}
	if cfg.Feed.RateLimitRPS <= 0 {
		return &ConfigurationError{Field: "feed.rate_limit_rps", Reason: "must be positive"}
	}
	if cfg.Feed.RateBurst <= 0 {
		return &ConfigurationError{Field: "feed.rate_burst", Reason: "must be positive"}
	}
	if cfg.Feed.Concurrency <= 0 {
		return &ConfigurationError{Field: "feed.concurrency", Reason: "must be positive"}
	}
	if cfg.Feed.ThreadMaxDepth <= 0 {
		return &ConfigurationError{Field: "feed.thread_max_depth", Reason: "must be positive"}
	}
	if cfg.Storage.Path == "" {
		return &ConfigurationError{Field: "storage.path", Reason: "is required"}
	}
	if cfg.Stages.CatalogPath == "" {
		return &ConfigurationError{Field: "stages.catalog_path", Reason: "is required"}
	}

	unit := []struct {
		name string
		v    float64
	}{
		{"stages.ambiguity_threshold", cfg.Stages.AmbiguityThreshold},
		{"stages.min_confidence", cfg.Stages.MinConfidence},
		{"stages.override_threshold", cfg.Stages.OverrideThreshold},
		{"stages.engagement_weight", cfg.Stages.EngagementWeight},
		{"stages.spam_weight", cfg.Stages.SpamWeight},
		{"stages.sentiment_weight", cfg.Stages.SentimentWeight},
	}
	for _, u := range unit {
		if u.v < 0 || u.v > 1 {
			return &ConfigurationError{
				Field:  u.name,
				Reason: fmt.Sprintf("%.4f is outside [0,1]", u.v),
			}
		}
	}

	if cfg.Stages.LowEngagementThreshold < 0 {
		return &ConfigurationError{
			Field:  "stages.low_engagement_threshold",
			Reason: "must not be negative",
		}
	}
	return nil
}

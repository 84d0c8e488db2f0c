// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/search-harvester/internal/harvest"
)

// EnvPrefix prefixes every environment override, e.g. HARVESTER_SEARCH_LANGUAGE.
const EnvPrefix = "HARVESTER"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	GitHub    GitHubConfig    `mapstructure:"github"`
	Search    SearchConfig    `mapstructure:"search"`
	Partition PartitionConfig `mapstructure:"partition"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Status    StatusConfig    `mapstructure:"status"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// GitHubConfig selects the API endpoint and the token to call it with.
type GitHubConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Token      string `mapstructure:"token"`
	TokenKey   string `mapstructure:"token_key"`
	TokensFile string `mapstructure:"tokens_file"`
}

// SearchConfig is the fixed part of every query and the API's paging limits.
type SearchConfig struct {
	Language  string `mapstructure:"language"`
	MinStars  int    `mapstructure:"min_stars"`
	PageSize  int    `mapstructure:"page_size"`
	MaxPages  int    `mapstructure:"max_pages"`
	WindowCap int    `mapstructure:"window_cap"`
}

// PartitionConfig bounds the push days and creation ranges a crawl walks.
type PartitionConfig struct {
	CreatedFrom string   `mapstructure:"created_from"`
	Year        int      `mapstructure:"year"`
	StartDate   string   `mapstructure:"start_date"`
	EndDate     string   `mapstructure:"end_date"`
	MonthGroups []string `mapstructure:"month_groups"`
	Resume      bool     `mapstructure:"resume"`
}

// QuotaConfig tunes the quota gate.
type QuotaConfig struct {
	SafetyMarginSeconds int `mapstructure:"safety_margin_seconds"`
	MaxRetries          int `mapstructure:"max_retries"`
}

// HTTPConfig configures HTTP client retry and pacing behavior.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BackoffInitialMs  int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int     `mapstructure:"backoff_max_ms"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	UserAgent         string  `mapstructure:"user_agent"`
}

// StorageConfig sets where per-language output trees live.
type StorageConfig struct {
	Root string `mapstructure:"root"`
}

// BlobConfig selects where shards are exported.
type BlobConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LedgerConfig controls the optional Postgres mirror of the progress ledger.
type LedgerConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Table       string `mapstructure:"table"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for shard-ready notifications.
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// StatusConfig controls the status HTTP server run alongside a crawl.
type StatusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// DatasetConfig tunes deduplication and sharding.
type DatasetConfig struct {
	ShardSize   int    `mapstructure:"shard_size"`
	Since       string `mapstructure:"since"`
	ExcludePath string `mapstructure:"exclude_path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper applies defaults and environment overrides to v and decodes it.
// Commands bind their flags into v before calling it.
func FromViper(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	// AutomaticEnv only resolves keys viper already knows about.
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.token", "")
	v.SetDefault("github.token_key", "")
	v.SetDefault("github.tokens_file", "data/tokens.csv")
	v.SetDefault("search.language", "")
	v.SetDefault("search.min_stars", 0)
	v.SetDefault("search.page_size", 100)
	v.SetDefault("search.max_pages", 10)
	v.SetDefault("search.window_cap", 1000)
	v.SetDefault("partition.created_from", "2010-01-01")
	v.SetDefault("partition.year", 0)
	v.SetDefault("partition.start_date", "")
	v.SetDefault("partition.end_date", "")
	v.SetDefault("partition.month_groups", []string{})
	v.SetDefault("partition.resume", false)
	v.SetDefault("quota.safety_margin_seconds", 10)
	v.SetDefault("quota.max_retries", 3)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 1)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.requests_per_second", 0.5)
	v.SetDefault("http.user_agent", "search-harvester/1.0")
	v.SetDefault("storage.root", "data")
	v.SetDefault("blob.provider", "none")
	v.SetDefault("blob.base_dir", "")
	v.SetDefault("blob.gcs_bucket", "")
	v.SetDefault("blob.prefix", "shards")
	v.SetDefault("ledger.postgres_dsn", "")
	v.SetDefault("ledger.table", "progress_entries")
	v.SetDefault("ledger.max_conns", 4)
	v.SetDefault("pubsub.provider", "none")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.port", 9090)
	v.SetDefault("dataset.shard_size", 10000)
	v.SetDefault("dataset.since", "")
	v.SetDefault("dataset.exclude_path", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits. Fields only some
// commands need, such as the language or start date, are checked by the
// command that uses them.
func (c Config) Validate() error {
	if c.Search.PageSize <= 0 || c.Search.PageSize > 100 {
		return fmt.Errorf("search.page_size must be between 1 and 100")
	}
	if c.Search.MaxPages <= 0 {
		return fmt.Errorf("search.max_pages must be > 0")
	}
	if c.Search.WindowCap <= 0 {
		return fmt.Errorf("search.window_cap must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Quota.SafetyMarginSeconds < 0 {
		return fmt.Errorf("quota.safety_margin_seconds must be >= 0")
	}
	switch c.Blob.Provider {
	case "none", "memory":
	case "local":
		if c.Blob.BaseDir == "" {
			return fmt.Errorf("blob.base_dir must be set when blob.provider is local")
		}
	case "gcs":
		if c.Blob.GCSBucket == "" {
			return fmt.Errorf("blob.gcs_bucket must be set when blob.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown blob.provider %q", c.Blob.Provider)
	}
	switch c.PubSub.Provider {
	case "none", "memory":
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown pubsub.provider %q", c.PubSub.Provider)
	}
	if c.Status.Enabled && c.Status.Port <= 0 {
		return fmt.Errorf("status.port must be > 0 when the status server is enabled")
	}
	if c.Dataset.ShardSize <= 0 {
		return fmt.Errorf("dataset.shard_size must be > 0")
	}
	return nil
}

// Harvest converts the crawl settings into an engine configuration. An empty
// end date means today.
func (c Config) Harvest(now time.Time) (harvest.Config, error) {
	if c.Search.Language == "" {
		return harvest.Config{}, errors.New("search.language is required")
	}
	if c.Partition.StartDate == "" {
		return harvest.Config{}, errors.New("partition.start_date is required")
	}
	start, err := harvest.ParseDay(c.Partition.StartDate)
	if err != nil {
		return harvest.Config{}, fmt.Errorf("partition.start_date: %w", err)
	}
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if c.Partition.EndDate != "" {
		if end, err = harvest.ParseDay(c.Partition.EndDate); err != nil {
			return harvest.Config{}, fmt.Errorf("partition.end_date: %w", err)
		}
	}
	var createdFrom time.Time
	if c.Partition.Year == 0 {
		if createdFrom, err = harvest.ParseDay(c.Partition.CreatedFrom); err != nil {
			return harvest.Config{}, fmt.Errorf("partition.created_from: %w", err)
		}
	}
	groups := make([]harvest.MonthGroup, 0, len(c.Partition.MonthGroups))
	for _, raw := range c.Partition.MonthGroups {
		g, err := harvest.ParseMonthGroup(raw)
		if err != nil {
			return harvest.Config{}, fmt.Errorf("partition.month_groups: %w", err)
		}
		groups = append(groups, g)
	}

	cfg := harvest.Config{
		Language:        c.Search.Language,
		MinStars:        c.Search.MinStars,
		CreatedFrom:     createdFrom,
		Year:            c.Partition.Year,
		StartDay:        start,
		EndDay:          end,
		PageSize:        c.Search.PageSize,
		MaxPages:        c.Search.MaxPages,
		WindowCap:       c.Search.WindowCap,
		MaxQuotaRetries: c.Quota.MaxRetries,
		MonthGroups:     groups,
	}
	if err := cfg.Validate(); err != nil {
		return harvest.Config{}, err
	}
	return cfg, nil
}

// Since parses dataset.since; an empty value disables the date filter.
func (c Config) Since() (time.Time, error) {
	if c.Dataset.Since == "" {
		return time.Time{}, nil
	}
	t, err := harvest.ParseDay(c.Dataset.Since)
	if err != nil {
		return time.Time{}, fmt.Errorf("dataset.since: %w", err)
	}
	return t, nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// SafetyMargin converts the quota margin into a duration.
func (c Config) SafetyMargin() time.Duration {
	return time.Duration(c.Quota.SafetyMarginSeconds) * time.Second
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/search-harvester/internal/harvest"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
github:
  token_key: alice
  tokens_file: /etc/harvester/tokens.csv
search:
  language: C++
  min_stars: 5
  page_size: 50
  max_pages: 20
partition:
  year: 2019
  start_date: "2021-03-01"
  end_date: "2021-03-31"
  month_groups: ["01-01..06-30", "07-01..12-31"]
quota:
  safety_margin_seconds: 30
http:
  timeout_seconds: 45
  max_retries: 2
  requests_per_second: 1.5
blob:
  provider: local
  base_dir: /srv/shards
pubsub:
  provider: memory
status:
  enabled: true
  port: 9191
dataset:
  shard_size: 500
  since: "2020-01-01"
logging:
  development: true
  level: debug
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Search.Language != "C++" || cfg.Search.MinStars != 5 || cfg.Search.PageSize != 50 {
		t.Fatalf("expected search overrides to apply: %+v", cfg.Search)
	}
	if cfg.Search.WindowCap != 1000 {
		t.Fatalf("expected default window cap, got %d", cfg.Search.WindowCap)
	}
	if cfg.Partition.Year != 2019 || len(cfg.Partition.MonthGroups) != 2 {
		t.Fatalf("expected partition overrides to apply: %+v", cfg.Partition)
	}
	if got := cfg.SafetyMargin(); got != 30*time.Second {
		t.Fatalf("expected safety margin 30s, got %v", got)
	}
	if got := cfg.HTTPTimeout(); got != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %v", got)
	}
	if cfg.HTTP.RequestsPerSecond != 1.5 {
		t.Fatalf("expected 1.5 rps, got %v", cfg.HTTP.RequestsPerSecond)
	}
	if cfg.Blob.Provider != "local" || cfg.Blob.BaseDir != "/srv/shards" || cfg.Blob.Prefix != "shards" {
		t.Fatalf("expected blob overrides to apply: %+v", cfg.Blob)
	}
	if !cfg.Status.Enabled || cfg.Status.Port != 9191 {
		t.Fatalf("expected status overrides to apply: %+v", cfg.Status)
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides to apply: %+v", cfg.Logging)
	}

	hc, err := cfg.Harvest(time.Now())
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}
	if hc.Year != 2019 || !hc.CreatedFrom.IsZero() {
		t.Fatalf("expected year mode, got %+v", hc)
	}
	if hc.EndDay.Format(harvest.DayLayout) != "2021-03-31" {
		t.Fatalf("expected end day 2021-03-31, got %s", hc.EndDay.Format(harvest.DayLayout))
	}
	if len(hc.MonthGroups) != 2 || hc.MonthGroups[1].StartMonth != time.July {
		t.Fatalf("expected parsed month groups, got %+v", hc.MonthGroups)
	}

	since, err := cfg.Since()
	if err != nil || since.Format(harvest.DayLayout) != "2020-01-01" {
		t.Fatalf("expected since 2020-01-01, got %v (%v)", since, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Search.PageSize != 100 || cfg.Search.MaxPages != 10 || cfg.Search.WindowCap != 1000 {
		t.Fatalf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.Partition.CreatedFrom != "2010-01-01" {
		t.Fatalf("unexpected created_from default %q", cfg.Partition.CreatedFrom)
	}
	if cfg.HTTP.MaxRetries != 1 {
		t.Fatalf("expected the transport to retry once by default, got %d", cfg.HTTP.MaxRetries)
	}
	if cfg.Dataset.ShardSize != 10000 {
		t.Fatalf("unexpected shard size default %d", cfg.Dataset.ShardSize)
	}
	if cfg.Blob.Provider != "none" || cfg.PubSub.Provider != "none" {
		t.Fatalf("expected optional sinks disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HARVESTER_SEARCH_LANGUAGE", "Rust")
	t.Setenv("HARVESTER_GITHUB_TOKEN", "ghp_env")
	t.Setenv("HARVESTER_PARTITION_START_DATE", "2022-01-01")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Search.Language != "Rust" {
		t.Fatalf("expected env language, got %q", cfg.Search.Language)
	}
	token, err := cfg.ResolveToken()
	if err != nil || token != "ghp_env" {
		t.Fatalf("expected env token, got %q (%v)", token, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestHarvestDefaultsToOpenRangeEndingToday(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Search.Language = "Go"
	cfg.Partition.StartDate = "2024-01-01"

	now := time.Date(2024, time.February, 10, 18, 30, 0, 0, time.UTC)
	hc, err := cfg.Harvest(now)
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}
	if got := hc.EndDay.Format(harvest.DayLayout); got != "2024-02-10" {
		t.Fatalf("expected end day today, got %s", got)
	}
	if got := hc.CreatedFrom.Format(harvest.DayLayout); got != "2010-01-01" {
		t.Fatalf("expected created_from 2010-01-01, got %s", got)
	}
	if hc.MaxQuotaRetries != 3 {
		t.Fatalf("expected quota retries default, got %d", hc.MaxQuotaRetries)
	}
}

func TestHarvestErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	base.Search.Language = "Go"
	base.Partition.StartDate = "2024-01-01"

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing language", mutate: func(c *Config) { c.Search.Language = "" }, want: "search.language"},
		{name: "missing start", mutate: func(c *Config) { c.Partition.StartDate = "" }, want: "partition.start_date"},
		{name: "bad start", mutate: func(c *Config) { c.Partition.StartDate = "01/02/2024" }, want: "partition.start_date"},
		{name: "end before start", mutate: func(c *Config) { c.Partition.EndDate = "2023-12-31" }, want: "before start day"},
		{name: "bad month group", mutate: func(c *Config) { c.Partition.MonthGroups = []string{"01-01"} }, want: "month_groups"},
		{name: "gapped month groups", mutate: func(c *Config) { c.Partition.MonthGroups = []string{"01-01..05-31", "07-01..12-31"} }, want: "month groups"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			_, err := cfg.Harvest(time.Now())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "page size above api max",
			cfg: func() Config {
				c := base
				c.Search.PageSize = 101
				return c
			}(),
			want: "search.page_size",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			}(),
			want: "http.timeout_seconds",
		},
		{
			name: "local blob without dir",
			cfg: func() Config {
				c := base
				c.Blob.Provider = "local"
				return c
			}(),
			want: "blob.base_dir",
		},
		{
			name: "gcs blob without bucket",
			cfg: func() Config {
				c := base
				c.Blob.Provider = "gcs"
				return c
			}(),
			want: "blob.gcs_bucket",
		},
		{
			name: "unknown blob provider",
			cfg: func() Config {
				c := base
				c.Blob.Provider = "s3"
				return c
			}(),
			want: "blob.provider",
		},
		{
			name: "pubsub without topic",
			cfg: func() Config {
				c := base
				c.PubSub.Provider = "pubsub"
				c.PubSub.ProjectID = "proj"
				return c
			}(),
			want: "pubsub.topic_name",
		},
		{
			name: "status without port",
			cfg: func() Config {
				c := base
				c.Status.Enabled = true
				c.Status.Port = 0
				return c
			}(),
			want: "status.port",
		},
		{
			name: "zero shard size",
			cfg: func() Config {
				c := base
				c.Dataset.ShardSize = 0
				return c
			}(),
			want: "dataset.shard_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestResolveTokenFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tokens.csv")
	if err := os.WriteFile(path, []byte("alice,ghp_alice\nbob, ghp_bob \n"), 0o600); err != nil {
		t.Fatalf("failed to write tokens: %v", err)
	}
	cfg := Config{GitHub: GitHubConfig{TokenKey: "bob", TokensFile: path}}
	token, err := cfg.ResolveToken()
	if err != nil || token != "ghp_bob" {
		t.Fatalf("expected ghp_bob, got %q (%v)", token, err)
	}

	cfg.GitHub.TokenKey = "carol"
	if _, err := cfg.ResolveToken(); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}

	if _, err := (Config{}).ResolveToken(); err == nil {
		t.Fatalf("expected error without token or key")
	}
}

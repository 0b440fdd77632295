// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/creatorcrawl/internal/classify"
	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

// EnvPrefix prefixes environment overrides, e.g. CREATORCRAWL_STORAGE_BACKEND.
const EnvPrefix = "CREATORCRAWL"

// Storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	// DryRun keeps notifications and exports in memory instead of sending them.
	DryRun    bool            `mapstructure:"dry_run"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Classify  ClassifyConfig  `mapstructure:"classify"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Export    ExportConfig    `mapstructure:"export"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CategoryConfig is a named category feed.
type CategoryConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// CrawlConfig drives discovery and profile visits.
type CrawlConfig struct {
	SearchTerms           []string         `mapstructure:"search_terms"`
	Categories            []CategoryConfig `mapstructure:"categories"`
	SearchURLTemplate     string           `mapstructure:"search_url_template"`
	ProfileURLTemplate    string           `mapstructure:"profile_url_template"`
	MaxCandidatesPerQuery int              `mapstructure:"max_candidates_per_query"`
	MaxStagnantRounds     int              `mapstructure:"max_stagnant_rounds"`
	SettleInterval        time.Duration    `mapstructure:"settle_interval"`
	FeedSettle            time.Duration    `mapstructure:"feed_settle"`
	ProfileSettle         time.Duration    `mapstructure:"profile_settle"`
	NavigationTimeout     time.Duration    `mapstructure:"navigation_timeout"`
	ProfileQPS            float64          `mapstructure:"profile_qps"`
	CardSelector          string           `mapstructure:"card_selector"`
	HandleMarker          string           `mapstructure:"handle_marker"`
	BioSelector           string           `mapstructure:"bio_selector"`
}

// ClassifyConfig holds the classification tables and the acceptance policy.
type ClassifyConfig struct {
	Mode                 string                   `mapstructure:"mode"`
	TargetLocale         string                   `mapstructure:"target_locale"`
	TargetCountry        string                   `mapstructure:"target_country"`
	MinConfidence        float64                  `mapstructure:"min_confidence"`
	Affiliates           []classify.AffiliateRule `mapstructure:"affiliates"`
	ContactMarkers       []string                 `mapstructure:"contact_markers"`
	ContactExclusions    []string                 `mapstructure:"contact_exclusions"`
	WebsiteIgnoreDomains []string                 `mapstructure:"website_ignore_domains"`
}

// StorageConfig selects where checkpoints and results live.
type StorageConfig struct {
	Backend        string         `mapstructure:"backend"`
	CheckpointPath string         `mapstructure:"checkpoint_path"`
	ResultsPath    string         `mapstructure:"results_path"`
	Postgres       PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls the Postgres backend.
type PostgresConfig struct {
	DSN             string `mapstructure:"dsn"`
	CheckpointTable string `mapstructure:"checkpoint_table"`
	ResultTable     string `mapstructure:"result_table"`
	MaxConns        int32  `mapstructure:"max_conns"`
}

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	Headless         bool   `mapstructure:"headless"`
	UserAgent        string `mapstructure:"user_agent"`
	StorageStatePath string `mapstructure:"storage_state_path"`
}

// ExportConfig describes the optional end-of-run result export.
type ExportConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
	Object    string `mapstructure:"object"`
}

// Enabled reports whether any export target is configured.
func (e ExportConfig) Enabled() bool {
	return e.GCSBucket != "" || e.LocalDir != ""
}

// PubSubConfig holds metadata for accepted-entry notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether notifications should be published.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// ServerConfig controls the status server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig toggles tracing.
type TelemetryConfig struct {
	Tracing     bool   `mapstructure:"tracing"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config: %w", crawler.ErrConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %w", crawler.ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dry_run", false)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("crawl.search_terms", []string{"shop sonderposten", "live shopping", "gaming stream", "musik live"})
	v.SetDefault("crawl.categories", []CategoryConfig{})
	v.SetDefault("crawl.search_url_template", "https://www.tiktok.com/search/live?q={query}")
	v.SetDefault("crawl.profile_url_template", "https://www.tiktok.com/@{handle}")
	v.SetDefault("crawl.max_candidates_per_query", 100)
	v.SetDefault("crawl.max_stagnant_rounds", 30)
	v.SetDefault("crawl.settle_interval", 3*time.Second)
	v.SetDefault("crawl.feed_settle", 5*time.Second)
	v.SetDefault("crawl.profile_settle", 3*time.Second)
	v.SetDefault("crawl.navigation_timeout", 45*time.Second)
	v.SetDefault("crawl.profile_qps", 0.5)
	v.SetDefault("crawl.card_selector", "a[data-e2e^='search-card-user-link']")
	v.SetDefault("crawl.handle_marker", crawler.DefaultHandleMarker)
	v.SetDefault("crawl.bio_selector", classify.DefaultBioSelector)

	defaults := classify.DefaultRules()
	v.SetDefault("classify.mode", string(classify.ModeLocale))
	v.SetDefault("classify.target_locale", "de")
	v.SetDefault("classify.target_country", "de")
	v.SetDefault("classify.min_confidence", 0.0)
	v.SetDefault("classify.contact_markers", defaults.ContactMarkers)
	v.SetDefault("classify.contact_exclusions", []string{})
	v.SetDefault("classify.website_ignore_domains", defaults.WebsiteIgnoreDomains)

	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.checkpoint_path", "data/checkpoint.txt")
	v.SetDefault("storage.results_path", "data/results.json")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.checkpoint_table", "creator_checkpoints")
	v.SetDefault("storage.postgres.result_table", "creator_results")
	v.SetDefault("storage.postgres.max_conns", 4)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.storage_state_path", "")

	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.prefix", "")
	v.SetDefault("export.local_dir", "")
	v.SetDefault("export.object", "results.json")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")

	v.SetDefault("server.addr", "")

	v.SetDefault("telemetry.tracing", false)
	v.SetDefault("telemetry.service_name", "creatorcrawl")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	err := c.validate()
	if err == nil || errors.Is(err, crawler.ErrConfig) {
		return err
	}
	return fmt.Errorf("%w: %w", crawler.ErrConfig, err)
}

func (c Config) validate() error {
	cr := c.Crawl
	if len(nonBlank(cr.SearchTerms)) == 0 && len(cr.Categories) == 0 {
		return fmt.Errorf("crawl.search_terms or crawl.categories must not be empty")
	}
	if len(nonBlank(cr.SearchTerms)) > 0 && !strings.Contains(cr.SearchURLTemplate, "{query}") {
		return fmt.Errorf("crawl.search_url_template must contain {query}")
	}
	for i, cat := range cr.Categories {
		if strings.TrimSpace(cat.Name) == "" || strings.TrimSpace(cat.URL) == "" {
			return fmt.Errorf("crawl.categories[%d] needs a name and a url", i)
		}
	}
	if !strings.Contains(cr.ProfileURLTemplate, "{handle}") {
		return fmt.Errorf("crawl.profile_url_template must contain {handle}")
	}
	if cr.MaxCandidatesPerQuery <= 0 {
		return fmt.Errorf("crawl.max_candidates_per_query must be > 0")
	}
	if cr.MaxStagnantRounds <= 0 {
		return fmt.Errorf("crawl.max_stagnant_rounds must be > 0")
	}
	if cr.SettleInterval < 0 || cr.FeedSettle < 0 || cr.ProfileSettle < 0 || cr.NavigationTimeout < 0 {
		return fmt.Errorf("crawl wait durations must not be negative")
	}
	if cr.ProfileQPS < 0 {
		return fmt.Errorf("crawl.profile_qps must not be negative")
	}

	if err := c.Policy().Validate(); err != nil {
		return err
	}
	if err := c.Rules().Validate(); err != nil {
		return err
	}
	if c.Classify.MinConfidence < 0 || c.Classify.MinConfidence > 1 {
		return fmt.Errorf("classify.min_confidence must be within [0, 1]")
	}

	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.CheckpointPath == "" || c.Storage.ResultsPath == "" {
			return fmt.Errorf("storage.checkpoint_path and storage.results_path are required")
		}
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	if c.Export.Enabled() && strings.TrimSpace(c.Export.Object) == "" {
		return fmt.Errorf("export.object is required when an export target is set")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	return nil
}

// Queries returns search terms first, then categories, in configured order.
func (c Config) Queries() ([]crawler.Query, error) {
	terms := nonBlank(c.Crawl.SearchTerms)
	out := make([]crawler.Query, 0, len(terms)+len(c.Crawl.Categories))
	for _, term := range terms {
		u, err := crawler.SearchURL(c.Crawl.SearchURLTemplate, term)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrConfig, err)
		}
		out = append(out, crawler.Query{Term: term, Kind: crawler.ProvenanceSearch, URL: u})
	}
	for _, cat := range c.Crawl.Categories {
		out = append(out, crawler.Query{
			Term: strings.TrimSpace(cat.Name),
			Kind: crawler.ProvenanceCategory,
			URL:  strings.TrimSpace(cat.URL),
		})
	}
	return out, nil
}

// Policy returns the acceptance policy.
func (c Config) Policy() classify.Policy {
	return classify.Policy{
		Mode:          classify.Mode(c.Classify.Mode),
		TargetLocale:  c.Classify.TargetLocale,
		TargetCountry: c.Classify.TargetCountry,
	}
}

// Rules returns the classification tables. An empty affiliate table falls back
// to the default precedence.
func (c Config) Rules() classify.Rules {
	affiliates := c.Classify.Affiliates
	if len(affiliates) == 0 {
		affiliates = classify.DefaultRules().Affiliates
	}
	return classify.Rules{
		Affiliates:           affiliates,
		ContactMarkers:       c.Classify.ContactMarkers,
		ContactExclusions:    c.Classify.ContactExclusions,
		WebsiteIgnoreDomains: c.Classify.WebsiteIgnoreDomains,
	}
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

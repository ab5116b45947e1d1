// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitesearch-crawler/internal/crawler"
	"github.com/JakeFAU/sitesearch-crawler/internal/logging"
)

// Supported values for headless.driver.
const (
	DriverChromedp = "chromedp"
	DriverRod      = "rod"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging  logging.Config `mapstructure:"logging"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Output   OutputConfig   `mapstructure:"output"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Sites    []SiteConfig   `mapstructure:"sites"`
}

// CrawlerConfig governs what is searched and how.
type CrawlerConfig struct {
	UserAgent       string   `mapstructure:"user_agent"`
	Topics          []string `mapstructure:"topics"`
	SiteParallelism int      `mapstructure:"site_parallelism"`
	EscapeTopics    bool     `mapstructure:"escape_topics"`
}

// HTTPConfig configures the static fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the rendering fallback.
type HeadlessConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Driver        string `mapstructure:"driver"`
	BrowserPath   string `mapstructure:"browser_path"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	SettleMinMs   int    `mapstructure:"settle_min_ms"`
	SettleMaxMs   int    `mapstructure:"settle_max_ms"`
}

// OutputConfig selects the CSV destination.
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig enables the optional Postgres sink when DSN is set.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// GCSConfig enables archiving the CSV to a bucket when Bucket is set.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// ArchiveConfig enables archiving the CSV to a local directory.
type ArchiveConfig struct {
	LocalDir string `mapstructure:"local_dir"`
}

// PubSubConfig enables per-record notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables the status listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SiteConfig is the file form of a crawler.Descriptor.
type SiteConfig struct {
	Name          string `mapstructure:"name"`
	BaseURL       string `mapstructure:"base_url"`
	SearchURL     string `mapstructure:"search_url"`
	ResultListing string `mapstructure:"result_listing"`
	ResultLink    string `mapstructure:"result_link"`
	LinksAbsolute bool   `mapstructure:"links_absolute"`
	TitleSelector string `mapstructure:"title_selector"`
	BodySelector  string `mapstructure:"body_selector"`
}

// Descriptor converts the file form into a crawler.Descriptor.
func (s SiteConfig) Descriptor() crawler.Descriptor {
	return crawler.Descriptor{
		Name:              s.Name,
		BaseURL:           s.BaseURL,
		SearchURLTemplate: s.SearchURL,
		ResultListing:     s.ResultListing,
		ResultLink:        s.ResultLink,
		LinksAreAbsolute:  s.LinksAbsolute,
		TitleSelector:     s.TitleSelector,
		BodySelector:      s.BodySelector,
	}
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

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
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("crawler.user_agent", "sitesearch-crawler/0.1")
	v.SetDefault("crawler.topics", []string{"python", "data science"})
	v.SetDefault("crawler.site_parallelism", 1)
	v.SetDefault("crawler.escape_topics", true)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.driver", DriverChromedp)
	v.SetDefault("headless.browser_path", "")
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_min_ms", int(crawler.DefaultSettleMin/time.Millisecond))
	v.SetDefault("headless.settle_max_ms", int(crawler.DefaultSettleMax/time.Millisecond))
	v.SetDefault("output.path", "articles_data.csv")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "search_content")
	v.SetDefault("gcs.bucket", "")
	v.SetDefault("gcs.prefix", "sitesearch")
	v.SetDefault("archive.local_dir", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits. Every site is
// validated as a crawler.Descriptor, so a bad selector fails the load.
func (c Config) Validate() error {
	if c.Crawler.SiteParallelism <= 0 {
		return fmt.Errorf("crawler.site_parallelism must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled {
		switch c.Headless.Driver {
		case DriverChromedp, DriverRod:
		default:
			return fmt.Errorf("headless.driver must be %q or %q, got %q", DriverChromedp, DriverRod, c.Headless.Driver)
		}
		if c.Headless.NavTimeoutSec <= 0 {
			return fmt.Errorf("headless.nav_timeout_seconds must be > 0 when headless is enabled")
		}
	}
	if c.Headless.SettleMinMs < 0 || c.Headless.SettleMaxMs < c.Headless.SettleMinMs {
		return fmt.Errorf("headless settle window must satisfy 0 <= settle_min_ms <= settle_max_ms")
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	seen := make(map[string]struct{}, len(c.Sites))
	for _, site := range c.Sites {
		if err := site.Descriptor().Validate(); err != nil {
			return err
		}
		if _, dup := seen[site.Name]; dup {
			return &crawler.ConfigError{Site: site.Name, Field: "name", Reason: "duplicate site name"}
		}
		seen[site.Name] = struct{}{}
	}
	return nil
}

// Descriptors returns the configured sites in file order.
func (c Config) Descriptors() []crawler.Descriptor {
	out := make([]crawler.Descriptor, 0, len(c.Sites))
	for _, site := range c.Sites {
		out = append(out, site.Descriptor())
	}
	return out
}

// HTTPTimeout returns the static fetch timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout returns the per-render browser timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// PageFetcherConfig maps the headless settings onto the page fetcher.
func (c Config) PageFetcherConfig() crawler.PageFetcherConfig {
	return crawler.PageFetcherConfig{
		SettleMin:     time.Duration(c.Headless.SettleMinMs) * time.Millisecond,
		SettleMax:     time.Duration(c.Headless.SettleMaxMs) * time.Millisecond,
		RenderTimeout: c.NavTimeout(),
	}
}

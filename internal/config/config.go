// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds deployment-wide settings.
type AppConfig struct {
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines the shared secret guarding the crawl trigger.
type AuthConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CronSecret string `mapstructure:"cron_secret"`
}

// CrawlerConfig governs the ingestion pipeline.
type CrawlerConfig struct {
	RunTimeout      time.Duration            `mapstructure:"run_timeout"`
	FetchTimeout    time.Duration            `mapstructure:"fetch_timeout"`
	SourceDelays    map[string]time.Duration `mapstructure:"source_delays"`
	UserAgents      []string                 `mapstructure:"user_agents"`
	AcceptLanguage  string                   `mapstructure:"accept_language"`
	HostRPS         float64                  `mapstructure:"host_rps"`
	HostBurst       int                      `mapstructure:"host_burst"`
	DetailFetch     bool                     `mapstructure:"detail_fetch"`
	DetailMaxPerRun int                      `mapstructure:"detail_max_per_run"`
}

// HeadlessConfig configures the rendered fetcher.
type HeadlessConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ExecPath       string        `mapstructure:"exec_path"`
	UserAgent      string        `mapstructure:"user_agent"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	Settle         time.Duration `mapstructure:"settle"`
	MaxScrolls     int           `mapstructure:"max_scrolls"`
	ScrollStep     int           `mapstructure:"scroll_step"`
	ScrollInterval time.Duration `mapstructure:"scroll_interval"`
	ViewportWidth  int64         `mapstructure:"viewport_width"`
	ViewportHeight int64         `mapstructure:"viewport_height"`
}

// DBConfig controls access to the campaigns table.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// RedisConfig configures the detail-page deadline cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// StorageConfig selects where raw listing snapshots are archived.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig holds the local snapshot directory.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for critical alert publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RateLimitConfig bounds externally triggered requests per caller and path.
type RateLimitConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Window      time.Duration  `mapstructure:"window"`
	MaxRequests int            `mapstructure:"max_requests"`
	Paths       map[string]int `mapstructure:"paths"`
	IdleTTL     time.Duration  `mapstructure:"idle_ttl"`
}

// ScheduleConfig drives periodic runs in serve mode.
type ScheduleConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Spec      string `mapstructure:"spec"`
	SweepSpec string `mapstructure:"sweep_spec"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig names the service for tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment. With no path, config.yaml is
// looked up in the working directory, /etc/campaign-crawler and
// $HOME/.campaign-crawler; a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CAMPAIGN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/campaign-crawler/")
		v.AddConfigPath("$HOME/.campaign-crawler")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Asia/Seoul")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "9m")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("crawler.run_timeout", "8m")
	v.SetDefault("crawler.fetch_timeout", "8s")
	v.SetDefault("crawler.source_delays", map[string]string{
		"reviewplace": "2s",
		"reviewnote":  "3s",
	})
	v.SetDefault("crawler.user_agents", []string{
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	})
	v.SetDefault("crawler.accept_language", "ko-KR,ko;q=0.8,en-US;q=0.5,en;q=0.3")
	v.SetDefault("crawler.host_rps", 2.0)
	v.SetDefault("crawler.host_burst", 1)
	v.SetDefault("crawler.detail_fetch", true)
	v.SetDefault("crawler.detail_max_per_run", 40)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
		"(KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	v.SetDefault("headless.nav_timeout", "20s")
	v.SetDefault("headless.settle", "5s")
	v.SetDefault("headless.max_scrolls", 10)
	v.SetDefault("headless.scroll_step", 100)
	v.SetDefault("headless.scroll_interval", "200ms")
	v.SetDefault("headless.viewport_width", 1200)
	v.SetDefault("headless.viewport_height", 800)
	v.SetDefault("db.table", "campaigns")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("redis.ttl", "12h")
	v.SetDefault("redis.prefix", "campaign:deadline:")
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("pubsub.topic_name", "campaign-quality-alerts")
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("ratelimit.max_requests", 60)
	v.SetDefault("ratelimit.paths", map[string]int{"/crawl": 6})
	v.SetDefault("ratelimit.idle_ttl", "24h")
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.spec", "@every 6h")
	v.SetDefault("schedule.sweep_spec", "@hourly")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.service_name", "campaign-crawler")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.FetchTimeout <= 0 {
		return fmt.Errorf("crawler.fetch_timeout must be > 0")
	}
	if c.Crawler.RunTimeout <= 0 {
		return fmt.Errorf("crawler.run_timeout must be > 0")
	}
	if len(c.Crawler.UserAgents) == 0 {
		return fmt.Errorf("crawler.user_agents must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Headless.Enabled && c.Headless.NavTimeout <= 0 {
		return fmt.Errorf("headless.nav_timeout must be > 0 when headless is enabled")
	}
	if c.AuthRequired() && c.Auth.CronSecret == "" {
		return fmt.Errorf("auth.cron_secret must be set when auth is enforced")
	}
	switch c.Storage.Backend {
	case "", "none", "local", "gcs":
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Storage.Backend == "gcs" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required for the gcs backend")
	}
	if c.Storage.Backend == "local" && c.Storage.Local.BaseDir == "" {
		return fmt.Errorf("storage.local.base_dir is required for the local backend")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0) {
		return fmt.Errorf("ratelimit.window and ratelimit.max_requests must be > 0")
	}
	if c.Schedule.Enabled {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Schedule.Spec); err != nil {
			return fmt.Errorf("schedule.spec: %w", err)
		}
		if _, err := parser.Parse(c.Schedule.SweepSpec); err != nil {
			return fmt.Errorf("schedule.sweep_spec: %w", err)
		}
	}
	return nil
}

// Production reports whether the service runs in production.
func (c Config) Production() bool {
	return strings.EqualFold(c.App.Environment, "production")
}

// AuthRequired reports whether the crawl trigger must carry the shared secret.
func (c Config) AuthRequired() bool {
	return c.Auth.Enabled || c.Production()
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("app.timezone: %w", err)
	}
	return loc, nil
}

// SourceDelay returns the pause after crawling source before the next one starts.
func (c Config) SourceDelay(source string) time.Duration {
	return c.Crawler.SourceDelays[source]
}

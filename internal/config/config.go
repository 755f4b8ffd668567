// Package config loads jobwatch settings from YAML or TOML files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobwatch/internal/model"
	"github.com/amishk599/jobwatch/internal/store"
)

// EnvConfigPath names the environment variable consulted for the config
// path when no flag is given.
const EnvConfigPath = "JOBWATCH_CONFIG"

// DefaultPath is used when neither the flag nor the environment names a file.
const DefaultPath = "config.yaml"

// Config is the root configuration for jobwatch.
type Config struct {
	LogLevel    string
	Database    DatabaseConfig
	Schedule    ScheduleConfig
	Pipeline    PipelineConfig
	Fetch       FetchConfig
	RateLimit   RateLimitConfig
	Retry       RetryConfig
	AI          AIConfig
	Mail        MailConfig
	Webhook     WebhookConfig
	Events      EventsConfig
	HTTP        HTTPConfig
	Sources     []SourceConfig
	Subscribers []SubscriberConfig
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string // "sqlite" or "postgres"
	Path   string // sqlite file
	URL    string // postgres connection URL
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == store.DriverPostgres {
		return d.URL
	}
	return d.Path
}

// ScheduleConfig sets the phase timers. Zero disables a timer.
type ScheduleConfig struct {
	DiscoveryInterval time.Duration
	DrainInterval     time.Duration
}

// PipelineConfig bounds worker pools and prompt size.
type PipelineConfig struct {
	SourceWorkers int
	DrainWorkers  int
	ContentLimit  int // characters of page content sent to the model
}

// FetchConfig selects and configures the page fetch backend.
type FetchConfig struct {
	Backend      string // "firecrawl" or "direct"
	BaseURL      string
	APIKey       string
	PollInterval time.Duration // firecrawl crawl status polling
	CrawlTimeout time.Duration // firecrawl crawl completion deadline
	Timeout      time.Duration // per HTTP request
}

// RateLimitConfig spaces requests to the same host.
type RateLimitConfig struct {
	MinDelay  time.Duration
	Overrides map[string]time.Duration // keyed by host
}

// RetryConfig bounds transport retries.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// AIConfig configures the OpenAI-compatible completion endpoint.
type AIConfig struct {
	BaseURL     string // defaults to https://api.openai.com/v1
	Model       string
	APIKey      string // optional for local servers such as Ollama
	Timeout     time.Duration
	Temperature float64
}

// MailConfig configures outgoing email.
type MailConfig struct {
	Transport string // "smtp" or "log"
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	Timeout   time.Duration
}

// WebhookConfig configures webhook delivery.
type WebhookConfig struct {
	Timeout time.Duration
}

// EventsConfig configures in-app event publishing. Empty RedisURL disables it.
type EventsConfig struct {
	RedisURL string `yaml:"redis_url" toml:"redis_url"`
	Channel  string `yaml:"channel" toml:"channel"`
}

// HTTPConfig configures the control surface. Empty Listen disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// SourceConfig seeds a monitored career page.
type SourceConfig struct {
	Name      string `yaml:"name" toml:"name"`
	URL       string `yaml:"url" toml:"url"`
	MultiPage bool   `yaml:"multi_page" toml:"multi_page"`
	PageLimit int    `yaml:"page_limit" toml:"page_limit"`
	Enabled   *bool  `yaml:"enabled" toml:"enabled"` // default true
}

// SubscriberConfig seeds a notification recipient. Sources lists source
// names; an empty list means every source.
type SubscriberConfig struct {
	Email            string   `yaml:"email" toml:"email"`
	WebhookURL       string   `yaml:"webhook_url" toml:"webhook_url"`
	Channels         []string `yaml:"channels" toml:"channels"`
	Locations        []string `yaml:"locations" toml:"locations"`
	JobTypes         []string `yaml:"job_types" toml:"job_types"`
	ExperienceLevels []string `yaml:"experience_levels" toml:"experience_levels"`
	Sources          []string `yaml:"sources" toml:"sources"`
	Active           *bool    `yaml:"active" toml:"active"` // default true
}

const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultFirecrawlBaseURL = "https://api.firecrawl.dev"
)

// rawConfig is used for unmarshaling (snake_case fields and durations as
// strings).
type rawConfig struct {
	LogLevel    string             `yaml:"log_level" toml:"log_level"`
	Database    rawDatabaseConfig  `yaml:"database" toml:"database"`
	Schedule    rawScheduleConfig  `yaml:"schedule" toml:"schedule"`
	Pipeline    rawPipelineConfig  `yaml:"pipeline" toml:"pipeline"`
	Fetch       rawFetchConfig     `yaml:"fetch" toml:"fetch"`
	RateLimit   rawRateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Retry       rawRetryConfig     `yaml:"retry" toml:"retry"`
	AI          rawAIConfig        `yaml:"ai" toml:"ai"`
	Mail        rawMailConfig      `yaml:"mail" toml:"mail"`
	Webhook     rawWebhookConfig   `yaml:"webhook" toml:"webhook"`
	Events      EventsConfig       `yaml:"events" toml:"events"`
	HTTP        *HTTPConfig        `yaml:"http" toml:"http"`
	Sources     []SourceConfig     `yaml:"sources" toml:"sources"`
	Subscribers []SubscriberConfig `yaml:"subscribers" toml:"subscribers"`
}

type rawDatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
	URL    string `yaml:"url" toml:"url"`
}

type rawScheduleConfig struct {
	DiscoveryInterval string `yaml:"discovery_interval" toml:"discovery_interval"`
	DrainInterval     string `yaml:"drain_interval" toml:"drain_interval"`
}

type rawPipelineConfig struct {
	SourceWorkers int `yaml:"source_workers" toml:"source_workers"`
	DrainWorkers  int `yaml:"drain_workers" toml:"drain_workers"`
	ContentLimit  int `yaml:"content_limit" toml:"content_limit"`
}

type rawFetchConfig struct {
	Backend      string `yaml:"backend" toml:"backend"`
	BaseURL      string `yaml:"base_url" toml:"base_url"`
	APIKey       string `yaml:"api_key" toml:"api_key"`
	PollInterval string `yaml:"poll_interval" toml:"poll_interval"`
	CrawlTimeout string `yaml:"crawl_timeout" toml:"crawl_timeout"`
	Timeout      string `yaml:"timeout" toml:"timeout"`
}

type rawRateLimitConfig struct {
	MinDelay  string            `yaml:"min_delay" toml:"min_delay"`
	Overrides map[string]string `yaml:"overrides" toml:"overrides"`
}

type rawRetryConfig struct {
	MaxRetries *int   `yaml:"max_retries" toml:"max_retries"`
	BaseDelay  string `yaml:"base_delay" toml:"base_delay"`
	MaxDelay   string `yaml:"max_delay" toml:"max_delay"`
}

type rawAIConfig struct {
	BaseURL     string   `yaml:"base_url" toml:"base_url"`
	Model       string   `yaml:"model" toml:"model"`
	APIKey      string   `yaml:"api_key" toml:"api_key"`
	Timeout     string   `yaml:"timeout" toml:"timeout"`
	Temperature *float64 `yaml:"temperature" toml:"temperature"`
}

type rawMailConfig struct {
	Transport string `yaml:"transport" toml:"transport"`
	Host      string `yaml:"host" toml:"host"`
	Port      int    `yaml:"port" toml:"port"`
	Username  string `yaml:"username" toml:"username"`
	Password  string `yaml:"password" toml:"password"`
	From      string `yaml:"from" toml:"from"`
	Timeout   string `yaml:"timeout" toml:"timeout"`
}

type rawWebhookConfig struct {
	Timeout string `yaml:"timeout" toml:"timeout"`
}

// ResolvePath picks the config file: the flag value, then $JOBWATCH_CONFIG,
// then ./config.yaml.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads the config file at path, validates it, and returns Config.
// A .env file next to the config file (or in the working directory) is
// loaded first so ${VAR} references can use it; variables already set in
// the environment win.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg, err := fromRaw(raw)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(configPath string) error {
	candidates := []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"}
	seen := make(map[string]bool)
	for _, p := range candidates {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// parseDuration parses value, returning def when value is empty.
func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

func fromRaw(raw rawConfig) (*Config, error) {
	var err error
	cfg := &Config{
		LogLevel: raw.LogLevel,
		Database: DatabaseConfig{
			Driver: raw.Database.Driver,
			Path:   raw.Database.Path,
			URL:    raw.Database.URL,
		},
		Pipeline: PipelineConfig{
			SourceWorkers: raw.Pipeline.SourceWorkers,
			DrainWorkers:  raw.Pipeline.DrainWorkers,
			ContentLimit:  raw.Pipeline.ContentLimit,
		},
		Fetch: FetchConfig{
			Backend: raw.Fetch.Backend,
			BaseURL: raw.Fetch.BaseURL,
			APIKey:  raw.Fetch.APIKey,
		},
		AI: AIConfig{
			BaseURL:     raw.AI.BaseURL,
			Model:       raw.AI.Model,
			APIKey:      raw.AI.APIKey,
			Temperature: 0.1,
		},
		Mail: MailConfig{
			Transport: raw.Mail.Transport,
			Host:      raw.Mail.Host,
			Port:      raw.Mail.Port,
			Username:  raw.Mail.Username,
			Password:  raw.Mail.Password,
			From:      raw.Mail.From,
		},
		Events:      raw.Events,
		HTTP:        HTTPConfig{Listen: ":8000"},
		Sources:     raw.Sources,
		Subscribers: raw.Subscribers,
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = store.DriverSQLite
	}
	if cfg.Database.Driver == store.DriverSQLite && cfg.Database.Path == "" {
		cfg.Database.Path = "jobwatch.db"
	}

	if cfg.Schedule.DiscoveryInterval, err = parseDuration("schedule.discovery_interval", raw.Schedule.DiscoveryInterval, 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Schedule.DrainInterval, err = parseDuration("schedule.drain_interval", raw.Schedule.DrainInterval, 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.Pipeline.SourceWorkers == 0 {
		cfg.Pipeline.SourceWorkers = 4
	}
	if cfg.Pipeline.DrainWorkers == 0 {
		cfg.Pipeline.DrainWorkers = 4
	}
	if cfg.Pipeline.ContentLimit == 0 {
		cfg.Pipeline.ContentLimit = 8000
	}

	if cfg.Fetch.Backend == "" {
		cfg.Fetch.Backend = "firecrawl"
	}
	if cfg.Fetch.Backend == "firecrawl" && cfg.Fetch.BaseURL == "" {
		cfg.Fetch.BaseURL = defaultFirecrawlBaseURL
	}
	if cfg.Fetch.PollInterval, err = parseDuration("fetch.poll_interval", raw.Fetch.PollInterval, 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Fetch.CrawlTimeout, err = parseDuration("fetch.crawl_timeout", raw.Fetch.CrawlTimeout, 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Fetch.Timeout, err = parseDuration("fetch.timeout", raw.Fetch.Timeout, 60*time.Second); err != nil {
		return nil, err
	}

	if cfg.RateLimit.MinDelay, err = parseDuration("rate_limit.min_delay", raw.RateLimit.MinDelay, time.Second); err != nil {
		return nil, err
	}
	cfg.RateLimit.Overrides = make(map[string]time.Duration, len(raw.RateLimit.Overrides))
	for host, v := range raw.RateLimit.Overrides {
		d, err := parseDuration(fmt.Sprintf("rate_limit.overrides[%q]", host), v, 0)
		if err != nil {
			return nil, err
		}
		cfg.RateLimit.Overrides[strings.ToLower(host)] = d
	}

	cfg.Retry.MaxRetries = 2
	if raw.Retry.MaxRetries != nil {
		cfg.Retry.MaxRetries = *raw.Retry.MaxRetries
	}
	if cfg.Retry.BaseDelay, err = parseDuration("retry.base_delay", raw.Retry.BaseDelay, 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxDelay, err = parseDuration("retry.max_delay", raw.Retry.MaxDelay, time.Minute); err != nil {
		return nil, err
	}

	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if raw.AI.Temperature != nil {
		cfg.AI.Temperature = *raw.AI.Temperature
	}
	if cfg.AI.Timeout, err = parseDuration("ai.timeout", raw.AI.Timeout, 60*time.Second); err != nil {
		return nil, err
	}

	if cfg.Mail.Transport == "" {
		cfg.Mail.Transport = "log"
		if cfg.Mail.Host != "" {
			cfg.Mail.Transport = "smtp"
		}
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}

	if cfg.Mail.Timeout, err = parseDuration("mail.timeout", raw.Mail.Timeout, 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Webhook.Timeout, err = parseDuration("webhook.timeout", raw.Webhook.Timeout, 10*time.Second); err != nil {
		return nil, err
	}

	if raw.HTTP != nil {
		cfg.HTTP = *raw.HTTP
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}

	switch cfg.Database.Driver {
	case store.DriverSQLite:
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case store.DriverPostgres:
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be \"sqlite\" or \"postgres\", got %q", cfg.Database.Driver)
	}

	if cfg.Schedule.DiscoveryInterval < 0 || cfg.Schedule.DrainInterval < 0 {
		return fmt.Errorf("schedule intervals must not be negative")
	}
	if cfg.Pipeline.SourceWorkers < 1 || cfg.Pipeline.DrainWorkers < 1 {
		return fmt.Errorf("pipeline worker counts must be positive")
	}
	if cfg.Pipeline.ContentLimit < 0 {
		return fmt.Errorf("pipeline.content_limit must not be negative")
	}

	switch cfg.Fetch.Backend {
	case "firecrawl":
		if cfg.Fetch.BaseURL == defaultFirecrawlBaseURL && cfg.Fetch.APIKey == "" {
			return fmt.Errorf("fetch.api_key is required for the hosted firecrawl API")
		}
	case "direct":
	default:
		return fmt.Errorf("fetch.backend must be \"firecrawl\" or \"direct\", got %q", cfg.Fetch.Backend)
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be between 0 and 2, got %v", cfg.AI.Temperature)
	}

	switch cfg.Mail.Transport {
	case "smtp":
		if cfg.Mail.Host == "" {
			return fmt.Errorf("mail.host is required when transport is \"smtp\"")
		}
		if cfg.Mail.From == "" {
			return fmt.Errorf("mail.from is required when transport is \"smtp\"")
		}
	case "log":
	default:
		return fmt.Errorf("mail.transport must be \"smtp\" or \"log\", got %q", cfg.Mail.Transport)
	}
	if cfg.Mail.Port < 1 || cfg.Mail.Port > 65535 {
		return fmt.Errorf("mail.port out of range: %d", cfg.Mail.Port)
	}

	names := make(map[string]bool, len(cfg.Sources))
	urls := make(map[string]bool, len(cfg.Sources))
	for i, s := range cfg.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		if err := validateHTTPURL(s.URL); err != nil {
			return fmt.Errorf("sources[%d] (%s): %w", i, s.Name, err)
		}
		if urls[s.URL] {
			return fmt.Errorf("sources[%d] (%s): duplicate url %s", i, s.Name, s.URL)
		}
		if s.PageLimit < 0 {
			return fmt.Errorf("sources[%d] (%s): page_limit must not be negative", i, s.Name)
		}
		urls[s.URL] = true
		names[s.Name] = true
	}

	emails := make(map[string]bool, len(cfg.Subscribers))
	for i, sub := range cfg.Subscribers {
		if !strings.Contains(sub.Email, "@") {
			return fmt.Errorf("subscribers[%d].email %q is not an email address", i, sub.Email)
		}
		if emails[strings.ToLower(sub.Email)] {
			return fmt.Errorf("subscribers[%d]: duplicate email %s", i, sub.Email)
		}
		emails[strings.ToLower(sub.Email)] = true
		if _, err := model.ParseChannels(sub.Channels); err != nil {
			return fmt.Errorf("subscribers[%d] (%s): %w", i, sub.Email, err)
		}
		if sub.WebhookURL != "" {
			if err := validateHTTPURL(sub.WebhookURL); err != nil {
				return fmt.Errorf("subscribers[%d] (%s) webhook_url: %w", i, sub.Email, err)
			}
		}
		for _, name := range sub.Sources {
			if !names[name] {
				return fmt.Errorf("subscribers[%d] (%s): unknown source %q", i, sub.Email, name)
			}
		}
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be absolute http(s)", raw)
	}
	return nil
}

// ModelSources converts the configured sources for seeding the store.
func (c *Config) ModelSources() []model.Source {
	out := make([]model.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, model.Source{
			ID:        store.SourceID(s.URL),
			Name:      s.Name,
			Address:   s.URL,
			MultiPage: s.MultiPage,
			PageLimit: s.PageLimit,
			Active:    s.Enabled == nil || *s.Enabled,
		})
	}
	return out
}

// ModelSubscribers converts the configured subscribers for seeding the
// store. Source names are resolved to source ids.
func (c *Config) ModelSubscribers() ([]model.Subscriber, error) {
	byName := make(map[string]string, len(c.Sources))
	for _, s := range c.Sources {
		byName[s.Name] = store.SourceID(s.URL)
	}

	out := make([]model.Subscriber, 0, len(c.Subscribers))
	for _, s := range c.Subscribers {
		channels, err := model.ParseChannels(s.Channels)
		if err != nil {
			return nil, fmt.Errorf("subscriber %s: %w", s.Email, err)
		}
		var sourceIDs []string
		for _, name := range s.Sources {
			id, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("subscriber %s: unknown source %q", s.Email, name)
			}
			sourceIDs = append(sourceIDs, id)
		}
		out = append(out, model.Subscriber{
			Email:      s.Email,
			WebhookURL: s.WebhookURL,
			Preferences: model.PreferenceFilter{
				Locations:        s.Locations,
				JobTypes:         s.JobTypes,
				ExperienceLevels: s.ExperienceLevels,
				SourceIDs:        sourceIDs,
			},
			Channels: channels,
			Active:   s.Active == nil || *s.Active,
		})
	}
	return out, nil
}

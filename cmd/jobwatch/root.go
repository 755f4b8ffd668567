package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobwatch/internal/adapter"
	"github.com/amishk599/jobwatch/internal/ai"
	"github.com/amishk599/jobwatch/internal/config"
	"github.com/amishk599/jobwatch/internal/events"
	"github.com/amishk599/jobwatch/internal/model"
	"github.com/amishk599/jobwatch/internal/notifier"
	"github.com/amishk599/jobwatch/internal/pipeline"
	"github.com/amishk599/jobwatch/internal/ratelimit"
	"github.com/amishk599/jobwatch/internal/retry"
	"github.com/amishk599/jobwatch/internal/store"
)

var (
	cfgPath   string
	debug     bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "jobwatch",
	Short: "Career page watcher with AI extraction and multi-channel alerts",
	Long: "jobwatch fetches career pages, extracts postings with a language model, " +
		"deduplicates them and notifies matching subscribers by email, webhook or in-app.",
	// Default to `start` so that `jobwatch` with no args runs the daemon.
	RunE:          runStart,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBWATCH_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "log format: auto, text or json")
}

// loadConfig resolves the config path and parses it.
// Priority: --config flag > JOBWATCH_CONFIG env var > "./config.yaml"
func loadConfig() (*config.Config, error) {
	return config.Load(config.ResolvePath(cfgPath))
}

// setupLogger builds the process logger. Text is used on a terminal and
// JSON otherwise unless --log-format says differently.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	if debug {
		logLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	useJSON := logFormat == "json"
	if logFormat == "auto" {
		fd := os.Stderr.Fd()
		useJSON = !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
	}
	if useJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// loadConfigAndLogger is the common preamble of every command that needs
// both.
func loadConfigAndLogger() (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, setupLogger("info"), fmt.Errorf("load config: %w", err)
	}
	return cfg, setupLogger(cfg.LogLevel), nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.SQLStore, error) {
	return store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
}

// seedStore writes the configured sources and subscribers. Rows added
// through the CLI are left alone.
func seedStore(ctx context.Context, st store.Backend, cfg *config.Config, logger *slog.Logger) error {
	for _, src := range cfg.ModelSources() {
		if err := st.UpsertSource(ctx, &src); err != nil {
			return err
		}
		logger.Debug("seeded source", "name", src.Name, "address", src.Address, "active", src.Active)
	}
	subs, err := cfg.ModelSubscribers()
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := st.UpsertSubscriber(ctx, &sub); err != nil {
			return err
		}
		logger.Debug("seeded subscriber", "email", sub.Email, "channels", model.JoinChannels(sub.Channels))
	}
	logger.Info("config seeded", "sources", len(cfg.Sources), "subscribers", len(subs))
	return nil
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
	}
}

func newLimiter(cfg *config.Config) *ratelimit.HostRateLimiter {
	return ratelimit.NewHostRateLimiter(cfg.RateLimit.MinDelay, cfg.RateLimit.Overrides)
}

// buildFetcher wires the configured backend with per-host spacing inside
// the retry loop, so every attempt waits its turn.
func buildFetcher(cfg *config.Config, limiter *ratelimit.HostRateLimiter, logger *slog.Logger) model.PageFetcher {
	httpClient := &http.Client{Timeout: cfg.Fetch.Timeout}

	var (
		fetcher model.PageFetcher
		direct  *adapter.DirectFetcher
	)
	switch cfg.Fetch.Backend {
	case "direct":
		direct = adapter.NewDirectFetcher(httpClient, logger)
		fetcher = direct
	default:
		fetcher = adapter.NewFirecrawlFetcher(cfg.Fetch.BaseURL, cfg.Fetch.APIKey, httpClient,
			cfg.Fetch.PollInterval, cfg.Fetch.CrawlTimeout, logger)
	}
	logger.Info("fetch backend configured", "backend", cfg.Fetch.Backend, "min_delay", cfg.RateLimit.MinDelay.String())

	fetcher = ratelimit.NewRateLimitedFetcher(fetcher, limiter)
	wrapped := retry.NewFetcher(fetcher, retryPolicy(cfg), logger)
	if direct != nil {
		// Linked pages get the same per-host spacing and retries.
		direct.FollowLinksWith(wrapped)
	}
	return wrapped
}

func buildExtractor(cfg *config.Config, logger *slog.Logger) *ai.Extractor {
	provider := ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Temperature,
		&http.Client{Timeout: cfg.AI.Timeout})
	logger.Info("ai provider configured", "base_url", cfg.AI.BaseURL, "model", cfg.AI.Model)
	return ai.NewExtractor(retry.NewProvider(provider, retryPolicy(cfg), logger), ai.ExtractionTemplate, cfg.Pipeline.ContentLimit, logger)
}

func buildMailer(cfg *config.Config, logger *slog.Logger) model.Mailer {
	if cfg.Mail.Transport != "smtp" {
		logger.Info("using log mailer")
		return notifier.NewLogMailer(logger)
	}
	logger.Info("using smtp mailer", "host", cfg.Mail.Host, "port", cfg.Mail.Port)
	m := notifier.NewSMTPMailer(notifier.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		Timeout:  cfg.Mail.Timeout,
	})
	return retry.NewMailer(m, retryPolicy(cfg), logger)
}

func buildWebhook(cfg *config.Config, limiter *ratelimit.HostRateLimiter, logger *slog.Logger) model.WebhookPoster {
	poster := notifier.NewHTTPWebhookPoster(&http.Client{Timeout: cfg.Webhook.Timeout})
	return retry.NewWebhook(ratelimit.NewRateLimitedWebhook(poster, limiter), retryPolicy(cfg), logger)
}

// connectEvents returns a publisher when events.redis_url is set. The
// returned client is nil when events are disabled.
func connectEvents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (model.EventPublisher, *redis.Client, error) {
	if cfg.Events.RedisURL == "" {
		return nil, nil, nil
	}
	rdb, err := events.NewRedisClient(ctx, cfg.Events.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("publishing in-app events", "channel", eventsChannel(cfg))
	return events.NewRedisPublisher(rdb, eventsChannel(cfg)), rdb, nil
}

func eventsChannel(cfg *config.Config) string {
	if cfg.Events.Channel == "" {
		return events.DefaultChannel
	}
	return cfg.Events.Channel
}

// deliveries groups the outbound transports used by the dispatcher.
type deliveries struct {
	mailer  model.Mailer
	webhook model.WebhookPoster
	events  model.EventPublisher
}

// liveDeliveries wires the configured transports.
func liveDeliveries(cfg *config.Config, limiter *ratelimit.HostRateLimiter, publisher model.EventPublisher, logger *slog.Logger) deliveries {
	return deliveries{
		mailer:  buildMailer(cfg, logger),
		webhook: buildWebhook(cfg, limiter, logger),
		events:  publisher,
	}
}

// dryRunDeliveries logs instead of delivering.
func dryRunDeliveries(logger *slog.Logger) deliveries {
	return deliveries{
		mailer:  notifier.NewLogMailer(logger),
		webhook: notifier.NewLogWebhookPoster(logger),
	}
}

func buildDispatcher(cfg *config.Config, st model.Store, d deliveries, logger *slog.Logger) *notifier.Dispatcher {
	return notifier.NewDispatcher(st, d.mailer, d.webhook, d.events, cfg.Mail.From, logger)
}

func buildPipeline(cfg *config.Config, st model.Store, limiter *ratelimit.HostRateLimiter, d deliveries, logger *slog.Logger) *pipeline.Pipeline {
	return pipeline.New(
		st,
		buildFetcher(cfg, limiter, logger),
		buildExtractor(cfg, logger),
		buildDispatcher(cfg, st, d, logger),
		pipeline.Options{
			SourceWorkers: cfg.Pipeline.SourceWorkers,
			DrainWorkers:  cfg.Pipeline.DrainWorkers,
		},
		logger,
	)
}

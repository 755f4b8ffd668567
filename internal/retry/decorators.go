package retry

import (
	"context"
	"log/slog"

	"github.com/amishk599/jobwatch/internal/model"
)

// Fetcher is a decorator that retries transient fetch failures before
// delegating to the wrapped PageFetcher.
type Fetcher struct {
	inner  model.PageFetcher
	policy Policy
	logger *slog.Logger
}

// NewFetcher wraps a PageFetcher with retry logic.
func NewFetcher(inner model.PageFetcher, policy Policy, logger *slog.Logger) *Fetcher {
	return &Fetcher{inner: inner, policy: policy, logger: logger}
}

func (f *Fetcher) FetchSingle(ctx context.Context, address string) (model.Page, error) {
	return Do(ctx, f.policy, f.logger, "fetch_single", func(ctx context.Context) (model.Page, error) {
		return f.inner.FetchSingle(ctx, address)
	})
}

func (f *Fetcher) FetchMulti(ctx context.Context, address string, pageLimit int) ([]model.Page, error) {
	return Do(ctx, f.policy, f.logger, "fetch_multi", func(ctx context.Context) ([]model.Page, error) {
		return f.inner.FetchMulti(ctx, address, pageLimit)
	})
}

// Provider retries transient completion failures.
type Provider struct {
	inner  model.CompletionProvider
	policy Policy
	logger *slog.Logger
}

// NewProvider wraps a CompletionProvider with retry logic.
func NewProvider(inner model.CompletionProvider, policy Policy, logger *slog.Logger) *Provider {
	return &Provider{inner: inner, policy: policy, logger: logger}
}

func (p *Provider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return Do(ctx, p.policy, p.logger, "complete", func(ctx context.Context) (string, error) {
		return p.inner.Complete(ctx, systemPrompt, userPrompt)
	})
}

// Mailer retries transient mail delivery failures.
type Mailer struct {
	inner  model.Mailer
	policy Policy
	logger *slog.Logger
}

// NewMailer wraps a Mailer with retry logic.
func NewMailer(inner model.Mailer, policy Policy, logger *slog.Logger) *Mailer {
	return &Mailer{inner: inner, policy: policy, logger: logger}
}

func (m *Mailer) Send(ctx context.Context, msg model.MailMessage) error {
	_, err := Do(ctx, m.policy, m.logger, "mail_send", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.inner.Send(ctx, msg)
	})
	return err
}

// Webhook retries transient webhook failures. 429 responses wait for the
// endpoint's Retry-After.
type Webhook struct {
	inner  model.WebhookPoster
	policy Policy
	logger *slog.Logger
}

// NewWebhook wraps a WebhookPoster with retry logic.
func NewWebhook(inner model.WebhookPoster, policy Policy, logger *slog.Logger) *Webhook {
	return &Webhook{inner: inner, policy: policy, logger: logger}
}

func (w *Webhook) Post(ctx context.Context, url string, payload any) error {
	_, err := Do(ctx, w.policy, w.logger, "webhook_post", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.inner.Post(ctx, url, payload)
	})
	return err
}

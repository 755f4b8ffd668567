package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/amishk599/jobwatch/internal/model"
	"github.com/amishk599/jobwatch/internal/retry"
)

// Ensure HTTPWebhookPoster implements model.WebhookPoster.
var _ model.WebhookPoster = (*HTTPWebhookPoster)(nil)

// HTTPWebhookPoster posts JSON payloads to webhook URLs.
type HTTPWebhookPoster struct {
	httpClient *http.Client
}

// NewHTTPWebhookPoster returns a poster that uses httpClient for requests.
func NewHTTPWebhookPoster(httpClient *http.Client) *HTTPWebhookPoster {
	return &HTTPWebhookPoster{httpClient: httpClient}
}

// Post sends payload as JSON. Any non-2xx status is returned as
// *model.HTTPError carrying the Retry-After delay when present.
func (w *HTTPWebhookPoster) Post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}
	return nil
}

// Ensure LogWebhookPoster implements model.WebhookPoster.
var _ model.WebhookPoster = (*LogWebhookPoster)(nil)

// LogWebhookPoster logs webhook deliveries instead of posting them. Dry
// runs use it so no external endpoint is contacted.
type LogWebhookPoster struct {
	logger *slog.Logger
}

// NewLogWebhookPoster returns a poster that logs each payload via slog.
func NewLogWebhookPoster(logger *slog.Logger) *LogWebhookPoster {
	return &LogWebhookPoster{logger: logger}
}

// Post logs the target and the payload size. It never fails.
func (w *LogWebhookPoster) Post(_ context.Context, url string, payload any) error {
	body, _ := json.Marshal(payload)
	w.logger.Info("webhook", "url", url, "bytes", len(body))
	return nil
}

// Discord embed payload types.

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

const (
	embedColor          = 0x3498db
	maxEmbedDescription = 4096
	maxEmbedFieldValue  = 1024
	webhookFooterLayout = "2006-01-02 15:04"
)

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func buildWebhookPayload(p *model.Posting) discordPayload {
	embed := discordEmbed{
		Title:       "New Job Match: " + p.Title,
		Description: truncateRunes(orDefault(p.Description, "No description available"), maxEmbedDescription),
		URL:         p.URL,
		Color:       embedColor,
		Fields: []discordField{
			{Name: "Company", Value: p.Company, Inline: true},
			{Name: "Location", Value: orDefault(p.Location, notSpecified), Inline: true},
			{Name: "Job Type", Value: orDefault(p.JobType, notSpecified), Inline: true},
			{Name: "Experience", Value: orDefault(p.ExperienceLevel, notSpecified), Inline: true},
		},
	}

	if p.Requirements != nil && *p.Requirements != "" {
		embed.Fields = append(embed.Fields, discordField{
			Name:  "Requirements",
			Value: truncateRunes(*p.Requirements, maxEmbedFieldValue),
		})
	}
	if p.URL != "" {
		embed.Fields = append(embed.Fields, discordField{
			Name:  "Apply",
			Value: "[View Job Posting](" + p.URL + ")",
		})
	}
	if !p.FirstSeenAt.IsZero() {
		embed.Footer = &discordFooter{Text: "Posted: " + p.FirstSeenAt.UTC().Format(webhookFooterLayout)}
	}

	return discordPayload{Embeds: []discordEmbed{embed}}
}

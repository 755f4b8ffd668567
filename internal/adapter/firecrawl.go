package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/jobwatch/internal/model"
	"github.com/amishk599/jobwatch/internal/retry"
)

// Ensure FirecrawlFetcher implements model.PageFetcher.
var _ model.PageFetcher = (*FirecrawlFetcher)(nil)

const (
	defaultFirecrawlBaseURL = "https://api.firecrawl.dev"
	defaultPageLimit        = 10
)

// FirecrawlFetcher fetches career pages through the Firecrawl API. Single
// pages use /v1/scrape; multi-page sources start an asynchronous /v1/crawl
// job and poll it until it completes.
type FirecrawlFetcher struct {
	baseURL      string
	apiKey       string
	client       *http.Client
	pollInterval time.Duration
	crawlTimeout time.Duration
	logger       *slog.Logger
}

// NewFirecrawlFetcher creates a Firecrawl-backed fetcher. An empty baseURL
// targets the hosted API.
func NewFirecrawlFetcher(baseURL, apiKey string, client *http.Client, pollInterval, crawlTimeout time.Duration, logger *slog.Logger) *FirecrawlFetcher {
	if baseURL == "" {
		baseURL = defaultFirecrawlBaseURL
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if crawlTimeout <= 0 {
		crawlTimeout = 10 * time.Minute
	}
	return &FirecrawlFetcher{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		client:       client,
		pollInterval: pollInterval,
		crawlTimeout: crawlTimeout,
		logger:       logger,
	}
}

// Firecrawl request and response shapes.

type firecrawlScrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type firecrawlCrawlRequest struct {
	URL           string                 `json:"url"`
	Limit         int                    `json:"limit"`
	ScrapeOptions firecrawlScrapeOptions `json:"scrapeOptions"`
}

type firecrawlScrapeOptions struct {
	Formats []string `json:"formats"`
}

type firecrawlDocument struct {
	Markdown string          `json:"markdown"`
	HTML     string          `json:"html"`
	Metadata json.RawMessage `json:"metadata"`
}

type firecrawlScrapeResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Data    firecrawlDocument `json:"data"`
}

type firecrawlCrawlStartResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	ID      string `json:"id"`
}

type firecrawlCrawlStatusResponse struct {
	Status    string              `json:"status"` // scraping, completed, failed, cancelled
	Total     int                 `json:"total"`
	Completed int                 `json:"completed"`
	Data      []firecrawlDocument `json:"data"`
	Next      string              `json:"next"`
	Error     string              `json:"error"`
}

var firecrawlFormats = []string{"markdown", "html"}

// FetchSingle scrapes one page.
func (f *FirecrawlFetcher) FetchSingle(ctx context.Context, address string) (model.Page, error) {
	var resp firecrawlScrapeResponse
	err := f.do(ctx, http.MethodPost, f.baseURL+"/v1/scrape", firecrawlScrapeRequest{
		URL:     address,
		Formats: firecrawlFormats,
	}, &resp)
	if err != nil {
		return model.Page{}, fmt.Errorf("firecrawl scrape %s: %w", address, err)
	}
	if !resp.Success {
		return model.Page{}, fmt.Errorf("firecrawl scrape %s: %s", address, resp.Error)
	}
	return toPage(address, resp.Data), nil
}

// FetchMulti crawls address and pages linked from it, up to pageLimit
// pages (default 10).
func (f *FirecrawlFetcher) FetchMulti(ctx context.Context, address string, pageLimit int) ([]model.Page, error) {
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}

	var start firecrawlCrawlStartResponse
	err := f.do(ctx, http.MethodPost, f.baseURL+"/v1/crawl", firecrawlCrawlRequest{
		URL:           address,
		Limit:         pageLimit,
		ScrapeOptions: firecrawlScrapeOptions{Formats: firecrawlFormats},
	}, &start)
	if err != nil {
		return nil, fmt.Errorf("firecrawl crawl %s: %w", address, err)
	}
	if !start.Success || start.ID == "" {
		return nil, fmt.Errorf("firecrawl crawl %s: %s", address, start.Error)
	}

	f.logger.Debug("firecrawl crawl started", "url", address, "crawl_id", start.ID, "limit", pageLimit)

	ctx, cancel := context.WithTimeout(ctx, f.crawlTimeout)
	defer cancel()

	statusURL := f.baseURL + "/v1/crawl/" + start.ID
	for {
		var status firecrawlCrawlStatusResponse
		if err := f.do(ctx, http.MethodGet, statusURL, nil, &status); err != nil {
			return nil, fmt.Errorf("firecrawl crawl %s status: %w", start.ID, err)
		}

		switch status.Status {
		case "completed":
			docs, err := f.collect(ctx, status)
			if err != nil {
				return nil, fmt.Errorf("firecrawl crawl %s: %w", start.ID, err)
			}
			pages := make([]model.Page, 0, len(docs))
			for _, d := range docs {
				pages = append(pages, toPage(address, d))
			}
			return pages, nil
		case "failed", "cancelled":
			return nil, retry.Permanent(fmt.Errorf("firecrawl crawl %s %s: %s", start.ID, status.Status, status.Error))
		}

		f.logger.Debug("firecrawl crawl in progress",
			"crawl_id", start.ID,
			"completed", status.Completed,
			"total", status.Total,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("firecrawl crawl %s: %w", start.ID, ctx.Err())
		case <-time.After(f.pollInterval):
		}
	}
}

// collect follows "next" links on a completed crawl until all documents
// have been read.
func (f *FirecrawlFetcher) collect(ctx context.Context, status firecrawlCrawlStatusResponse) ([]firecrawlDocument, error) {
	docs := status.Data
	next := status.Next
	for next != "" {
		var page firecrawlCrawlStatusResponse
		if err := f.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		docs = append(docs, page.Data...)
		next = page.Next
	}
	return docs, nil
}

// do sends a JSON request and decodes a JSON response into out.
func (f *FirecrawlFetcher) do(ctx context.Context, method, url string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", userAgent)
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return statusError(resp, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// toPage converts a Firecrawl document, falling back to the requested
// address when the metadata carries no source URL.
func toPage(address string, d firecrawlDocument) model.Page {
	pageURL := address
	if len(d.Metadata) > 0 {
		var meta struct {
			SourceURL string `json:"sourceURL"`
			URL       string `json:"url"`
		}
		if json.Unmarshal(d.Metadata, &meta) == nil {
			switch {
			case meta.SourceURL != "":
				pageURL = meta.SourceURL
			case meta.URL != "":
				pageURL = meta.URL
			}
		}
	}
	return model.Page{
		URL:      pageURL,
		Content:  d.Markdown,
		HTML:     d.HTML,
		Metadata: d.Metadata,
	}
}

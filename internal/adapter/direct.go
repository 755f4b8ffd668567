package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/amishk599/jobwatch/internal/model"
)

// Ensure DirectFetcher implements model.PageFetcher.
var _ model.PageFetcher = (*DirectFetcher)(nil)

// DirectFetcher downloads career pages over plain HTTP and reduces HTML to
// text. It is used when no scraping backend is configured.
type DirectFetcher struct {
	client *http.Client
	logger *slog.Logger
	links  model.PageFetcher
}

// NewDirectFetcher returns a fetcher that GETs pages itself.
func NewDirectFetcher(client *http.Client, logger *slog.Logger) *DirectFetcher {
	return &DirectFetcher{client: client, logger: logger}
}

// FollowLinksWith routes linked-page requests made by FetchMulti through pf,
// typically the rate-limited and retrying chain wrapped around f. Without it
// linked pages are fetched directly.
func (f *DirectFetcher) FollowLinksWith(pf model.PageFetcher) {
	f.links = pf
}

type directMetadata struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	FinalURL    string `json:"final_url"`
}

// FetchSingle GETs address. HTML responses are converted to text; other
// content types are passed through unchanged.
func (f *DirectFetcher) FetchSingle(ctx context.Context, address string) (model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return model.Page{}, fmt.Errorf("create request for %s: %w", address, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return model.Page{}, fmt.Errorf("fetch %s: %w", address, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return model.Page{}, fmt.Errorf("read %s: %w", address, err)
	}
	if !isSuccess(resp.StatusCode) {
		return model.Page{}, statusError(resp, body)
	}

	contentType := resp.Header.Get("Content-Type")
	meta, _ := json.Marshal(directMetadata{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		FinalURL:    resp.Request.URL.String(),
	})

	page := model.Page{URL: address, Metadata: meta}
	if strings.Contains(contentType, "html") {
		page.HTML = string(body)
		page.Content = extractText(page.HTML)
	} else {
		page.Content = string(body)
	}
	return page, nil
}

// FetchMulti fetches address and then follows same-host links found on it
// until pageLimit pages (default 10) have been read. Linked pages that fail
// to load are logged and skipped; only a failure on address itself is
// returned.
func (f *DirectFetcher) FetchMulti(ctx context.Context, address string, pageLimit int) ([]model.Page, error) {
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}

	first, err := f.FetchSingle(ctx, address)
	if err != nil {
		return nil, err
	}
	pages := []model.Page{first}
	if first.HTML == "" || pageLimit == 1 {
		return pages, nil
	}

	base, err := url.Parse(address)
	if err != nil {
		return pages, nil
	}
	links := extractLinks(base, first.HTML)
	f.logger.Debug("direct fetcher following links", "url", address, "links", len(links), "page_limit", pageLimit)

	var follow model.PageFetcher = f
	if f.links != nil {
		follow = f.links
	}

	for _, link := range links {
		if len(pages) >= pageLimit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := follow.FetchSingle(ctx, link)
		if err != nil {
			f.logger.Warn("skipping linked page", "url", link, "error", err)
			continue
		}
		pages = append(pages, page)
	}
	return pages, nil
}

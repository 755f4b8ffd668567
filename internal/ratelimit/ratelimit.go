// Package ratelimit spaces out requests to the same upstream host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/amishk599/jobwatch/internal/model"
)

// HostRateLimiter enforces a minimum delay between requests that share a key,
// usually the upstream host name.
type HostRateLimiter struct {
	mu        sync.Mutex
	nextSlot  map[string]time.Time // key: host
	minDelay  time.Duration
	overrides map[string]time.Duration
}

// NewHostRateLimiter creates a rate limiter that enforces minDelay between
// consecutive requests with the same key. overrides may be nil.
func NewHostRateLimiter(minDelay time.Duration, overrides map[string]time.Duration) *HostRateLimiter {
	return &HostRateLimiter{
		nextSlot:  make(map[string]time.Time),
		minDelay:  minDelay,
		overrides: overrides,
	}
}

func (r *HostRateLimiter) delayFor(key string) time.Duration {
	if d, ok := r.overrides[key]; ok {
		return d
	}
	return r.minDelay
}

// Wait blocks until the caller's reserved slot for key arrives. Concurrent
// callers are handed consecutive slots, so they never fire together.
// Returns an error if the context is cancelled while waiting.
func (r *HostRateLimiter) Wait(ctx context.Context, key string) error {
	r.mu.Lock()
	now := time.Now()
	slot, ok := r.nextSlot[key]
	if !ok || slot.Before(now) {
		slot = now
	}
	r.nextSlot[key] = slot.Add(r.delayFor(key))
	r.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", key, ctx.Err())
	case <-time.After(wait):
	}
	return nil
}

// HostKey returns the lowercased host of rawURL, or rawURL itself when it
// does not parse.
func HostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}

// RateLimitedFetcher is a decorator that waits for the limiter before
// delegating to the wrapped PageFetcher. Requests are keyed by the host of
// the address being fetched.
type RateLimitedFetcher struct {
	inner   model.PageFetcher
	limiter *HostRateLimiter
}

// NewRateLimitedFetcher wraps a PageFetcher with host-level rate limiting.
func NewRateLimitedFetcher(inner model.PageFetcher, limiter *HostRateLimiter) *RateLimitedFetcher {
	return &RateLimitedFetcher{inner: inner, limiter: limiter}
}

func (f *RateLimitedFetcher) FetchSingle(ctx context.Context, address string) (model.Page, error) {
	if err := f.limiter.Wait(ctx, HostKey(address)); err != nil {
		return model.Page{}, err
	}
	return f.inner.FetchSingle(ctx, address)
}

func (f *RateLimitedFetcher) FetchMulti(ctx context.Context, address string, pageLimit int) ([]model.Page, error) {
	if err := f.limiter.Wait(ctx, HostKey(address)); err != nil {
		return nil, err
	}
	return f.inner.FetchMulti(ctx, address, pageLimit)
}

// RateLimitedWebhook spaces out posts to the same webhook host.
type RateLimitedWebhook struct {
	inner   model.WebhookPoster
	limiter *HostRateLimiter
}

// NewRateLimitedWebhook wraps a WebhookPoster with host-level rate limiting.
func NewRateLimitedWebhook(inner model.WebhookPoster, limiter *HostRateLimiter) *RateLimitedWebhook {
	return &RateLimitedWebhook{inner: inner, limiter: limiter}
}

func (w *RateLimitedWebhook) Post(ctx context.Context, url string, payload any) error {
	if err := w.limiter.Wait(ctx, HostKey(url)); err != nil {
		return err
	}
	return w.inner.Post(ctx, url, payload)
}

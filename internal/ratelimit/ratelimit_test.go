package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobwatch/internal/model"
)

func TestWait_SameHost_EnforcesMinDelay(t *testing.T) {
	limiter := NewHostRateLimiter(100*time.Millisecond, nil)
	ctx := context.Background()

	// First call should return immediately.
	if err := limiter.Wait(ctx, "api.firecrawl.dev"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "api.firecrawl.dev"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	elapsed := time.Since(start)

	// Should have waited at least ~100ms (allow 80ms for timer jitter).
	if elapsed < 80*time.Millisecond {
		t.Errorf("expected >= 80ms wait, got %v", elapsed)
	}
}

func TestWait_DifferentHosts_NoCrossBlocking(t *testing.T) {
	limiter := NewHostRateLimiter(200*time.Millisecond, nil)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "acme.example"); err != nil {
		t.Fatalf("acme wait: %v", err)
	}

	// Immediately call for another host, should NOT block.
	start := time.Now()
	if err := limiter.Wait(ctx, "globex.example"); err != nil {
		t.Fatalf("globex wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("expected globex wait to be near-instant, got %v", elapsed)
	}
}

func TestWait_OverrideApplies(t *testing.T) {
	limiter := NewHostRateLimiter(time.Hour, map[string]time.Duration{"fast.example": 0})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx, "fast.example"); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("override of 0 should not block, took %v", elapsed)
	}
}

func TestWait_ConcurrentCallersGetDistinctSlots(t *testing.T) {
	limiter := NewHostRateLimiter(60*time.Millisecond, nil)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limiter.Wait(ctx, "acme.example")
		}()
	}
	wg.Wait()

	// Slots at 0, 60ms and 120ms.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("three concurrent waits finished in %v, want >= 100ms", elapsed)
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	limiter := NewHostRateLimiter(5*time.Second, nil) // long delay
	if err := limiter.Wait(context.Background(), "acme.example"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	if err := limiter.Wait(ctx, "acme.example"); err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}

func TestHostKey(t *testing.T) {
	tests := map[string]string{
		"https://Jobs.Acme.example/careers?x=1": "jobs.acme.example",
		"http://localhost:8080/a":               "localhost",
		"not a url":                             "not a url",
	}
	for in, want := range tests {
		if got := HostKey(in); got != want {
			t.Errorf("HostKey(%q) = %q, want %q", in, got, want)
		}
	}
}

// --- Mocks for decorator tests ---

type recordingFetcher struct {
	called bool
}

func (f *recordingFetcher) FetchSingle(_ context.Context, address string) (model.Page, error) {
	f.called = true
	return model.Page{URL: address}, nil
}

func (f *recordingFetcher) FetchMulti(_ context.Context, address string, _ int) ([]model.Page, error) {
	f.called = true
	return []model.Page{{URL: address}}, nil
}

type recordingWebhook struct {
	urls []string
}

func (w *recordingWebhook) Post(_ context.Context, url string, _ any) error {
	w.urls = append(w.urls, url)
	return nil
}

func TestRateLimitedFetcher_WaitsBeforeDelegating(t *testing.T) {
	inner := &recordingFetcher{}
	limiter := NewHostRateLimiter(100*time.Millisecond, nil)
	f := NewRateLimitedFetcher(inner, limiter)

	if _, err := f.FetchSingle(context.Background(), "https://acme.example/careers"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	start := time.Now()
	if _, err := f.FetchMulti(context.Background(), "https://acme.example/other", 3); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("same-host fetch should wait, took %v", elapsed)
	}
	if !inner.called {
		t.Error("expected inner fetcher to be called")
	}
}

func TestRateLimitedFetcher_CancelledContextSkipsInner(t *testing.T) {
	inner := &recordingFetcher{}
	limiter := NewHostRateLimiter(time.Hour, nil)
	f := NewRateLimitedFetcher(inner, limiter)

	_, _ = f.FetchSingle(context.Background(), "https://acme.example")
	inner.called = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.FetchSingle(ctx, "https://acme.example"); err == nil {
		t.Fatal("expected error")
	}
	if inner.called {
		t.Error("inner fetcher should not be called after cancellation")
	}
}

func TestRateLimitedWebhook_Delegates(t *testing.T) {
	inner := &recordingWebhook{}
	w := NewRateLimitedWebhook(inner, NewHostRateLimiter(0, nil))
	if err := w.Post(context.Background(), "https://discord.example/api/webhooks/1", map[string]string{}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(inner.urls) != 1 {
		t.Errorf("inner posts = %d, want 1", len(inner.urls))
	}
}

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/jobwatch/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockingRunner counts calls and blocks each discovery until release is
// closed.
type blockingRunner struct {
	discoveries atomic.Int32
	drains      atomic.Int32
	started     chan struct{}
	release     chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan struct{}, 10),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) RunDiscovery(_ context.Context) pipeline.DiscoveryStats {
	n := r.discoveries.Add(1)
	r.started <- struct{}{}
	<-r.release
	return pipeline.DiscoveryStats{SourcesProcessed: int(n)}
}

func (r *blockingRunner) RunDrain(_ context.Context) pipeline.DrainStats {
	r.drains.Add(1)
	return pipeline.DrainStats{Entries: 1}
}

// countingRunner returns immediately.
type countingRunner struct {
	discoveries atomic.Int32
	drains      atomic.Int32
}

func (r *countingRunner) RunDiscovery(_ context.Context) pipeline.DiscoveryStats {
	r.discoveries.Add(1)
	return pipeline.DiscoveryStats{}
}

func (r *countingRunner) RunDrain(_ context.Context) pipeline.DrainStats {
	r.drains.Add(1)
	return pipeline.DrainStats{}
}

func TestTriggerDiscovery_OverlappingCallsJoin(t *testing.T) {
	runner := newBlockingRunner()
	c := New(runner, 0, 0, discardLogger())

	type result struct {
		stats  pipeline.DiscoveryStats
		shared bool
		err    error
	}
	results := make(chan result, 2)

	go func() {
		s, shared, err := c.TriggerDiscovery(context.Background())
		results <- result{s, shared, err}
	}()
	<-runner.started

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s, shared, err := c.TriggerDiscovery(context.Background())
		results <- result{s, shared, err}
	}()

	// Give the second caller time to join before the run finishes.
	time.Sleep(50 * time.Millisecond)
	close(runner.release)
	wg.Wait()

	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("TriggerDiscovery: %v", r.err)
		}
		if r.stats.SourcesProcessed != 1 {
			t.Errorf("stats = %+v, want the single run's stats", r.stats)
		}
		if !r.shared {
			t.Error("expected both callers to see a shared result")
		}
	}
	if got := runner.discoveries.Load(); got != 1 {
		t.Errorf("RunDiscovery called %d times, want 1", got)
	}
}

func TestTriggerDiscovery_SequentialCallsRunAgain(t *testing.T) {
	runner := &countingRunner{}
	c := New(runner, 0, 0, discardLogger())

	for i := 0; i < 3; i++ {
		if _, _, err := c.TriggerDiscovery(context.Background()); err != nil {
			t.Fatalf("TriggerDiscovery: %v", err)
		}
	}
	if got := runner.discoveries.Load(); got != 3 {
		t.Errorf("RunDiscovery called %d times, want 3", got)
	}
}

func TestTriggerDrain_IndependentOfDiscovery(t *testing.T) {
	runner := newBlockingRunner()
	c := New(runner, 0, 0, discardLogger())

	go c.TriggerDiscovery(context.Background())
	<-runner.started

	stats, _, err := c.TriggerDrain(context.Background())
	if err != nil {
		t.Fatalf("TriggerDrain: %v", err)
	}
	if stats.Entries != 1 {
		t.Errorf("drain stats = %+v", stats)
	}
	close(runner.release)
}

func TestTrigger_CallerContextLimitsWait(t *testing.T) {
	runner := newBlockingRunner()
	c := New(runner, 0, 0, discardLogger())
	defer close(runner.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := c.TriggerDiscovery(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestRun_ImmediateCycleThenShutdown(t *testing.T) {
	runner := &countingRunner{}
	c := New(runner, time.Hour, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for runner.drains.Load() == 0 || len(c.NextRuns()) < 2 {
		select {
		case <-deadline:
			t.Fatal("immediate cycle did not run or timers not started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	next := c.NextRuns()
	if d := time.Until(next[phaseDiscovery]); d <= 0 || d > time.Hour {
		t.Errorf("next discovery in %v, want within the hour", d)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := runner.discoveries.Load(); got != 1 {
		t.Errorf("RunDiscovery called %d times, want 1", got)
	}
}

func TestRun_DisabledTimers(t *testing.T) {
	runner := &countingRunner{}
	c := New(runner, 0, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(c.NextRuns()) != 0 {
		t.Errorf("expected no timers, got %v", c.NextRuns())
	}
}

// slowDrainRunner blocks each drain until release is closed and records
// whether the drain got to finish.
type slowDrainRunner struct {
	started  chan struct{}
	release  chan struct{}
	finished atomic.Bool
}

func (r *slowDrainRunner) RunDiscovery(_ context.Context) pipeline.DiscoveryStats {
	return pipeline.DiscoveryStats{}
}

func (r *slowDrainRunner) RunDrain(_ context.Context) pipeline.DrainStats {
	r.started <- struct{}{}
	<-r.release
	r.finished.Store(true)
	return pipeline.DrainStats{}
}

func TestRun_WaitsForInFlightRunOnShutdown(t *testing.T) {
	runner := &slowDrainRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	c := New(runner, 0, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	<-runner.started
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while the drain was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the drain finished")
	}
	if !runner.finished.Load() {
		t.Error("drain did not finish before Run returned")
	}

	if _, _, err := c.TriggerDrain(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("TriggerDrain after shutdown = %v, want ErrStopped", err)
	}
}

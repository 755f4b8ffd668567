// Package scheduler owns the phase timers and makes sure each phase runs at
// most once at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/amishk599/jobwatch/internal/pipeline"
)

// Runner executes the two pipeline phases.
type Runner interface {
	RunDiscovery(ctx context.Context) pipeline.DiscoveryStats
	RunDrain(ctx context.Context) pipeline.DrainStats
}

const (
	phaseDiscovery = "discovery"
	phaseDrain     = "drain"
)

// ErrStopped is returned by triggers once Run has begun shutting down.
var ErrStopped = errors.New("scheduler stopped")

// Coordinator fires discovery and drain on separate intervals and serves
// manual triggers. Overlapping requests for the same phase join the run in
// flight and receive its stats.
type Coordinator struct {
	runner         Runner
	discoveryEvery time.Duration
	drainEvery     time.Duration
	logger         *slog.Logger
	group          singleflight.Group
	cron           *cron.Cron

	mu       sync.Mutex
	base     context.Context
	entries  map[string]cron.EntryID
	stopping bool
	inflight sync.WaitGroup
}

// New creates a coordinator. A zero interval disables that phase's timer;
// manual triggers still work.
func New(runner Runner, discoveryEvery, drainEvery time.Duration, logger *slog.Logger) *Coordinator {
	cl := cronLogger{logger: logger}
	return &Coordinator{
		runner:         runner,
		discoveryEvery: discoveryEvery,
		drainEvery:     drainEvery,
		logger:         logger,
		cron:           cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		base:           context.Background(),
		entries:        make(map[string]cron.EntryID),
	}
}

// Run runs discovery then drain immediately, starts the timers and blocks
// until ctx is cancelled. Run then refuses new triggers and waits for runs
// in flight to finish before returning nil.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	c.base = ctx
	c.mu.Unlock()

	if err := c.schedule(phaseDiscovery, c.discoveryEvery, func() { c.TriggerDiscovery(ctx) }); err != nil {
		return err
	}
	if err := c.schedule(phaseDrain, c.drainEvery, func() { c.TriggerDrain(ctx) }); err != nil {
		return err
	}

	c.logger.Info("starting scheduler",
		"discovery_interval", c.discoveryEvery.String(),
		"drain_interval", c.drainEvery.String(),
	)

	c.TriggerDiscovery(ctx)
	c.TriggerDrain(ctx)

	c.cron.Start()
	<-ctx.Done()

	c.logger.Info("shutting down scheduler")
	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()
	<-c.cron.Stop().Done()
	c.inflight.Wait()
	return nil
}

func (c *Coordinator) schedule(phase string, every time.Duration, fn func()) error {
	if every <= 0 {
		c.logger.Info("timer disabled", "phase", phase)
		return nil
	}
	id, err := c.cron.AddFunc(fmt.Sprintf("@every %s", every), fn)
	if err != nil {
		return fmt.Errorf("cron.AddFunc(%s): %w", phase, err)
	}
	c.mu.Lock()
	c.entries[phase] = id
	c.mu.Unlock()
	return nil
}

// TriggerDiscovery runs discovery, or joins the run already in flight. The
// run itself is bound to the coordinator's lifetime, not to ctx; ctx only
// limits how long the caller waits. The bool reports whether the result was
// shared with another caller.
func (c *Coordinator) TriggerDiscovery(ctx context.Context) (pipeline.DiscoveryStats, bool, error) {
	v, shared, err := c.do(ctx, phaseDiscovery, func(runCtx context.Context) any {
		return c.runner.RunDiscovery(runCtx)
	})
	if err != nil {
		return pipeline.DiscoveryStats{}, false, err
	}
	return v.(pipeline.DiscoveryStats), shared, nil
}

// TriggerDrain runs a queue drain, or joins the one in flight.
func (c *Coordinator) TriggerDrain(ctx context.Context) (pipeline.DrainStats, bool, error) {
	v, shared, err := c.do(ctx, phaseDrain, func(runCtx context.Context) any {
		return c.runner.RunDrain(runCtx)
	})
	if err != nil {
		return pipeline.DrainStats{}, false, err
	}
	return v.(pipeline.DrainStats), shared, nil
}

func (c *Coordinator) do(ctx context.Context, phase string, run func(context.Context) any) (any, bool, error) {
	ch := c.group.DoChan(phase, func() (any, error) {
		c.mu.Lock()
		if c.stopping {
			c.mu.Unlock()
			return nil, ErrStopped
		}
		base := c.base
		c.inflight.Add(1)
		c.mu.Unlock()
		defer c.inflight.Done()

		start := time.Now()
		c.logger.Debug("phase started", "phase", phase)
		v := run(base)
		c.logger.Debug("phase finished", "phase", phase, "duration", time.Since(start).String())
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("waiting for %s: %w", phase, ctx.Err())
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	}
}

// NextRuns reports when each timer fires next. Disabled timers are absent.
func (c *Coordinator) NextRuns() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]time.Time, len(c.entries))
	for phase, id := range c.entries {
		if next := c.cron.Entry(id).Next; !next.IsZero() {
			out[phase] = next
		}
	}
	return out
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// Package pipeline runs the discovery phase (fetch, extract, admit, match,
// enqueue) and the drain phase (dispatch queued notifications).
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/amishk599/jobwatch/internal/model"
	"github.com/amishk599/jobwatch/internal/notifier"
)

// Extractor turns one raw unit into candidate postings. It never fails;
// malformed model output yields no candidates.
type Extractor interface {
	Extract(ctx context.Context, unit model.RawUnit) []model.Candidate
}

// Dispatcher delivers one queue entry over its channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, entry model.QueueEntry) (notifier.Result, error)
}

// Options bound the worker pools.
type Options struct {
	SourceWorkers int // concurrent sources during discovery, default 4
	DrainWorkers  int // concurrent queue entries during drain, default 4
}

// Pipeline owns the full discovery-to-notification flow.
type Pipeline struct {
	store         model.Store
	fetcher       model.PageFetcher
	extractor     Extractor
	dispatcher    Dispatcher
	sourceWorkers int
	drainWorkers  int
	logger        *slog.Logger
	now           func() time.Time
}

// New creates a pipeline wired with all its dependencies.
func New(
	store model.Store,
	fetcher model.PageFetcher,
	extractor Extractor,
	dispatcher Dispatcher,
	opts Options,
	logger *slog.Logger,
) *Pipeline {
	if opts.SourceWorkers <= 0 {
		opts.SourceWorkers = 4
	}
	if opts.DrainWorkers <= 0 {
		opts.DrainWorkers = 4
	}
	return &Pipeline{
		store:         store,
		fetcher:       fetcher,
		extractor:     extractor,
		dispatcher:    dispatcher,
		sourceWorkers: opts.SourceWorkers,
		drainWorkers:  opts.DrainWorkers,
		logger:        logger,
		now:           time.Now,
	}
}

// DiscoveryStats summarizes one discovery run.
type DiscoveryStats struct {
	SourcesProcessed int
	SourcesFailed    int
	Units            int
	Candidates       int
	Admitted         int
	Duplicates       int
	Enqueued         int
	Errors           int // admission or enqueue failures
}

func (s *DiscoveryStats) add(o DiscoveryStats) {
	s.SourcesProcessed += o.SourcesProcessed
	s.SourcesFailed += o.SourcesFailed
	s.Units += o.Units
	s.Candidates += o.Candidates
	s.Admitted += o.Admitted
	s.Duplicates += o.Duplicates
	s.Enqueued += o.Enqueued
	s.Errors += o.Errors
}

// LogValue implements slog.LogValuer.
func (s DiscoveryStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("sources", s.SourcesProcessed),
		slog.Int("sources_failed", s.SourcesFailed),
		slog.Int("units", s.Units),
		slog.Int("candidates", s.Candidates),
		slog.Int("admitted", s.Admitted),
		slog.Int("duplicates", s.Duplicates),
		slog.Int("enqueued", s.Enqueued),
		slog.Int("errors", s.Errors),
	)
}

// DrainStats summarizes one drain run.
type DrainStats struct {
	Entries int
	Stale   int
	Sent    int
	Failed  int
	Skipped int
	Errors  int // storage failures reported by the dispatcher
}

func (s *DrainStats) add(r notifier.Result) {
	s.Entries++
	if r.Stale {
		s.Stale++
	}
	s.Sent += r.Sent
	s.Failed += r.Failed
	s.Skipped += r.Skipped
}

// LogValue implements slog.LogValuer.
func (s DrainStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("entries", s.Entries),
		slog.Int("stale", s.Stale),
		slog.Int("sent", s.Sent),
		slog.Int("failed", s.Failed),
		slog.Int("skipped", s.Skipped),
		slog.Int("errors", s.Errors),
	)
}

package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RunDrain dispatches every pending queue entry. Entries run concurrently up
// to the drain worker limit; the channels of one entry run in order.
func (p *Pipeline) RunDrain(ctx context.Context) DrainStats {
	var stats DrainStats

	entries, err := p.store.ListQueueEntries(ctx)
	if err != nil {
		p.logger.Error("listing queue failed", "error", err)
		return stats
	}
	if len(entries) == 0 {
		p.logger.Debug("queue empty")
		return stats
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.drainWorkers)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := p.dispatcher.Dispatch(ctx, entry)
			mu.Lock()
			defer mu.Unlock()
			stats.add(res)
			if err != nil {
				stats.Errors++
				p.logger.Error("dispatch failed", "entry", entry.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("drain complete", "stats", stats)
	return stats
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobwatch/internal/identity"
	"github.com/amishk599/jobwatch/internal/matcher"
	"github.com/amishk599/jobwatch/internal/model"
)

// RunDiscovery processes every active source once. Sources run concurrently
// up to the source worker limit; a failing source is logged and counted and
// never stops the others.
func (p *Pipeline) RunDiscovery(ctx context.Context) DiscoveryStats {
	var stats DiscoveryStats

	sources, err := p.store.GetActiveSources(ctx)
	if err != nil {
		p.logger.Error("loading sources failed", "error", err)
		return stats
	}
	subs, err := p.store.GetActiveSubscribers(ctx)
	if err != nil {
		p.logger.Error("loading subscribers failed", "error", err)
		return stats
	}

	p.logger.Info("discovery started", "sources", len(sources), "subscribers", len(subs))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.sourceWorkers)

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			s, err := p.processSource(ctx, src, subs)
			if err != nil {
				s.SourcesFailed++
				p.logger.Error("source failed", "source", src.Name, "address", src.Address, "error", err)
			} else {
				s.SourcesProcessed++
			}
			mu.Lock()
			stats.add(s)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("discovery complete", "stats", stats)
	return stats
}

// processSource runs fetch, extract and admit for one source. Only a fetch
// failure is returned; per-candidate failures are counted in the stats.
func (p *Pipeline) processSource(ctx context.Context, src model.Source, subs []model.Subscriber) (DiscoveryStats, error) {
	var stats DiscoveryStats

	pages, err := p.fetch(ctx, src)
	if err != nil {
		return stats, err
	}

	fetchedAt := p.now()
	if err := p.store.TouchSource(ctx, src.ID, fetchedAt); err != nil {
		p.logger.Warn("updating last fetched failed", "source", src.Name, "error", err)
	}

	for _, unit := range rawUnits(src, pages, fetchedAt) {
		stats.Units++

		candidates := p.extractor.Extract(ctx, unit)
		stats.Candidates += len(candidates)

		for _, c := range candidates {
			posting, err := p.Admit(ctx, c)
			if err != nil {
				stats.Errors++
				p.logger.Error("admission failed", "source", src.Name, "title", c.Title, "error", err)
				continue
			}
			if posting == nil {
				stats.Duplicates++
				continue
			}
			stats.Admitted++

			n, failed, err := p.enqueue(ctx, posting, subs)
			stats.Enqueued += n
			if err != nil {
				stats.Errors += failed
				p.logger.Error("enqueue failed", "source", src.Name, "title", posting.Title, "failed", failed, "error", err)
			}
		}
	}

	p.logger.Info("processed source",
		"source", src.Name,
		"units", stats.Units,
		"candidates", stats.Candidates,
		"new", stats.Admitted,
	)
	return stats, nil
}

// Preview fetches and extracts one source without touching storage. It
// backs the check command.
func (p *Pipeline) Preview(ctx context.Context, src model.Source) ([]model.Candidate, error) {
	pages, err := p.fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	var out []model.Candidate
	for _, unit := range rawUnits(src, pages, p.now()) {
		out = append(out, p.extractor.Extract(ctx, unit)...)
	}
	return out, nil
}

// rawUnits wraps fetched pages for extraction. A page without a URL takes
// the source address.
func rawUnits(src model.Source, pages []model.Page, fetchedAt time.Time) []model.RawUnit {
	units := make([]model.RawUnit, 0, len(pages))
	for _, page := range pages {
		unit := model.RawUnit{
			SourceID:  src.ID,
			Company:   src.Name,
			URL:       page.URL,
			Content:   page.Content,
			HTML:      page.HTML,
			Metadata:  page.Metadata,
			FetchedAt: fetchedAt,
		}
		if unit.URL == "" {
			unit.URL = src.Address
		}
		units = append(units, unit)
	}
	return units
}

func (p *Pipeline) fetch(ctx context.Context, src model.Source) ([]model.Page, error) {
	if src.MultiPage {
		pages, err := p.fetcher.FetchMulti(ctx, src.Address, src.PageLimit)
		if err != nil {
			return nil, &model.TransportError{Transport: "fetch", Err: err}
		}
		return pages, nil
	}
	page, err := p.fetcher.FetchSingle(ctx, src.Address)
	if err != nil {
		return nil, &model.TransportError{Transport: "fetch", Err: err}
	}
	return []model.Page{page}, nil
}

// Admit persists a candidate unless its identity key is already known. It
// returns the new posting, or nil when the posting was seen before, in which
// case only its last-seen time is refreshed.
func (p *Pipeline) Admit(ctx context.Context, c model.Candidate) (*model.Posting, error) {
	key := identity.Key(c.SourceID, c.URL, c.Title)
	now := p.now()

	_, err := p.store.GetPostingByKey(ctx, key)
	switch {
	case err == nil:
		return nil, p.touch(ctx, key, now)
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("looking up posting: %w", err)
	}

	posting := &model.Posting{
		SourceID:        c.SourceID,
		Company:         c.Company,
		DedupKey:        key,
		Title:           c.Title,
		Location:        c.Location,
		JobType:         c.JobType,
		ExperienceLevel: c.ExperienceLevel,
		Description:     c.Description,
		Requirements:    c.Requirements,
		URL:             c.URL,
		Raw:             c.Raw,
		NormalizedAt:    now,
		FirstSeenAt:     now,
		LastSeenAt:      now,
		Active:          true,
	}
	err = p.store.InsertPosting(ctx, posting)
	if errors.Is(err, model.ErrDuplicateKey) {
		// Lost a race with another worker admitting the same key.
		return nil, p.touch(ctx, key, now)
	}
	if err != nil {
		return nil, fmt.Errorf("inserting posting: %w", err)
	}
	return posting, nil
}

func (p *Pipeline) touch(ctx context.Context, key string, now time.Time) error {
	if err := p.store.TouchPosting(ctx, key, now); err != nil {
		return fmt.Errorf("touching posting: %w", err)
	}
	return nil
}

// enqueue creates one queue entry per matching subscriber. A failed insert
// does not stop the remaining subscribers; it returns how many entries were
// created, how many failed and the joined insert errors.
func (p *Pipeline) enqueue(ctx context.Context, posting *model.Posting, subs []model.Subscriber) (int, int, error) {
	recipients := matcher.FindRecipients(*posting, subs)
	n := 0
	var errs []error
	for _, sub := range recipients {
		channels := sub.Channels
		if len(channels) == 0 {
			channels = model.DefaultChannels
		}
		entry := &model.QueueEntry{
			SubscriberID: sub.ID,
			PostingID:    posting.ID,
			Channels:     channels,
			EnqueuedAt:   p.now(),
		}
		if err := p.store.InsertQueueEntry(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("enqueue for %s: %w", sub.Email, err))
			continue
		}
		n++
	}
	return n, len(errs), errors.Join(errs...)
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobwatch/internal/model"
)

// MemoryStore keeps everything in process memory. It backs dry runs, where
// nothing should outlive the process, and tests.
type MemoryStore struct {
	mu          sync.Mutex
	sources     map[string]model.Source
	postings    map[string]*model.Posting // by id
	byKey       map[string]string         // dedup key -> posting id
	subscribers map[string]model.Subscriber
	queue       map[string]model.QueueEntry
	records     []model.NotificationRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sources:     make(map[string]model.Source),
		postings:    make(map[string]*model.Posting),
		byKey:       make(map[string]string),
		subscribers: make(map[string]model.Subscriber),
		queue:       make(map[string]model.QueueEntry),
	}
}

func (m *MemoryStore) GetActiveSources(_ context.Context) ([]model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Source
	for _, s := range m.sources {
		if s.Active {
			out = append(out, s)
		}
	}
	sortSources(out)
	return out, nil
}

func (m *MemoryStore) ListSources(_ context.Context) ([]model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	sortSources(out)
	return out, nil
}

func (m *MemoryStore) TouchSource(_ context.Context, id string, fetchedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return nil
	}
	t := fetchedAt
	s.LastFetchedAt = &t
	m.sources[id] = s
	return nil
}

func (m *MemoryStore) UpsertSource(_ context.Context, src *model.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.sources {
		if existing.Address == src.Address {
			src.ID = id
			src.LastFetchedAt = existing.LastFetchedAt
		}
	}
	if src.ID == "" {
		src.ID = SourceID(src.Address)
	}
	m.sources[src.ID] = *src
	return nil
}

func (m *MemoryStore) GetPostingByKey(_ context.Context, key string) (*model.Posting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	p := *m.postings[id]
	return &p, nil
}

func (m *MemoryStore) GetPosting(_ context.Context, id string) (*model.Posting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.postings[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) InsertPosting(_ context.Context, p *model.Posting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[p.DedupKey]; ok {
		return model.ErrDuplicateKey
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	m.postings[cp.ID] = &cp
	m.byKey[cp.DedupKey] = cp.ID
	return nil
}

func (m *MemoryStore) TouchPosting(_ context.Context, key string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[key]
	if !ok {
		return model.ErrNotFound
	}
	p := m.postings[id]
	p.LastSeenAt = seenAt
	p.Active = true
	return nil
}

// ListPostings returns postings newest first.
func (m *MemoryStore) ListPostings(_ context.Context, limit int) ([]model.Posting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Posting, 0, len(m.postings))
	for _, p := range m.postings {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeenAt.After(out[j].FirstSeenAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetActiveSubscribers(_ context.Context) ([]model.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscriber
	for _, s := range m.subscribers {
		if s.Active {
			out = append(out, s)
		}
	}
	sortSubscribers(out)
	return out, nil
}

func (m *MemoryStore) ListSubscribers(_ context.Context) ([]model.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subscriber, 0, len(m.subscribers))
	for _, s := range m.subscribers {
		out = append(out, s)
	}
	sortSubscribers(out)
	return out, nil
}

func (m *MemoryStore) GetSubscriber(_ context.Context, id string) (*model.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) UpsertSubscriber(_ context.Context, sub *model.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.subscribers {
		if existing.Email == sub.Email {
			sub.ID = id
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if len(sub.Channels) == 0 {
		sub.Channels = model.DefaultChannels
	}
	m.subscribers[sub.ID] = *sub
	return nil
}

// DeleteSubscriber removes a subscriber. Used by tests to simulate a
// subscriber disappearing between discovery and drain.
func (m *MemoryStore) DeleteSubscriber(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, id)
}

func (m *MemoryStore) InsertQueueEntry(_ context.Context, e *model.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.queue[e.ID] = *e
	return nil
}

func (m *MemoryStore) ListQueueEntries(_ context.Context) ([]model.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.QueueEntry, 0, len(m.queue))
	for _, e := range m.queue {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) DeleteQueueEntry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queue, id)
	return nil
}

func (m *MemoryStore) InsertNotificationRecord(_ context.Context, r *model.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.records = append(m.records, *r)
	return nil
}

// ListNotificationRecords returns matching records, newest first.
func (m *MemoryStore) ListNotificationRecords(_ context.Context, f RecordFilter) ([]model.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]model.NotificationRecord, len(m.records))
	copy(recs, m.records)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })

	var out []model.NotificationRecord
	for _, r := range recs {
		if f.SubscriberID != "" && r.SubscriberID != f.SubscriberID {
			continue
		}
		if f.PostingID != "" && r.PostingID != f.PostingID {
			continue
		}
		if f.Channel != "" && r.Channel != f.Channel {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func sortSources(s []model.Source) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Name != s[j].Name {
			return s[i].Name < s[j].Name
		}
		return s[i].Address < s[j].Address
	})
}

func sortSubscribers(s []model.Subscriber) {
	sort.Slice(s, func(i, j int) bool { return s[i].Email < s[j].Email })
}

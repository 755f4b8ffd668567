package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amishk599/jobwatch/internal/model"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), DriverSQLite, dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns every Backend under test. Postgres is included when
// JOBWATCH_TEST_POSTGRES_URL points at a scratch database.
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	out := map[string]Backend{
		"sqlite": newTestStore(t),
		"memory": NewMemoryStore(),
	}
	if url := os.Getenv("JOBWATCH_TEST_POSTGRES_URL"); url != "" {
		pg, err := Open(context.Background(), DriverPostgres, url)
		if err != nil {
			t.Fatalf("Open postgres: %v", err)
		}
		for _, table := range []string{"notification_records", "notification_queue", "subscribers", "postings", "sources"} {
			if _, err := pg.db.Exec("DELETE FROM " + table); err != nil {
				t.Fatalf("clearing %s: %v", table, err)
			}
		}
		t.Cleanup(func() { pg.Close() })
		out["postgres"] = pg
	}
	return out
}

func strPtr(s string) *string { return &s }

func samplePosting(key string) *model.Posting {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.Posting{
		SourceID:     "src-1",
		Company:      "Acme",
		DedupKey:     key,
		Title:        "Backend Engineer",
		Location:     strPtr("Remote"),
		URL:          "https://acme.example/jobs/1",
		Raw:          model.RawUnit{SourceID: "src-1", URL: "https://acme.example/careers", Content: "We are hiring"},
		NormalizedAt: now,
		FirstSeenAt:  now,
		LastSeenAt:   now,
		Active:       true,
	}
}

func TestInsertPostingThenGetByKey(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := samplePosting("key-1")
			if err := s.InsertPosting(ctx, p); err != nil {
				t.Fatalf("InsertPosting: %v", err)
			}
			if p.ID == "" {
				t.Fatal("expected id to be assigned")
			}

			got, err := s.GetPostingByKey(ctx, "key-1")
			if err != nil {
				t.Fatalf("GetPostingByKey: %v", err)
			}
			if got.ID != p.ID || got.Title != "Backend Engineer" {
				t.Errorf("got %+v", got)
			}
			if got.Location == nil || *got.Location != "Remote" {
				t.Errorf("Location = %v, want Remote", got.Location)
			}
			if got.JobType != nil {
				t.Errorf("JobType = %v, want nil", *got.JobType)
			}
			if got.Raw.Content != "We are hiring" {
				t.Errorf("raw payload not preserved: %+v", got.Raw)
			}
			if !got.FirstSeenAt.Equal(p.FirstSeenAt) {
				t.Errorf("FirstSeenAt = %v, want %v", got.FirstSeenAt, p.FirstSeenAt)
			}
		})
	}
}

func TestInsertPostingDuplicateKey(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.InsertPosting(ctx, samplePosting("dup")); err != nil {
				t.Fatalf("first InsertPosting: %v", err)
			}
			second := samplePosting("dup")
			second.Title = "Changed"
			err := s.InsertPosting(ctx, second)
			if !errors.Is(err, model.ErrDuplicateKey) {
				t.Fatalf("second InsertPosting err = %v, want ErrDuplicateKey", err)
			}
			got, err := s.GetPostingByKey(ctx, "dup")
			if err != nil {
				t.Fatalf("GetPostingByKey: %v", err)
			}
			if got.Title != "Backend Engineer" {
				t.Errorf("existing posting was modified: title %q", got.Title)
			}
		})
	}
}

func TestGetPostingNotFound(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.GetPostingByKey(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("GetPostingByKey err = %v, want ErrNotFound", err)
			}
			if _, err := s.GetPosting(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("GetPosting err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestTouchPostingOnlyUpdatesLastSeen(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := samplePosting("touch")
			p.Active = false
			if err := s.InsertPosting(ctx, p); err != nil {
				t.Fatalf("InsertPosting: %v", err)
			}
			later := p.LastSeenAt.Add(6 * time.Hour)
			if err := s.TouchPosting(ctx, "touch", later); err != nil {
				t.Fatalf("TouchPosting: %v", err)
			}
			got, err := s.GetPosting(ctx, p.ID)
			if err != nil {
				t.Fatalf("GetPosting: %v", err)
			}
			if !got.LastSeenAt.Equal(later) {
				t.Errorf("LastSeenAt = %v, want %v", got.LastSeenAt, later)
			}
			if !got.FirstSeenAt.Equal(p.FirstSeenAt) {
				t.Errorf("FirstSeenAt changed to %v", got.FirstSeenAt)
			}
			if !got.Active {
				t.Error("expected posting to be re-activated")
			}
			if err := s.TouchPosting(ctx, "missing", later); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("TouchPosting(missing) err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestUpsertSourceByAddress(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			src := &model.Source{Name: "Acme", Address: "https://acme.example/careers", Active: true}
			if err := s.UpsertSource(ctx, src); err != nil {
				t.Fatalf("UpsertSource: %v", err)
			}
			firstID := src.ID

			again := &model.Source{Name: "Acme Corp", Address: "https://acme.example/careers", Active: false}
			if err := s.UpsertSource(ctx, again); err != nil {
				t.Fatalf("second UpsertSource: %v", err)
			}
			if again.ID != firstID {
				t.Errorf("id changed on upsert: %s -> %s", firstID, again.ID)
			}

			all, err := s.ListSources(ctx)
			if err != nil {
				t.Fatalf("ListSources: %v", err)
			}
			if len(all) != 1 || all[0].Name != "Acme Corp" {
				t.Fatalf("ListSources = %+v", all)
			}
			active, err := s.GetActiveSources(ctx)
			if err != nil {
				t.Fatalf("GetActiveSources: %v", err)
			}
			if len(active) != 0 {
				t.Errorf("expected no active sources, got %d", len(active))
			}
		})
	}
}

func TestTouchSourceSetsLastFetched(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			src := &model.Source{Name: "Acme", Address: "https://acme.example/careers", Active: true}
			if err := s.UpsertSource(ctx, src); err != nil {
				t.Fatalf("UpsertSource: %v", err)
			}
			at := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
			if err := s.TouchSource(ctx, src.ID, at); err != nil {
				t.Fatalf("TouchSource: %v", err)
			}
			got, err := s.GetActiveSources(ctx)
			if err != nil {
				t.Fatalf("GetActiveSources: %v", err)
			}
			if len(got) != 1 || got[0].LastFetchedAt == nil || !got[0].LastFetchedAt.Equal(at) {
				t.Errorf("GetActiveSources = %+v", got)
			}
		})
	}
}

func TestUpsertSubscriberRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sub := &model.Subscriber{
				Email:       "dev@example.com",
				WebhookURL:  "https://hooks.example/abc",
				Preferences: model.PreferenceFilter{Locations: []string{"Remote"}, JobTypes: []string{"Full-time"}},
				Channels:    []model.Channel{model.ChannelEmail, model.ChannelWebhook},
				Active:      true,
			}
			if err := s.UpsertSubscriber(ctx, sub); err != nil {
				t.Fatalf("UpsertSubscriber: %v", err)
			}
			got, err := s.GetSubscriber(ctx, sub.ID)
			if err != nil {
				t.Fatalf("GetSubscriber: %v", err)
			}
			if got.Email != sub.Email || got.WebhookURL != sub.WebhookURL {
				t.Errorf("got %+v", got)
			}
			if len(got.Preferences.Locations) != 1 || got.Preferences.Locations[0] != "Remote" {
				t.Errorf("Preferences = %+v", got.Preferences)
			}
			if len(got.Channels) != 2 || got.Channels[1] != model.ChannelWebhook {
				t.Errorf("Channels = %v", got.Channels)
			}
			if _, err := s.GetSubscriber(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("GetSubscriber(missing) err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestUpsertSubscriberDefaultsChannels(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sub := &model.Subscriber{Email: "plain@example.com", Active: true}
			if err := s.UpsertSubscriber(ctx, sub); err != nil {
				t.Fatalf("UpsertSubscriber: %v", err)
			}
			subs, err := s.GetActiveSubscribers(ctx)
			if err != nil {
				t.Fatalf("GetActiveSubscribers: %v", err)
			}
			if len(subs) != 1 || len(subs[0].Channels) != 1 || subs[0].Channels[0] != model.ChannelEmail {
				t.Errorf("GetActiveSubscribers = %+v", subs)
			}
		})
	}
}

func TestQueueInsertListDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
			second := &model.QueueEntry{SubscriberID: "s1", PostingID: "p2", Channels: []model.Channel{model.ChannelInApp}, EnqueuedAt: base.Add(time.Minute)}
			first := &model.QueueEntry{SubscriberID: "s1", PostingID: "p1", Channels: []model.Channel{model.ChannelEmail}, EnqueuedAt: base}
			for _, e := range []*model.QueueEntry{second, first} {
				if err := s.InsertQueueEntry(ctx, e); err != nil {
					t.Fatalf("InsertQueueEntry: %v", err)
				}
			}

			entries, err := s.ListQueueEntries(ctx)
			if err != nil {
				t.Fatalf("ListQueueEntries: %v", err)
			}
			if len(entries) != 2 || entries[0].ID != first.ID || entries[1].ID != second.ID {
				t.Fatalf("ListQueueEntries order = %+v", entries)
			}
			if entries[1].Channels[0] != model.ChannelInApp {
				t.Errorf("Channels = %v", entries[1].Channels)
			}

			if err := s.DeleteQueueEntry(ctx, first.ID); err != nil {
				t.Fatalf("DeleteQueueEntry: %v", err)
			}
			if err := s.DeleteQueueEntry(ctx, first.ID); err != nil {
				t.Fatalf("second DeleteQueueEntry: %v", err)
			}
			entries, err = s.ListQueueEntries(ctx)
			if err != nil {
				t.Fatalf("ListQueueEntries: %v", err)
			}
			if len(entries) != 1 {
				t.Errorf("expected 1 entry left, got %d", len(entries))
			}
		})
	}
}

func TestNotificationRecordsFilterAndOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
			sent := base
			recs := []*model.NotificationRecord{
				{SubscriberID: "s1", PostingID: "p1", Channel: model.ChannelEmail, Status: model.StatusSent, SentAt: &sent, CreatedAt: base},
				{SubscriberID: "s1", PostingID: "p1", Channel: model.ChannelWebhook, Status: model.StatusFailed, ErrorDetail: "HTTP 500", CreatedAt: base.Add(time.Second)},
				{SubscriberID: "s2", PostingID: "p1", Channel: model.ChannelInApp, Status: model.StatusSent, SentAt: &sent, CreatedAt: base.Add(2 * time.Second)},
			}
			for _, r := range recs {
				if err := s.InsertNotificationRecord(ctx, r); err != nil {
					t.Fatalf("InsertNotificationRecord: %v", err)
				}
			}

			all, err := s.ListNotificationRecords(ctx, RecordFilter{})
			if err != nil {
				t.Fatalf("ListNotificationRecords: %v", err)
			}
			if len(all) != 3 || all[0].Channel != model.ChannelInApp {
				t.Fatalf("expected newest first, got %+v", all)
			}

			failed, err := s.ListNotificationRecords(ctx, RecordFilter{SubscriberID: "s1", Status: model.StatusFailed})
			if err != nil {
				t.Fatalf("ListNotificationRecords: %v", err)
			}
			if len(failed) != 1 || failed[0].ErrorDetail != "HTTP 500" || failed[0].SentAt != nil {
				t.Errorf("failed records = %+v", failed)
			}

			limited, err := s.ListNotificationRecords(ctx, RecordFilter{Limit: 1})
			if err != nil {
				t.Fatalf("ListNotificationRecords: %v", err)
			}
			if len(limited) != 1 {
				t.Errorf("expected 1 record, got %d", len(limited))
			}
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", "x"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRebindPostgres(t *testing.T) {
	s := &SQLStore{driver: DriverPostgres}
	got := s.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	if got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("rebind = %q", got)
	}
	lite := &SQLStore{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestSourceIDStable(t *testing.T) {
	if SourceID("https://a.example") != SourceID("https://a.example") {
		t.Error("SourceID not stable")
	}
	if SourceID("https://a.example") == SourceID("https://b.example") {
		t.Error("SourceID collided")
	}
}

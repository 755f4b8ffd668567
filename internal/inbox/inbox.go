// Package inbox renders a subscriber's in-app notifications in a terminal UI.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/jobwatch/internal/model"
	"github.com/amishk599/jobwatch/internal/store"
)

// Item is one in-app notification with the posting it refers to. Posting is
// nil when the posting can no longer be resolved.
type Item struct {
	RecordID  string
	Title     string
	Company   string
	Location  string
	URL       string
	Status    model.NotificationStatus
	CreatedAt time.Time
	Posting   *model.Posting
}

// Reader is the storage surface the inbox needs.
type Reader interface {
	ListNotificationRecords(ctx context.Context, f store.RecordFilter) ([]model.NotificationRecord, error)
	GetPosting(ctx context.Context, id string) (*model.Posting, error)
}

// Load returns the newest in-app notifications for subscriberID.
func Load(ctx context.Context, r Reader, subscriberID string, limit int) ([]Item, error) {
	recs, err := r.ListNotificationRecords(ctx, store.RecordFilter{
		SubscriberID: subscriberID,
		Channel:      model.ChannelInApp,
		Limit:        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("loading inbox: %w", err)
	}

	postings := make(map[string]*model.Posting)
	items := make([]Item, 0, len(recs))
	for _, rec := range recs {
		p, ok := postings[rec.PostingID]
		if !ok {
			p, err = r.GetPosting(ctx, rec.PostingID)
			if err != nil && !errors.Is(err, model.ErrNotFound) {
				return nil, fmt.Errorf("loading posting %s: %w", rec.PostingID, err)
			}
			postings[rec.PostingID] = p
		}

		item := Item{
			RecordID:  rec.ID,
			Status:    rec.Status,
			CreatedAt: rec.CreatedAt,
			Posting:   p,
			Title:     "(posting removed)",
		}
		if p != nil {
			item.Title = p.Title
			item.Company = p.Company
			item.URL = p.URL
			if p.Location != nil {
				item.Location = *p.Location
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// FromEvent converts a live event into an inbox item. The posting body is
// not carried on the event, so Posting stays nil.
func FromEvent(ev model.InAppEvent) Item {
	return Item{
		RecordID:  ev.RecordID,
		Title:     ev.Title,
		Company:   ev.Company,
		URL:       ev.URL,
		Status:    model.StatusSent,
		CreatedAt: ev.CreatedAt,
	}
}

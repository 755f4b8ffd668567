package model

import (
	"context"
	"encoding/json"
	"time"
)

// Page is one document returned by a PageFetcher.
type Page struct {
	URL      string
	Content  string          // markdown or plain text
	HTML     string          // optional
	Metadata json.RawMessage // optional, backend-specific
}

// PageFetcher retrieves career page content from a scraping backend.
type PageFetcher interface {
	FetchSingle(ctx context.Context, address string) (Page, error)
	FetchMulti(ctx context.Context, address string, pageLimit int) ([]Page, error)
}

// CompletionProvider sends one system/user prompt pair to a text model and
// returns the raw response text. No conversation state is kept.
type CompletionProvider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// MailMessage is a rendered HTML email.
type MailMessage struct {
	To      string
	From    string
	Subject string
	HTML    string
}

// Mailer delivers rendered email.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// WebhookPoster posts a JSON payload to a subscriber's webhook URL. A
// non-2xx response is returned as *HTTPError.
type WebhookPoster interface {
	Post(ctx context.Context, url string, payload any) error
}

// InAppEvent is published when an in-app notification is recorded so live
// display surfaces can refresh without polling the record log.
type InAppEvent struct {
	RecordID     string    `json:"record_id"`
	SubscriberID string    `json:"subscriber_id"`
	PostingID    string    `json:"posting_id"`
	Title        string    `json:"title"`
	Company      string    `json:"company"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventPublisher fans in-app events out to listeners. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev InAppEvent) error
}

// SourceStore reads and updates monitored sources.
type SourceStore interface {
	GetActiveSources(ctx context.Context) ([]Source, error)
	TouchSource(ctx context.Context, id string, fetchedAt time.Time) error
}

// PostingStore persists deduplicated postings.
type PostingStore interface {
	GetPostingByKey(ctx context.Context, key string) (*Posting, error)
	InsertPosting(ctx context.Context, p *Posting) error
	TouchPosting(ctx context.Context, key string, seenAt time.Time) error
	GetPosting(ctx context.Context, id string) (*Posting, error)
}

// SubscriberStore reads notification recipients.
type SubscriberStore interface {
	GetActiveSubscribers(ctx context.Context) ([]Subscriber, error)
	GetSubscriber(ctx context.Context, id string) (*Subscriber, error)
}

// QueueStore holds pending delivery obligations.
type QueueStore interface {
	InsertQueueEntry(ctx context.Context, e *QueueEntry) error
	ListQueueEntries(ctx context.Context) ([]QueueEntry, error)
	DeleteQueueEntry(ctx context.Context, id string) error
}

// RecordStore appends to the notification audit log.
type RecordStore interface {
	InsertNotificationRecord(ctx context.Context, r *NotificationRecord) error
}

// Store is the full storage contract used by the pipeline.
type Store interface {
	SourceStore
	PostingStore
	SubscriberStore
	QueueStore
	RecordStore
}

package model

import (
	"encoding/json"
	"time"
)

// Source is a monitored career page.
type Source struct {
	ID            string
	Name          string // company name, copied onto postings
	Address       string // career page URL, unique
	MultiPage     bool   // crawl linked pages instead of scraping one
	PageLimit     int    // max pages per crawl when MultiPage is set
	Active        bool
	LastFetchedAt *time.Time
}

// RawUnit is one fetched page handed to the extractor. It is persisted
// verbatim as the raw payload of every posting extracted from it.
type RawUnit struct {
	SourceID  string          `json:"source_id"`
	Company   string          `json:"company"`
	URL       string          `json:"url"`
	Content   string          `json:"content"`            // markdown or plain text
	HTML      string          `json:"html,omitempty"`     // original markup when the backend returns it
	Metadata  json.RawMessage `json:"metadata,omitempty"` // backend-specific, kept opaque
	FetchedAt time.Time       `json:"fetched_at"`
}

// Candidate is a posting extracted from a RawUnit that has not yet passed
// the admission gate.
type Candidate struct {
	SourceID        string
	Company         string
	Title           string
	Location        *string
	JobType         *string
	ExperienceLevel *string
	Description     *string
	Requirements    *string
	URL             string
	Raw             RawUnit
}

// Posting is a deduplicated job listing. Fields other than LastSeenAt and
// Active keep the values from the first sighting.
type Posting struct {
	ID              string
	SourceID        string
	Company         string
	DedupKey        string
	Title           string
	Location        *string
	JobType         *string
	ExperienceLevel *string
	Description     *string
	Requirements    *string
	URL             string
	Raw             RawUnit
	NormalizedAt    time.Time
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
	Active          bool
}

// PreferenceFilter constrains which postings a subscriber hears about.
// An empty list places no constraint on its dimension.
type PreferenceFilter struct {
	Locations        []string `json:"locations,omitempty"`
	JobTypes         []string `json:"job_types,omitempty"`
	ExperienceLevels []string `json:"experience_levels,omitempty"`
	SourceIDs        []string `json:"source_ids,omitempty"`
}

// IsEmpty reports whether the filter places no constraints at all.
func (f PreferenceFilter) IsEmpty() bool {
	return len(f.Locations) == 0 &&
		len(f.JobTypes) == 0 &&
		len(f.ExperienceLevels) == 0 &&
		len(f.SourceIDs) == 0
}

// Subscriber is a notification recipient.
type Subscriber struct {
	ID          string
	Email       string
	WebhookURL  string // empty when not configured
	Preferences PreferenceFilter
	Channels    []Channel
	Active      bool
}

// QueueEntry is a pending delivery obligation for one subscriber and posting.
type QueueEntry struct {
	ID           string
	SubscriberID string
	PostingID    string
	Channels     []Channel
	EnqueuedAt   time.Time
}

// NotificationStatus is the outcome of one channel attempt.
type NotificationStatus string

const (
	StatusSent   NotificationStatus = "sent"
	StatusFailed NotificationStatus = "failed"
)

// NotificationRecord is an append-only audit entry for one channel attempt.
type NotificationRecord struct {
	ID           string
	SubscriberID string
	PostingID    string
	Channel      Channel
	Status       NotificationStatus
	SentAt       *time.Time
	ErrorDetail  string
	CreatedAt    time.Time
}

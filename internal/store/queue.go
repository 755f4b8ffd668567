package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/amishk599/jobwatch/internal/model"
)

// InsertQueueEntry enqueues a delivery obligation and assigns its id when
// empty.
func (s *SQLStore) InsertQueueEntry(ctx context.Context, e *model.QueueEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.exec(ctx, `
		INSERT INTO notification_queue (id, subscriber_id, posting_id, channels, enqueued_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.SubscriberID, e.PostingID, model.JoinChannels(e.Channels), formatTime(e.EnqueuedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting queue entry: %w", err)
	}
	return nil
}

// ListQueueEntries returns all pending entries, oldest first.
func (s *SQLStore) ListQueueEntries(ctx context.Context) ([]model.QueueEntry, error) {
	rows, err := s.query(ctx, `
		SELECT id, subscriber_id, posting_id, channels, enqueued_at
		FROM notification_queue
		ORDER BY enqueued_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing queue entries: %w", err)
	}
	defer rows.Close()

	var out []model.QueueEntry
	for rows.Next() {
		var (
			e                    model.QueueEntry
			channels, enqueuedAt string
		)
		if err := rows.Scan(&e.ID, &e.SubscriberID, &e.PostingID, &channels, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("scanning queue entry: %w", err)
		}
		e.Channels = model.SplitChannels(channels)
		if e.EnqueuedAt, err = parseTime(enqueuedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteQueueEntry removes an entry. Deleting a missing entry is not an
// error.
func (s *SQLStore) DeleteQueueEntry(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM notification_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting queue entry %s: %w", id, err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/amishk599/jobwatch/internal/model"
)

// InsertNotificationRecord appends to the audit log and assigns the id
// when empty.
func (s *SQLStore) InsertNotificationRecord(ctx context.Context, r *model.NotificationRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.exec(ctx, `
		INSERT INTO notification_records (id, subscriber_id, posting_id, channel, status, sent_at, error_detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SubscriberID, r.PostingID, string(r.Channel), string(r.Status),
		formatTimePtr(r.SentAt), r.ErrorDetail, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting notification record: %w", err)
	}
	return nil
}

// RecordFilter narrows ListNotificationRecords. Zero fields match all.
type RecordFilter struct {
	SubscriberID string
	PostingID    string
	Channel      model.Channel
	Status       model.NotificationStatus
	Limit        int // default 100
}

// ListNotificationRecords returns matching records, newest first.
func (s *SQLStore) ListNotificationRecords(ctx context.Context, f RecordFilter) ([]model.NotificationRecord, error) {
	var (
		conds []string
		args  []any
	)
	if f.SubscriberID != "" {
		conds = append(conds, "subscriber_id = ?")
		args = append(args, f.SubscriberID)
	}
	if f.PostingID != "" {
		conds = append(conds, "posting_id = ?")
		args = append(args, f.PostingID)
	}
	if f.Channel != "" {
		conds = append(conds, "channel = ?")
		args = append(args, string(f.Channel))
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT id, subscriber_id, posting_id, channel, status, sent_at, error_detail, created_at FROM notification_records`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notification records: %w", err)
	}
	defer rows.Close()

	var out []model.NotificationRecord
	for rows.Next() {
		var (
			r               model.NotificationRecord
			channel, status string
			sentAt          sql.NullString
			createdAt       string
		)
		if err := rows.Scan(&r.ID, &r.SubscriberID, &r.PostingID, &channel, &status, &sentAt, &r.ErrorDetail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning notification record: %w", err)
		}
		r.Channel = model.Channel(channel)
		r.Status = model.NotificationStatus(status)
		if r.SentAt, err = parseTimePtr(sentAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

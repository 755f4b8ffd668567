package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobwatch/internal/model"
)

const subscriberColumns = `id, email, webhook_url, preferences, channels, active`

func scanSubscriber(r rowScanner) (*model.Subscriber, error) {
	var (
		sub          model.Subscriber
		prefs, chans string
		active       int
	)
	if err := r.Scan(&sub.ID, &sub.Email, &sub.WebhookURL, &prefs, &chans, &active); err != nil {
		return nil, err
	}
	if prefs != "" {
		if err := json.Unmarshal([]byte(prefs), &sub.Preferences); err != nil {
			return nil, fmt.Errorf("decoding preferences of subscriber %s: %w", sub.ID, err)
		}
	}
	sub.Channels = model.SplitChannels(chans)
	sub.Active = active != 0
	return &sub, nil
}

func (s *SQLStore) listSubscribers(ctx context.Context, where string) ([]model.Subscriber, error) {
	rows, err := s.query(ctx, `SELECT `+subscriberColumns+` FROM subscribers `+where+` ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	defer rows.Close()

	var out []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// GetActiveSubscribers returns subscribers with the active flag set.
func (s *SQLStore) GetActiveSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	return s.listSubscribers(ctx, `WHERE active = 1`)
}

// ListSubscribers returns every subscriber.
func (s *SQLStore) ListSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	return s.listSubscribers(ctx, ``)
}

// GetSubscriber returns the subscriber with the id, or model.ErrNotFound.
func (s *SQLStore) GetSubscriber(ctx context.Context, id string) (*model.Subscriber, error) {
	sub, err := scanSubscriber(s.queryRow(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting subscriber %s: %w", id, err)
	}
	return sub, nil
}

// UpsertSubscriber inserts a subscriber or updates the one with the same
// email. The stored id is written back to sub.
func (s *SQLStore) UpsertSubscriber(ctx context.Context, sub *model.Subscriber) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	prefs, err := json.Marshal(sub.Preferences)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	channels := sub.Channels
	if len(channels) == 0 {
		channels = model.DefaultChannels
	}

	err = s.queryRow(ctx, `
		INSERT INTO subscribers (id, email, webhook_url, preferences, channels, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			webhook_url = excluded.webhook_url,
			preferences = excluded.preferences,
			channels = excluded.channels,
			active = excluded.active
		RETURNING id`,
		sub.ID, sub.Email, sub.WebhookURL, string(prefs), model.JoinChannels(channels), boolInt(sub.Active), formatTime(time.Now()),
	).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("upserting subscriber %s: %w", sub.Email, err)
	}
	return nil
}

// Package notifier delivers queued notifications over email, webhook and
// in-app channels and records every attempt.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/jobwatch/internal/model"
)

// Result summarizes one Dispatch call.
type Result struct {
	Stale   bool // subscriber or posting no longer exists
	Sent    int
	Failed  int
	Skipped int // webhook without URL, unknown channel
}

// Dispatcher sends one queue entry over each of its channels. Channels are
// attempted in order and independently; a failure on one never prevents the
// others.
type Dispatcher struct {
	store   model.Store
	mailer  model.Mailer
	webhook model.WebhookPoster
	events  model.EventPublisher
	from    string
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. events may be nil, in which case in-app
// notifications are only recorded.
func NewDispatcher(store model.Store, mailer model.Mailer, webhook model.WebhookPoster, events model.EventPublisher, from string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		mailer:  mailer,
		webhook: webhook,
		events:  events,
		from:    from,
		logger:  logger,
		now:     time.Now,
	}
}

// errSkipped marks a channel that was intentionally not attempted.
var errSkipped = errors.New("channel skipped")

// Dispatch delivers entry and deletes it afterwards. The returned error only
// reports storage failures while resolving or deleting the entry; channel
// failures are recorded and counted in Result.
func (d *Dispatcher) Dispatch(ctx context.Context, entry model.QueueEntry) (Result, error) {
	var res Result

	sub, post, err := d.resolve(ctx, entry)
	if errors.Is(err, model.ErrNotFound) {
		d.logger.Warn("stale queue entry", "entry", entry.ID, "subscriber", entry.SubscriberID, "posting", entry.PostingID)
		res.Stale = true
		if err := d.store.DeleteQueueEntry(ctx, entry.ID); err != nil {
			return res, fmt.Errorf("deleting stale entry %s: %w", entry.ID, err)
		}
		return res, nil
	}
	if err != nil {
		return res, err
	}

	for _, ch := range entry.Channels {
		sentAt, err := d.send(ctx, ch, sub, post)
		switch {
		case errors.Is(err, errSkipped):
			res.Skipped++
			continue
		case err != nil:
			res.Failed++
			d.logger.Error("notification failed",
				"channel", ch,
				"subscriber", sub.Email,
				"title", post.Title,
				"error", err,
			)
			d.record(ctx, sub, post, ch, model.StatusFailed, nil, err.Error())
		default:
			res.Sent++
			d.logger.Info("notification sent", "channel", ch, "subscriber", sub.Email, "title", post.Title)
			rec := d.record(ctx, sub, post, ch, model.StatusSent, &sentAt, "")
			if ch == model.ChannelInApp && rec != nil {
				d.publish(ctx, rec, post)
			}
		}
	}

	if err := d.store.DeleteQueueEntry(ctx, entry.ID); err != nil {
		return res, fmt.Errorf("deleting queue entry %s: %w", entry.ID, err)
	}
	return res, nil
}

func (d *Dispatcher) resolve(ctx context.Context, entry model.QueueEntry) (*model.Subscriber, *model.Posting, error) {
	sub, err := d.store.GetSubscriber(ctx, entry.SubscriberID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving subscriber %s: %w", entry.SubscriberID, err)
	}
	post, err := d.store.GetPosting(ctx, entry.PostingID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving posting %s: %w", entry.PostingID, err)
	}
	return sub, post, nil
}

// send performs one channel attempt and returns the delivery time.
func (d *Dispatcher) send(ctx context.Context, ch model.Channel, sub *model.Subscriber, post *model.Posting) (time.Time, error) {
	switch ch {
	case model.ChannelEmail:
		if err := d.sendEmail(ctx, sub, post); err != nil {
			return time.Time{}, err
		}
	case model.ChannelWebhook:
		if sub.WebhookURL == "" {
			d.logger.Debug("no webhook url, skipping", "subscriber", sub.Email)
			return time.Time{}, errSkipped
		}
		if err := d.webhook.Post(ctx, sub.WebhookURL, buildWebhookPayload(post)); err != nil {
			return time.Time{}, &model.TransportError{Transport: "webhook", Err: err}
		}
	case model.ChannelInApp:
		// The record itself is the delivery.
	default:
		err := &model.ConfigurationError{Field: "channel", Reason: fmt.Sprintf("unknown channel %q", ch)}
		d.logger.Warn("skipping channel", "subscriber", sub.Email, "error", err)
		return time.Time{}, errSkipped
	}
	return d.now(), nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, sub *model.Subscriber, post *model.Posting) error {
	body, err := renderEmail(post)
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, model.MailMessage{
		To:      sub.Email,
		From:    d.from,
		Subject: emailSubject(post),
		HTML:    body,
	})
}

// record appends an audit entry. Insert failures are logged and nil is
// returned.
func (d *Dispatcher) record(ctx context.Context, sub *model.Subscriber, post *model.Posting, ch model.Channel, status model.NotificationStatus, sentAt *time.Time, detail string) *model.NotificationRecord {
	rec := &model.NotificationRecord{
		SubscriberID: sub.ID,
		PostingID:    post.ID,
		Channel:      ch,
		Status:       status,
		SentAt:       sentAt,
		ErrorDetail:  detail,
		CreatedAt:    d.now(),
	}
	if err := d.store.InsertNotificationRecord(ctx, rec); err != nil {
		d.logger.Error("recording notification failed", "channel", ch, "subscriber", sub.Email, "error", err)
		return nil
	}
	return rec
}

func (d *Dispatcher) publish(ctx context.Context, rec *model.NotificationRecord, post *model.Posting) {
	if d.events == nil {
		return
	}
	ev := model.InAppEvent{
		RecordID:     rec.ID,
		SubscriberID: rec.SubscriberID,
		PostingID:    post.ID,
		Title:        post.Title,
		Company:      post.Company,
		URL:          post.URL,
		CreatedAt:    rec.CreatedAt,
	}
	if err := d.events.Publish(ctx, ev); err != nil {
		d.logger.Warn("publishing in-app event failed", "record", rec.ID, "error", err)
	}
}

// SendTestMessage delivers a sample posting to sub over the given channels
// without touching the queue or the audit log. It returns the first error.
func (d *Dispatcher) SendTestMessage(ctx context.Context, sub model.Subscriber, channels []model.Channel) error {
	now := d.now()
	loc := "Everywhere"
	post := &model.Posting{
		ID:          "test-001",
		Company:     "jobwatch",
		Title:       "Test Notification",
		Location:    &loc,
		URL:         "https://github.com/amishk599/jobwatch",
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	for _, ch := range channels {
		if _, err := d.send(ctx, ch, &sub, post); err != nil && !errors.Is(err, errSkipped) {
			return fmt.Errorf("%s: %w", ch, err)
		}
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobwatch/internal/events"
	"github.com/amishk599/jobwatch/internal/inbox"
	"github.com/amishk599/jobwatch/internal/model"
)

var (
	inboxEmail string
	inboxLimit int
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Browse in-app notifications (TUI)",
	Long: "Shows the subscriber picker, then the in-app notifications of the chosen " +
		"subscriber. New notifications appear live when events.redis_url is set.",
	RunE: runInbox,
}

func init() {
	inboxCmd.Flags().StringVar(&inboxEmail, "email", "", "open this subscriber directly")
	inboxCmd.Flags().IntVar(&inboxLimit, "limit", 200, "maximum notifications to load")
	rootCmd.AddCommand(inboxCmd)
}

func runInbox(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Any log output corrupts the alt-screen display.
	silent := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	subs, err := st.ListSubscribers(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		fmt.Println("No subscribers in the database.")
		return nil
	}

	for {
		sub, ok, err := chooseSubscriber(subs)
		if err != nil || !ok {
			return err
		}

		items, err := inbox.RunLoader(sub.Email, func(ctx context.Context) ([]inbox.Item, error) {
			return inbox.Load(ctx, st, sub.ID, inboxLimit)
		})
		if err != nil {
			fmt.Printf("Error loading notifications: %v\n", err)
			continue
		}

		liveCtx, stopLive := context.WithCancel(ctx)
		live := subscribeLive(liveCtx, cfg.Events.RedisURL, eventsChannel(cfg), sub.ID, silent)
		wantQuit, err := inbox.RunInboxTUI(sub.Email, items, live)
		stopLive()
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit || inboxEmail != "" {
			return nil
		}
		// else: loop → back to picker
	}
}

// chooseSubscriber honours --email, falling back to the picker.
func chooseSubscriber(subs []model.Subscriber) (model.Subscriber, bool, error) {
	if inboxEmail != "" {
		for _, s := range subs {
			if s.Email == inboxEmail {
				return s, true, nil
			}
		}
		return model.Subscriber{}, false, fmt.Errorf("no subscriber with email %s", inboxEmail)
	}
	choice, err := inbox.RunSubscriberPicker(subs)
	if err != nil {
		return model.Subscriber{}, false, fmt.Errorf("picker: %w", err)
	}
	if choice < 0 {
		return model.Subscriber{}, false, nil
	}
	return subs[choice], true, nil
}

// subscribeLive forwards this subscriber's events until ctx is done. It
// returns nil when events are not configured or Redis is unreachable.
func subscribeLive(ctx context.Context, redisURL, channel, subscriberID string, logger *slog.Logger) <-chan model.InAppEvent {
	if redisURL == "" {
		return nil
	}
	rdb, err := events.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil
	}

	ch := make(chan model.InAppEvent, 16)
	go func() {
		defer close(ch)
		defer rdb.Close()
		_ = events.Listen(ctx, rdb, channel, logger, func(ev model.InAppEvent) {
			if ev.SubscriberID != subscriberID {
				return
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return ch
}

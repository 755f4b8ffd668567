package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobwatch/internal/model"
)

var (
	notifyEmail      string
	notifyWebhookURL string
	notifyChannels   []string
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification",
	Long: "Sends a sample posting over the configured transports. The subscriber is " +
		"looked up by --email; unknown addresses are used as-is with --webhook-url. " +
		"Nothing is written to the queue or the audit log.",
	RunE: runNotifyTest,
}

func init() {
	notifyTestCmd.Flags().StringVar(&notifyEmail, "email", "", "recipient email (required)")
	notifyTestCmd.Flags().StringVar(&notifyWebhookURL, "webhook-url", "", "webhook URL when the recipient is not a subscriber")
	notifyTestCmd.Flags().StringSliceVar(&notifyChannels, "channels", nil, "channels to test (default: the subscriber's channels)")
	_ = notifyTestCmd.MarkFlagRequired("email")

	notifyCmd.AddCommand(notifyTestCmd)
	rootCmd.AddCommand(notifyCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return err
	}
	defer st.Close()

	if err := seedStore(ctx, st, cfg, logger); err != nil {
		return err
	}
	subs, err := st.ListSubscribers(ctx)
	if err != nil {
		return err
	}

	sub := model.Subscriber{Email: notifyEmail, WebhookURL: notifyWebhookURL, Channels: model.DefaultChannels}
	for _, s := range subs {
		if s.Email == notifyEmail {
			sub = s
			if notifyWebhookURL != "" {
				sub.WebhookURL = notifyWebhookURL
			}
			break
		}
	}

	channels := sub.Channels
	if len(notifyChannels) > 0 {
		if channels, err = model.ParseChannels(notifyChannels); err != nil {
			return err
		}
	}

	publisher, rdb, err := connectEvents(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	d := buildDispatcher(cfg, st, liveDeliveries(cfg, newLimiter(cfg), publisher, logger), logger)
	if err := d.SendTestMessage(ctx, sub, channels); err != nil {
		logger.Error("test notification failed", "error", err)
		return err
	}
	logger.Info("test notification sent successfully", "email", sub.Email, "channels", model.JoinChannels(channels))
	fmt.Printf("sent test notification to %s over %s\n", sub.Email, model.JoinChannels(channels))
	return nil
}

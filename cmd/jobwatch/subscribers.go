package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobwatch/internal/config"
	"github.com/amishk599/jobwatch/internal/model"
	"github.com/amishk599/jobwatch/internal/store"
)

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "Manage notification recipients",
}

var subscribersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribers in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(listSubscribers)
	},
}

var (
	addSubEmail      string
	addSubWebhookURL string
	addSubChannels   []string
	addSubLocations  []string
	addSubJobTypes   []string
	addSubLevels     []string
	addSubInactive   bool
)

var subscribersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a subscriber",
	Long:  "Adds a subscriber, or updates the one with the same email.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(addSubscriber)
	},
}

func init() {
	f := subscribersAddCmd.Flags()
	f.StringVar(&addSubEmail, "email", "", "email address (required)")
	f.StringVar(&addSubWebhookURL, "webhook-url", "", "webhook URL for the webhook channel")
	f.StringSliceVar(&addSubChannels, "channels", nil, "delivery channels: email, webhook, in_app (default email)")
	f.StringSliceVar(&addSubLocations, "location", nil, "preferred locations")
	f.StringSliceVar(&addSubJobTypes, "job-type", nil, "preferred job types")
	f.StringSliceVar(&addSubLevels, "experience", nil, "preferred experience levels")
	f.BoolVar(&addSubInactive, "inactive", false, "store the subscriber without notifying them")
	_ = subscribersAddCmd.MarkFlagRequired("email")

	subscribersCmd.AddCommand(subscribersListCmd, subscribersAddCmd)
	rootCmd.AddCommand(subscribersCmd)
}

func listSubscribers(ctx context.Context, _ *config.Config, st store.Backend, _ *slog.Logger) error {
	subs, err := st.ListSubscribers(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, []string{
			s.Email,
			model.JoinChannels(s.Channels),
			orDash(s.WebhookURL),
			describePreferences(s.Preferences),
			yesNo(s.Active),
		})
	}
	fmt.Fprintln(os.Stdout, renderTable(
		[]string{"Email", "Channels", "Webhook", "Preferences", "Active"},
		rows,
		nil,
	))
	fmt.Printf("\nTotal: %d subscribers\n", len(subs))
	return nil
}

func addSubscriber(ctx context.Context, _ *config.Config, st store.Backend, logger *slog.Logger) error {
	if !strings.Contains(addSubEmail, "@") {
		return fmt.Errorf("invalid email %q", addSubEmail)
	}
	channels, err := model.ParseChannels(addSubChannels)
	if err != nil {
		return err
	}
	sub := model.Subscriber{
		Email:      addSubEmail,
		WebhookURL: addSubWebhookURL,
		Channels:   channels,
		Preferences: model.PreferenceFilter{
			Locations:        addSubLocations,
			JobTypes:         addSubJobTypes,
			ExperienceLevels: addSubLevels,
		},
		Active: !addSubInactive,
	}
	if err := st.UpsertSubscriber(ctx, &sub); err != nil {
		return err
	}
	logger.Info("subscriber saved", "id", sub.ID, "email", sub.Email, "channels", model.JoinChannels(sub.Channels))
	return nil
}

// describePreferences renders a compact summary such as
// "location=Remote,NYC type=full-time".
func describePreferences(p model.PreferenceFilter) string {
	if p.IsEmpty() {
		return "any"
	}
	var parts []string
	add := func(label string, vals []string) {
		if len(vals) > 0 {
			parts = append(parts, label+"="+strings.Join(vals, ","))
		}
	}
	add("location", p.Locations)
	add("type", p.JobTypes)
	add("level", p.ExperienceLevels)
	if n := len(p.SourceIDs); n > 0 {
		parts = append(parts, fmt.Sprintf("sources=%d", n))
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

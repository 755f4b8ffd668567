package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobwatch/internal/config"
	"github.com/amishk599/jobwatch/internal/model"
	"github.com/amishk599/jobwatch/internal/store"
)

var (
	historyEmail   string
	historyChannel string
	historyStatus  string
	historyLimit   int
	postingsLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the notification audit log",
	Long:  "Prints notification attempts, newest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(showHistory)
	},
}

var postingsCmd = &cobra.Command{
	Use:   "postings",
	Short: "Show the most recently discovered postings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(showPostings)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyEmail, "email", "", "only this subscriber")
	historyCmd.Flags().StringVar(&historyChannel, "channel", "", "only this channel: email, webhook, in_app")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "only this status: sent, failed")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum rows")
	postingsCmd.Flags().IntVar(&postingsLimit, "limit", 50, "maximum rows")
	rootCmd.AddCommand(historyCmd, postingsCmd)
}

func showHistory(ctx context.Context, _ *config.Config, st store.Backend, _ *slog.Logger) error {
	filter := store.RecordFilter{Limit: historyLimit}

	switch historyStatus {
	case "":
	case string(model.StatusSent), string(model.StatusFailed):
		filter.Status = model.NotificationStatus(historyStatus)
	default:
		return fmt.Errorf("unknown status %q", historyStatus)
	}
	if historyChannel != "" {
		ch, err := model.ParseChannel(historyChannel)
		if err != nil {
			return err
		}
		filter.Channel = ch
	}

	subs, err := st.ListSubscribers(ctx)
	if err != nil {
		return err
	}
	emails := make(map[string]string, len(subs))
	for _, s := range subs {
		emails[s.ID] = s.Email
		if historyEmail != "" && s.Email == historyEmail {
			filter.SubscriberID = s.ID
		}
	}
	if historyEmail != "" && filter.SubscriberID == "" {
		return fmt.Errorf("no subscriber with email %s", historyEmail)
	}

	recs, err := st.ListNotificationRecords(ctx, filter)
	if err != nil {
		return err
	}

	titles := make(map[string]string)
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		title, ok := titles[r.PostingID]
		if !ok {
			title = "(removed)"
			if p, err := st.GetPosting(ctx, r.PostingID); err == nil {
				title = p.Title + " @ " + p.Company
			}
			titles[r.PostingID] = title
		}
		created := r.CreatedAt
		rows = append(rows, []string{
			formatWhen(&created),
			orDash(emails[r.SubscriberID]),
			string(r.Channel),
			string(r.Status),
			title,
			orDash(r.ErrorDetail),
		})
	}
	fmt.Fprintln(os.Stdout, renderTable(
		[]string{"When", "Subscriber", "Channel", "Status", "Posting", "Error"},
		rows,
		nil,
	))
	return nil
}

func showPostings(ctx context.Context, _ *config.Config, st store.Backend, _ *slog.Logger) error {
	postings, err := st.ListPostings(ctx, postingsLimit)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(postings))
	for _, p := range postings {
		first, last := p.FirstSeenAt, p.LastSeenAt
		rows = append(rows, []string{
			p.Title,
			p.Company,
			orDash(deref(p.Location)),
			orDash(deref(p.JobType)),
			formatWhen(&first),
			formatWhen(&last),
			yesNo(p.Active),
		})
	}
	fmt.Fprintln(os.Stdout, renderTable(
		[]string{"Title", "Company", "Location", "Type", "First seen", "Last seen", "Active"},
		rows,
		nil,
	))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

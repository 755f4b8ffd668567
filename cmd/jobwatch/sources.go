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

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage monitored career pages",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(listSources)
	},
}

var (
	addSourceName      string
	addSourceURL       string
	addSourceMultiPage bool
	addSourcePageLimit int
	addSourceInactive  bool
)

var sourcesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a source",
	Long:  "Adds a source, or updates the one with the same URL.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(addSource)
	},
}

func init() {
	sourcesAddCmd.Flags().StringVar(&addSourceName, "name", "", "display name (required)")
	sourcesAddCmd.Flags().StringVar(&addSourceURL, "url", "", "career page URL (required)")
	sourcesAddCmd.Flags().BoolVar(&addSourceMultiPage, "multi-page", false, "crawl linked pages too")
	sourcesAddCmd.Flags().IntVar(&addSourcePageLimit, "page-limit", 0, "maximum pages per crawl (default 10)")
	sourcesAddCmd.Flags().BoolVar(&addSourceInactive, "inactive", false, "store the source without monitoring it")
	_ = sourcesAddCmd.MarkFlagRequired("name")
	_ = sourcesAddCmd.MarkFlagRequired("url")

	sourcesCmd.AddCommand(sourcesListCmd, sourcesAddCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// withStore loads config, opens the store and runs fn. Config seeding is
// not applied; the commands operate on what the database holds.
func withStore(fn func(ctx context.Context, cfg *config.Config, st store.Backend, logger *slog.Logger) error) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}
	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return err
	}
	defer st.Close()
	return fn(ctx, cfg, st, logger)
}

func listSources(ctx context.Context, _ *config.Config, st store.Backend, _ *slog.Logger) error {
	sources, err := st.ListSources(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(sources))
	active := 0
	for _, s := range sources {
		if s.Active {
			active++
		}
		limit := "-"
		if s.MultiPage {
			limit = itoa(s.PageLimit)
		}
		rows = append(rows, []string{s.Name, s.Address, yesNo(s.MultiPage), limit, yesNo(s.Active), formatWhen(s.LastFetchedAt)})
	}
	fmt.Fprintln(os.Stdout, renderTable(
		[]string{"Name", "URL", "Multi-page", "Page limit", "Active", "Last fetched"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	fmt.Printf("\nTotal: %d sources (%d active, %d inactive)\n", len(sources), active, len(sources)-active)
	return nil
}

func addSource(ctx context.Context, _ *config.Config, st store.Backend, logger *slog.Logger) error {
	src := model.Source{
		Name:      addSourceName,
		Address:   addSourceURL,
		MultiPage: addSourceMultiPage,
		PageLimit: addSourcePageLimit,
		Active:    !addSourceInactive,
	}
	if err := st.UpsertSource(ctx, &src); err != nil {
		return err
	}
	logger.Info("source saved", "id", src.ID, "name", src.Name, "url", src.Address)
	return nil
}

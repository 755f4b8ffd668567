package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobwatch/internal/config"
	"github.com/amishk599/jobwatch/internal/events"
	"github.com/amishk599/jobwatch/internal/model"
	"github.com/amishk599/jobwatch/internal/store"
)

var (
	checkSource    string
	checkSkipFetch bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate config, test connectivity, preview one source",
	Long: "Loads the config and pings the database and, when configured, Redis. Then " +
		"fetches and extracts one configured source and prints the candidates. Nothing is written.",
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkSource, "source", "", "source name to preview (default: first enabled source)")
	checkCmd.Flags().BoolVar(&checkSkipFetch, "skip-fetch", false, "only check config and connectivity")
	rootCmd.AddCommand(checkCmd)
}

type checkResult struct {
	name   string
	err    error
	detail string
}

func runCheck(cmd *cobra.Command, args []string) error {
	var results []checkResult
	cfg, logger, err := loadConfigAndLogger()
	results = append(results, checkResult{name: "config", err: err, detail: config.ResolvePath(cfgPath)})
	if err != nil {
		printChecks(results)
		logger.Error("check failed", "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, 15*time.Second)
	st, err := openStore(pingCtx, cfg)
	if err == nil {
		err = st.Ping(pingCtx)
		st.Close()
	}
	results = append(results, checkResult{name: "database", err: err, detail: cfg.Database.Driver})

	if cfg.Events.RedisURL != "" {
		rdb, err := events.NewRedisClient(pingCtx, cfg.Events.RedisURL)
		if err == nil {
			rdb.Close()
		}
		results = append(results, checkResult{name: "redis", err: err, detail: eventsChannel(cfg)})
	}
	pingCancel()

	results = append(results,
		checkResult{name: "mail", detail: cfg.Mail.Transport},
		checkResult{name: "sources", detail: fmt.Sprintf("%d configured", len(cfg.Sources))},
		checkResult{name: "subscribers", detail: fmt.Sprintf("%d configured", len(cfg.Subscribers))},
	)

	if !checkSkipFetch {
		results = append(results, previewSource(ctx, cfg, logger))
	}

	if failed := printChecks(results); failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	return nil
}

// previewSource fetches and extracts one source through an in-memory
// pipeline and prints the candidates.
func previewSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) checkResult {
	var src *model.Source
	for _, s := range cfg.ModelSources() {
		if (checkSource == "" && s.Active) || s.Name == checkSource {
			src = &s
			break
		}
	}
	if src == nil {
		if checkSource != "" {
			return checkResult{name: "fetch+extract", err: fmt.Errorf("no source named %q", checkSource)}
		}
		return checkResult{name: "fetch+extract", detail: "no enabled sources, skipped"}
	}

	limiter := newLimiter(cfg)
	p := buildPipeline(cfg, store.NewMemoryStore(), limiter, dryRunDeliveries(logger), logger)

	logger.Info("previewing source", "source", src.Name, "url", src.Address)
	candidates, err := p.Preview(ctx, *src)
	if err != nil {
		return checkResult{name: "fetch+extract", err: err}
	}

	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, []string{c.Title, orDash(deref(c.Location)), orDash(deref(c.JobType)), orDash(deref(c.ExperienceLevel)), c.URL})
	}
	fmt.Fprintln(os.Stdout, renderTable([]string{"Title", "Location", "Type", "Experience", "URL"}, rows, nil))
	return checkResult{name: "fetch+extract", detail: fmt.Sprintf("%s: %d candidates", src.Name, len(candidates))}
}

func printChecks(results []checkResult) int {
	failed := 0
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status, detail := "ok", r.detail
		if r.err != nil {
			status, detail = "FAIL", r.err.Error()
			failed++
		}
		rows = append(rows, []string{r.name, status, detail})
	}
	fmt.Fprintln(os.Stdout, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
	return failed
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobwatch/internal/api"
	"github.com/amishk599/jobwatch/internal/config"
	"github.com/amishk599/jobwatch/internal/scheduler"
	"github.com/amishk599/jobwatch/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long: "Run discovery and drain on their timers, serve the HTTP control surface " +
		"when http.listen is set, and block until SIGINT/SIGTERM.",
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}

	logger.Info("config loaded",
		"database", cfg.Database.Driver,
		"discovery_interval", cfg.Schedule.DiscoveryInterval.String(),
		"drain_interval", cfg.Schedule.DrainInterval.String(),
		"sources", len(cfg.Sources),
		"subscribers", len(cfg.Subscribers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Only one daemon may own a SQLite file.
	if cfg.Database.Driver == store.DriverSQLite {
		lock, err := acquireLock(cfg)
		if err != nil {
			logger.Error("failed to acquire lock", "error", err)
			return err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Warn("failed to release lock", "error", err)
			}
		}()
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return err
	}
	defer st.Close()

	if err := seedStore(ctx, st, cfg, logger); err != nil {
		logger.Error("failed to seed store", "error", err)
		return err
	}

	publisher, rdb, err := connectEvents(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	limiter := newLimiter(cfg)
	p := buildPipeline(cfg, st, limiter, liveDeliveries(cfg, limiter, publisher, logger), logger)
	coord := scheduler.New(p, cfg.Schedule.DiscoveryInterval, cfg.Schedule.DrainInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Run(gctx)
	})
	if cfg.HTTP.Listen != "" {
		srv := api.NewServer(cfg.HTTP.Listen, st, coord, version, logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon error", "error", err)
		return err
	}

	logger.Info("goodbye")
	return nil
}

// acquireLock takes an exclusive lock next to the database file.
func acquireLock(cfg *config.Config) (*flock.Flock, error) {
	path := cfg.Database.Path + ".lock"
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another jobwatch daemon holds %s", path)
	}
	return lock, nil
}

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"posyandu-logistics/config"
	"posyandu-logistics/internal/assignment"
	"posyandu-logistics/internal/common"
	"posyandu-logistics/internal/healthsync"
	"posyandu-logistics/internal/hub"
	"posyandu-logistics/internal/metrics"
	"posyandu-logistics/internal/registry"
	"posyandu-logistics/internal/repo/postgres"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back database migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		switch args[0] {
		case "up":
			err = postgres.RunMigrationsUp(db)
		case "down":
			err = postgres.RunMigrationsDown(db, migrateSteps)
		}
		if err != nil {
			return fmt.Errorf("migrate %s: %w", args[0], err)
		}

		version, dirty, err := postgres.MigrationVersion(db)
		if err != nil {
			return err
		}
		slog.Info("migrations applied",
			slog.String("direction", args[0]),
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	},
}

var reassignCmd = &cobra.Command{
	Use:   "reassign",
	Short: "Re-evaluate the hub of every health post",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		// Redis is optional here; without it the caches stay in-process.
		rdb, err := openRedis(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, shared cache disabled", slog.String("error", err.Error()))
			rdb = nil
		} else {
			defer rdb.Close()
		}

		m, err := metrics.New(prometheus.NewRegistry())
		if err != nil {
			return err
		}
		oracle, _ := newGeo(cfg, rdb, m)
		resolver := assignment.NewResolver(
			assignment.NewStore(db, registry.NewRepository(), hub.NewRepository()),
			oracle,
			assignment.Config{CandidateLimit: cfg.Assignment.CandidateLimit},
			m,
		)

		summary, err := resolver.ReassignAll(ctx, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "evaluated=%d changed=%d failed=%d\n",
			summary.Evaluated, summary.Changed, summary.Failed)
		return nil
	},
}

var posyanduCmd = &cobra.Command{
	Use:   "posyandu",
	Short: "Health service side of the posyandu registry sync",
}

var (
	syncExternalID string
	syncName       string
	syncAddress    string
	syncLat        float64
	syncLng        float64
)

var posyanduSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push one health post to the logistics service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		post := healthsync.SourcePost{
			ExternalID: syncExternalID,
			Name:       syncName,
			Address:    syncAddress,
			UpdatedAt:  time.Now(),
		}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
			loc := common.NewLocation(syncLat, syncLng)
			post.Location = &loc
		}

		m, err := metrics.New(prometheus.NewRegistry())
		if err != nil {
			return err
		}
		dispatcher := newDispatcher(cfg, m)
		if err := dispatcher.Deliver(cmd.Context(), post); err != nil {
			return fmt.Errorf("sync %s: %w", post.ExternalID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced %s\n", post.ExternalID)
		return nil
	},
}

var (
	reconcileSource   string
	reconcileOnce     bool
	reconcileInterval time.Duration
)

var posyanduReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-push health posts whose shadow copy is missing or stale",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m, err := metrics.New(prometheus.NewRegistry())
		if err != nil {
			return err
		}
		interval := cfg.Sync.ReconcileInterval
		if cmd.Flags().Changed("interval") {
			if reconcileInterval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", reconcileInterval)
			}
			interval = reconcileInterval
		}
		client := newSyncClient(cfg)
		reconciler := healthsync.NewReconciler(
			healthsync.FileSource{Path: reconcileSource},
			client,
			newDispatcher(cfg, m),
			cfg.Sync.ReconcileWorkers,
			interval,
			m,
		)

		if reconcileOnce {
			report, err := reconciler.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked=%d in_sync=%d pushed=%d failed=%d\n",
				report.Checked, report.InSync, report.Pushed, report.Failed)
			return nil
		}
		return reconciler.Run(ctx)
	},
}

func init() {
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back (0 rolls back all)")

	posyanduSyncCmd.Flags().StringVar(&syncExternalID, "id", "", "health service id of the post")
	posyanduSyncCmd.Flags().StringVar(&syncName, "name", "", "post name")
	posyanduSyncCmd.Flags().StringVar(&syncAddress, "address", "", "post address")
	posyanduSyncCmd.Flags().Float64Var(&syncLat, "lat", 0, "latitude")
	posyanduSyncCmd.Flags().Float64Var(&syncLng, "lng", 0, "longitude")
	_ = posyanduSyncCmd.MarkFlagRequired("id")
	_ = posyanduSyncCmd.MarkFlagRequired("name")
	posyanduSyncCmd.MarkFlagsRequiredTogether("lat", "lng")

	posyanduReconcileCmd.Flags().StringVar(&reconcileSource, "source", "posts.yaml", "YAML export of the health service registry")
	posyanduReconcileCmd.Flags().BoolVar(&reconcileOnce, "once", false, "run a single pass and exit")
	posyanduReconcileCmd.Flags().DurationVar(&reconcileInterval, "interval", healthsync.DefaultReconcileInterval, "time between passes")

	posyanduCmd.AddCommand(posyanduSyncCmd, posyanduReconcileCmd)
}

func newSyncClient(cfg *config.Config) *healthsync.Client {
	return healthsync.NewClient(cfg.Internal.LogisticsURL, cfg.Internal.SharedSecret, 10*time.Second)
}

func newDispatcher(cfg *config.Config, m *metrics.Metrics) *healthsync.Dispatcher {
	return healthsync.NewDispatcher(newSyncClient(cfg), cfg.Sync.MaxAttempts, cfg.Sync.BaseDelay(), m)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/tether/internal/archive"
	"github.com/hyperengineering/tether/internal/config"
	"github.com/hyperengineering/tether/internal/store"
	"github.com/hyperengineering/tether/internal/worker"
	"github.com/spf13/cobra"
)

var pruneDays int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Archive and prune expired operation history",
	Long:  "Runs one retention cycle against the configured database: expired operation records are exported to the archive bucket (when configured) and then deleted.",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0,
		"Retention window in days (overrides config)")
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadOffline()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	retentionDays := cfg.Sync.RetentionDays
	if pruneDays > 0 {
		retentionDays = pruneDays
	}

	dbPath := dbPathOverride
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	archiver, err := archive.NewArchiver(cfg.Archive)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	expired, err := db.OperationsOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list expired operations: %w", err)
	}

	w := worker.NewRetentionWorker(db, archiver, time.Hour, retentionDays)
	if err := w.RunOnce(ctx); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"pruned":         len(expired),
			"retention_days": retentionDays,
			"archived":       archiver.Configured(),
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d operations older than %d days.\n", len(expired), retentionDays)
	return nil
}

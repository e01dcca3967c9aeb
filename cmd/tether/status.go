package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/tether/internal/config"
	"github.com/hyperengineering/tether/internal/store"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <device_id>",
	Short: "Show the sync state of a device",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

// resolveStore opens the configured database with optional --db override.
func resolveStore() (*store.SQLiteStore, error) {
	dbPath := dbPathOverride
	if dbPath == "" {
		cfg, err := config.LoadOffline()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		dbPath = cfg.Database.Path
	}
	return store.NewSQLiteStore(dbPath)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	deviceID := args[0]

	db, err := resolveStore()
	if err != nil {
		return err
	}
	defer db.Close()

	state, err := db.GetState(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("device %s: %w", deviceID, err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), state)
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "FIELD\tVALUE")
	fmt.Fprintf(w, "device_id\t%s\n", state.DeviceID)
	fmt.Fprintf(w, "status\t%s\n", state.Status)
	fmt.Fprintf(w, "last_sync\t%s\n", state.LastSyncTimestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "fingerprint\t%s\n", state.LastRemoteFingerprint)
	fmt.Fprintf(w, "conflicts\t%d\n", state.ConflictCount)
	fmt.Fprintf(w, "successes\t%d\n", state.SuccessCount)
	fmt.Fprintf(w, "operations\t%d\n", state.TotalOperations)
	w.Flush()

	return nil
}

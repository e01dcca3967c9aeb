package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

var (
	dbPathOverride string
	jsonOutput     bool
)

func init() {
	statusCmd.Flags().StringVar(&dbPathOverride, "db", "",
		"Database path (overrides config and TETHER_DB_PATH)")
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")
	pruneCmd.Flags().StringVar(&dbPathOverride, "db", "",
		"Database path (overrides config and TETHER_DB_PATH)")
	pruneCmd.Flags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pruneCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

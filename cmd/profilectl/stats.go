package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"profile-ml/service/internal/store"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the audit store",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
	cmd.Flags().String("db", "", "Path to the audit SQLite database (defaults to the configured path)")
	cmd.Flags().String("since", "", "Only count events at or after this RFC3339 time")
	cmd.Flags().StringP("format", "f", formatMarkdown, "Output format: json or markdown")
	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	var since time.Time
	if raw, _ := cmd.Flags().GetString("since"); strings.TrimSpace(raw) != "" {
		since, err = time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("since must be RFC3339: %w", err)
		}
	}

	path, _ := cmd.Flags().GetString("db")
	if strings.TrimSpace(path) == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path = cfg.Audit.DBPath
	}
	// Opening would create an empty database; a missing file is a user error.
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("audit database %s does not exist", path)
		}
		return err
	}

	db, err := store.Open(path, true)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	stats, err := db.Stats(since)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	if format == formatJSON {
		return writeJSON(cmd.OutOrStdout(), stats)
	}
	return writeStatsMarkdown(cmd.OutOrStdout(), path, stats)
}

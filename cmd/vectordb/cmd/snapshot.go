package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iwinterknight/vectordb/internal/config"
	"github.com/iwinterknight/vectordb/internal/vectordb/app"
)

func newSnapshotCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Compact the write-ahead log into a fresh snapshot",
		Long: `Load the repository from its current snapshot and WAL, fold the
result into a new snapshot file, and truncate the WAL. Useful as a
cron job or before taking a backup of the data directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSnapshot(cmd, dataDir)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory holding the snapshot and WAL (overrides config/env)")
	return cmd
}

func runSnapshot(cmd *cobra.Command, dataDirFlag string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dataDirFlag != "" {
		cfg.Data.Dir = dataDirFlag
	}

	appCtx, err := app.New(app.Options{DataDir: cfg.Data.Dir})
	if err != nil {
		return fmt.Errorf("initialize vector database: %w", err)
	}

	stats, err := appCtx.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "snapshot written: %s (%d bytes)\n", stats.SnapshotPath, stats.SnapshotBytes)
	fmt.Fprintf(cmd.OutOrStdout(), "wal truncated: %s (%d bytes)\n", stats.WALPath, stats.WALBytes)
	return nil
}

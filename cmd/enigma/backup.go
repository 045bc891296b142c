package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Back up a directory tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		backup, err := a.Backup(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backup %s completed: %d files, %d chunks (%d deduplicated)\n",
			backup.ID, backup.TotalFiles, backup.TotalChunks, backup.DedupChunks)
		return nil
	},
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all backups recorded in the manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		backups, err := a.ListBackups(context.Background())
		if err != nil {
			return fmt.Errorf("listing backups: %w", err)
		}

		if len(backups) == 0 {
			fmt.Println("No backups recorded.")
			return nil
		}

		for _, b := range backups {
			fmt.Printf("%s  %-10s  %s  files=%d chunks=%d dedup=%d\n",
				b.ID, b.Status, b.CreatedAt, b.TotalFiles, b.TotalChunks, b.DedupChunks)
		}
		return nil
	},
}

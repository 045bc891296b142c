package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the manifest: backup, chunk, and byte counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}

		fmt.Printf("Backups:            %d\n", stats.BackupCount)
		fmt.Printf("Chunks:             %d\n", stats.ChunkCount)
		fmt.Printf("Plaintext bytes:    %d\n", stats.TotalPlainBytes)
		fmt.Printf("Stored bytes:       %d\n", stats.TotalStoredBytes)

		current, latest, dirty, err := a.SchemaVersion()
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		state := "current"
		switch {
		case dirty:
			state = "DIRTY (failed migration)"
		case current < latest:
			state = fmt.Sprintf("%d migrations behind", latest-current)
		}
		fmt.Printf("Schema version:     %d (%s)\n", current, state)
		return nil
	},
}

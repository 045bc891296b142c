package main

import (
	"context"
	"fmt"

	"github.com/enigma-backup/enigma/internal/pipeline"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore BACKUP_ID DEST",
	Short: "Restore a backup's files into DEST",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pathPrefix, _ := cmd.Flags().GetString("path")
		glob, _ := cmd.Flags().GetString("glob")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		restored, err := a.Restore(context.Background(), args[0], args[1], pipeline.RestoreOptions{
			PathPrefix: pathPrefix,
			Glob:       glob,
		})
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Restored %d file(s)\n", len(restored))
		for _, path := range restored {
			fmt.Println(path)
		}
		return nil
	},
}

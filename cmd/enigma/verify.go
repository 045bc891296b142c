package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify BACKUP_ID",
	Short: "Re-check every chunk of a backup without restoring it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Verify(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("verify failed: %w", err)
		}

		fmt.Printf("Checked %d file(s), %d chunk(s)\n", result.FilesChecked, result.ChunksChecked)
		if len(result.Failures) == 0 {
			fmt.Println("No integrity failures found.")
			return nil
		}

		fmt.Printf("%d failure(s):\n", len(result.Failures))
		for _, f := range result.Failures {
			fmt.Printf("  %s  chunk %s: %v\n", f.Path, f.ChunkHash, f.Err)
		}
		return fmt.Errorf("verify found %d failing chunk(s)", len(result.Failures))
	},
}

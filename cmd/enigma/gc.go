package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim chunks with a zero reference count",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.GC(context.Background(), dryRun)
		if err != nil {
			return fmt.Errorf("gc failed: %w", err)
		}

		if dryRun {
			fmt.Printf("%d orphaned chunk(s) would be reclaimed\n", len(result.Orphans))
			for _, c := range result.Orphans {
				fmt.Printf("  %s  %d bytes\n", c.Hash, c.SizeEncrypted)
			}
			return nil
		}

		fmt.Printf("Reclaimed %d chunk(s)\n", len(result.Deleted))
		if len(result.Failures) > 0 {
			fmt.Printf("%d failure(s):\n", len(result.Failures))
			for _, f := range result.Failures {
				fmt.Printf("  %s: %v\n", f.Hash, f.Err)
			}
			return fmt.Errorf("gc: %d chunk(s) failed to reclaim", len(result.Failures))
		}
		return nil
	},
}

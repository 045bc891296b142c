package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete BACKUP_ID",
	Short: "Remove a backup's files and decrement its chunks' reference counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteBackup(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}

		fmt.Printf("Backup %s deleted. Run \"enigma gc\" to reclaim orphaned chunks.\n", args[0])
		return nil
	},
}

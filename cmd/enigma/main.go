package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "enigma",
	Short: "Encrypted, deduplicated, multi-cloud backup engine",
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().String("path", "", "restore only files under this path prefix")
	restoreCmd.Flags().String("glob", "", "restore only files matching this glob")
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(gcCmd)
	gcCmd.Flags().Bool("dry-run", false, "report reclaimable chunks without deleting them")
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(encryptCredCmd)
}

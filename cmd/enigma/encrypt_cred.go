package main

import (
	"fmt"

	"github.com/enigma-backup/enigma/internal/crypto"
	"github.com/spf13/cobra"
)

var encryptCredCmd = &cobra.Command{
	Use:   "encrypt-cred VALUE",
	Short: "Wrap a provider access key or secret key as an enc:<base64> token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readPassphrase()
		if err != nil {
			return err
		}

		token, err := crypto.EncryptCredential(args[0], passphrase)
		if err != nil {
			return fmt.Errorf("encrypting credential: %w", err)
		}

		fmt.Println(token)
		return nil
	},
}

package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// readPassphrase returns ENIGMA_PASSPHRASE if set, so scripted and CI
// invocations never block on a terminal prompt. Otherwise it prompts
// interactively with echo disabled.
func readPassphrase() ([]byte, error) {
	if p := os.Getenv("ENIGMA_PASSPHRASE"); p != "" {
		return []byte(p), nil
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return pass, nil
}

package main

import (
	"fmt"

	"github.com/enigma-backup/enigma/internal/app"
	"github.com/enigma-backup/enigma/internal/config"
)

// openApp reads the config file at its default or ENIGMA_CONFIG_PATH
// location and wires a fully constructed app.App. The caller must defer
// a.Close().
func openApp() (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	passphrase, err := readPassphrase()
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg, passphrase)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

package providers

import (
	"fmt"

	"github.com/enigma-backup/enigma/internal/distributor"
)

// AzureConfig describes an Azure Blob container; no provider yet backs it.
type AzureConfig struct {
	Account   string
	Container string
}

// NewAzure is a placeholder for the Azure Blob backend. No Azure SDK
// appears anywhere in the example pack this module was grounded on, so
// wiring one would mean fabricating unvetted code rather than learning
// from a real usage. Configuring "azure" fails clearly instead of
// silently no-opping.
func NewAzure(name string, cfg AzureConfig) (distributor.Provider, error) {
	return nil, fmt.Errorf("azure provider not yet implemented")
}

// Package keyprovider selects and opens the key provider named by
// config.Enigma.KeyProvider: "local" wraps internal/crypto's own
// passphrase/ML-KEM keystore, and the three cloud secret-store variants
// named by spec.md's key_provider enum are interfaces only, stubbed in
// the teacher's own unimplemented-branch idiom (see
// internal/distributor/providers.NewAzure), since no Azure Key Vault,
// GCP Secret Manager, or AWS Secrets Manager SDK appears anywhere in
// the example pack this module was grounded on.
package keyprovider

import (
	"fmt"
	"os"

	"github.com/enigma-backup/enigma/internal/crypto"
)

// Open opens the key provider named by providerType, creating a local
// keystore at keyfilePath on first use. Cloud providers currently
// return a clear "not yet implemented" error instead of silently
// falling back to local.
func Open(providerType, keyfilePath string, passphrase []byte) (crypto.Provider, error) {
	switch providerType {
	case "local":
		return openLocal(keyfilePath, passphrase)
	case "azure-keyvault":
		return nil, fmt.Errorf("keyprovider: azure-keyvault not yet implemented")
	case "gcp-secretmanager":
		return nil, fmt.Errorf("keyprovider: gcp-secretmanager not yet implemented")
	case "aws-secretsmanager":
		return nil, fmt.Errorf("keyprovider: aws-secretsmanager not yet implemented")
	default:
		return nil, fmt.Errorf("keyprovider: unknown key provider %q", providerType)
	}
}

func openLocal(keyfilePath string, passphrase []byte) (crypto.Provider, error) {
	if _, err := os.Stat(keyfilePath); err == nil {
		return crypto.OpenLocal(keyfilePath, passphrase)
	}
	return crypto.CreateLocal(keyfilePath, passphrase)
}

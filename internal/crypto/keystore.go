package crypto

import (
	"crypto/mlkem"
	"encoding/json"
	"fmt"

	"github.com/enigma-backup/enigma/internal/enigmaerr"
)

// keyStoreVersion identifies the hybrid-PQ keystore layout. Matches
// original_source's version 2 ("v2 = hybrid PQ").
const keyStoreVersion = 2

// keyStore is the JSON payload persisted, encrypted, inside the keyfile.
// Field names are lowercase to match the teacher/original_source
// convention of keeping on-wire shapes separate from exported Go API.
type keyStore struct {
	Version      int         `json:"version"`
	Salt         [32]byte    `json:"salt"`
	MLKEMEk      []byte      `json:"ml_kem_ek"`
	MLKEMDk      []byte      `json:"ml_kem_dk"`
	CurrentKeyID string      `json:"current_key_id"`
	Keys         []storedKey `json:"keys"`
}

// storedKey is the on-disk record of one chunk key: the ML-KEM
// ciphertext produced when the key was generated, not the derived key
// itself. The hybrid key is never written to disk; it is re-derived by
// decapsulating ct against the keystore's decapsulation key every time
// the keyfile is opened. Each rotation produces a fresh ML-KEM
// encapsulation, so ct differs across keys even with the same keypair.
type storedKey struct {
	ID        string `json:"id"`
	MLKEMCT   []byte `json:"ml_kem_ct"`
	CreatedAt string `json:"created_at"`
}

// keystoreHeaderSize is salt(32) + nonce(12), the unencrypted prefix of
// the on-disk keyfile.
const keystoreHeaderSize = 32 + NonceSize

// encodeKeystore serializes and seals ks under masterKey. On-disk layout
// is salt(32) || nonce(12) || AEAD(ciphertext), matching
// original_source's encrypt_keystore exactly.
func encodeKeystore(ks *keyStore, masterKey [32]byte) ([]byte, error) {
	plaintext, err := json.Marshal(ks)
	if err != nil {
		return nil, fmt.Errorf("crypto: marshal keystore: %w", err)
	}
	ciphertext, nonce, err := EncryptData(plaintext, masterKey, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: seal keystore: %w", err)
	}
	out := make([]byte, 0, keystoreHeaderSize+len(ciphertext))
	out = append(out, ks.Salt[:]...)
	out = append(out, nonce[:]...)
	out = append(out, ciphertext...)
	return out, nil
}

// decodeKeystore reverses encodeKeystore, deriving masterKey from
// passphrase and the salt recovered from the file itself.
func decodeKeystore(data []byte, passphrase []byte) (*keyStore, [32]byte, error) {
	var masterKey [32]byte
	if len(data) < keystoreHeaderSize {
		return nil, masterKey, enigmaerr.New(enigmaerr.IntegrityFailure, "keyfile too short", nil)
	}

	var salt [32]byte
	copy(salt[:], data[:32])
	var nonce [NonceSize]byte
	copy(nonce[:], data[32:keystoreHeaderSize])
	ciphertext := data[keystoreHeaderSize:]

	masterKey = deriveMasterKey(passphrase, salt)

	plaintext, err := DecryptData(ciphertext, masterKey, nonce, nil)
	if err != nil {
		return nil, masterKey, enigmaerr.New(enigmaerr.AuthFailure, "wrong passphrase or corrupted keyfile", err)
	}

	var ks keyStore
	if err := json.Unmarshal(plaintext, &ks); err != nil {
		return nil, masterKey, fmt.Errorf("crypto: unmarshal keystore: %w", err)
	}
	return &ks, masterKey, nil
}

// newKeyStore generates a fresh salt and ML-KEM-768 keypair for a brand
// new keyfile.
func newKeyStore(salt [32]byte) (*keyStore, *mlkem.DecapsulationKey768, error) {
	dk, err := mlkem.GenerateKey768()
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: generate ml-kem-768 keypair: %w", err)
	}
	ks := &keyStore{
		Version: keyStoreVersion,
		Salt:    salt,
		MLKEMEk: dk.EncapsulationKey().Bytes(),
		MLKEMDk: dk.Bytes(),
	}
	return ks, dk, nil
}

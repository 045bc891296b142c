// Package crypto implements per-chunk AEAD encryption and the hybrid
// post-quantum key derivation backing it, grounded in original_source's
// enigma-core/src/crypto/mod.rs (AES-256-GCM, fingerprint-as-AAD) and
// enigma-keys/src/local.rs (Argon2id + ML-KEM-768 hybrid KDF).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/enigma-backup/enigma/internal/enigmaerr"
	"github.com/enigma-backup/enigma/internal/fingerprint"
)

// NonceSize is the AES-GCM nonce length in bytes.
const NonceSize = 12

// KeyMaterial is a single usable AES-256 key, identified so ciphertexts
// produced under it can be matched back to the right key on decrypt.
type KeyMaterial struct {
	ID  string
	Key [32]byte
}

// EncryptedChunk is the on-storage representation of one chunk: the
// fingerprint (used as AAD and as the dedup key), the random nonce, and
// the GCM ciphertext+tag.
type EncryptedChunk struct {
	Hash       fingerprint.Hash
	Nonce      [NonceSize]byte
	Ciphertext []byte
	KeyID      string
}

// EncryptChunk seals data under key, binding the chunk's fingerprint as
// associated data so a ciphertext can never be silently reattached to a
// different chunk identity.
func EncryptChunk(data []byte, hash fingerprint.Hash, key KeyMaterial) (EncryptedChunk, error) {
	block, err := aes.NewCipher(key.Key[:])
	if err != nil {
		return EncryptedChunk{}, enigmaerr.New(enigmaerr.AuthFailure, "invalid chunk key", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return EncryptedChunk{}, enigmaerr.New(enigmaerr.AuthFailure, "gcm init failed", err)
	}

	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return EncryptedChunk{}, enigmaerr.New(enigmaerr.AuthFailure, "nonce generation failed", err)
	}

	ciphertext := gcm.Seal(nil, nonce[:], data, hash.Bytes())
	return EncryptedChunk{
		Hash:       hash,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		KeyID:      key.ID,
	}, nil
}

// DecryptChunk opens an EncryptedChunk under key, verifying the GCM tag
// against the chunk's fingerprint as AAD. Any mismatch — wrong key, wrong
// nonce, tampered ciphertext, or a fingerprint that doesn't match what was
// sealed — is reported as AuthFailure, never partial plaintext.
func DecryptChunk(enc EncryptedChunk, key KeyMaterial) ([]byte, error) {
	block, err := aes.NewCipher(key.Key[:])
	if err != nil {
		return nil, enigmaerr.New(enigmaerr.AuthFailure, "invalid chunk key", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, enigmaerr.New(enigmaerr.AuthFailure, "gcm init failed", err)
	}

	plaintext, err := gcm.Open(nil, enc.Nonce[:], enc.Ciphertext, enc.Hash.Bytes())
	if err != nil {
		return nil, enigmaerr.WithHash(enigmaerr.AuthFailure, "chunk decryption failed", enc.Hash.String(), err)
	}
	return plaintext, nil
}

// EncryptData is the generic AEAD helper used for non-chunk payloads such
// as the keystore itself, where the caller supplies its own AAD.
func EncryptData(data []byte, key [32]byte, aad []byte) (ciphertext []byte, nonce [NonceSize]byte, err error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, nonce, fmt.Errorf("crypto: invalid key: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nonce, fmt.Errorf("crypto: gcm init: %w", err)
	}
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, nonce, fmt.Errorf("crypto: nonce generation: %w", err)
	}
	ciphertext = gcm.Seal(nil, nonce[:], data, aad)
	return ciphertext, nonce, nil
}

// DecryptData reverses EncryptData.
func DecryptData(ciphertext []byte, key [32]byte, nonce [NonceSize]byte, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid key: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm init: %w", err)
	}
	return gcm.Open(nil, nonce[:], ciphertext, aad)
}

package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/enigma-backup/enigma/internal/enigmaerr"
)

// credentialPrefix marks a config value as an encrypted credential token
// rather than a literal secret, per the external config format.
const credentialPrefix = "enc:"

// EncryptCredential seals plaintext (a provider access key or secret)
// under passphrase, producing an "enc:<base64>" token suitable for a
// config file. Layout matches the keystore's own: salt(32) || nonce(12)
// || AEAD ciphertext.
func EncryptCredential(plaintext string, passphrase []byte) (string, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return "", fmt.Errorf("crypto: generate credential salt: %w", err)
	}
	masterKey := deriveMasterKey(passphrase, salt)

	ciphertext, nonce, err := EncryptData([]byte(plaintext), masterKey, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: seal credential: %w", err)
	}

	raw := make([]byte, 0, len(salt)+NonceSize+len(ciphertext))
	raw = append(raw, salt[:]...)
	raw = append(raw, nonce[:]...)
	raw = append(raw, ciphertext...)
	return credentialPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// DecryptCredential reverses EncryptCredential. A value without the
// "enc:" prefix is returned unchanged, so plaintext config values keep
// working without requiring every credential to be encrypted.
func DecryptCredential(token string, passphrase []byte) (string, error) {
	if !strings.HasPrefix(token, credentialPrefix) {
		return token, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, credentialPrefix))
	if err != nil {
		return "", enigmaerr.New(enigmaerr.ConfigInvalid, "malformed credential token", err)
	}
	if len(raw) < keystoreHeaderSize {
		return "", enigmaerr.New(enigmaerr.ConfigInvalid, "credential token too short", nil)
	}

	var salt [32]byte
	copy(salt[:], raw[:32])
	var nonce [NonceSize]byte
	copy(nonce[:], raw[32:keystoreHeaderSize])
	ciphertext := raw[keystoreHeaderSize:]

	masterKey := deriveMasterKey(passphrase, salt)
	plaintext, err := DecryptData(ciphertext, masterKey, nonce, nil)
	if err != nil {
		return "", enigmaerr.New(enigmaerr.AuthFailure, "wrong passphrase or corrupted credential", err)
	}
	return string(plaintext), nil
}

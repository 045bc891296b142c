package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/enigma-backup/enigma/internal/fingerprint"
)

func testKey(t *testing.T) KeyMaterial {
	t.Helper()
	var km KeyMaterial
	km.ID = "test-key-1"
	if _, err := rand.Read(km.Key[:]); err != nil {
		t.Fatalf("rand.Read() error = %v", err)
	}
	return km
}

func TestEncryptDecryptChunk_RoundTrip(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	plaintext := []byte("Hello, Enigma! This is secret data.")
	hash := fingerprint.Of(plaintext)

	enc, err := EncryptChunk(plaintext, hash, key)
	if err != nil {
		t.Fatalf("EncryptChunk() error = %v", err)
	}
	if bytes.Equal(enc.Ciphertext, plaintext) {
		t.Fatal("ciphertext equals plaintext")
	}

	got, err := DecryptChunk(enc, key)
	if err != nil {
		t.Fatalf("DecryptChunk() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("DecryptChunk(EncryptChunk(x)) != x")
	}
}

func TestDecryptChunk_WrongKeyFails(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	wrongKey := testKey(t)
	plaintext := []byte("secret")
	hash := fingerprint.Of(plaintext)

	enc, err := EncryptChunk(plaintext, hash, key)
	if err != nil {
		t.Fatalf("EncryptChunk() error = %v", err)
	}

	if _, err := DecryptChunk(enc, wrongKey); err == nil {
		t.Fatal("DecryptChunk() with wrong key succeeded, want error")
	}
}

func TestDecryptChunk_TamperedAADFails(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	plaintext := []byte("secret")
	hash := fingerprint.Of(plaintext)

	enc, err := EncryptChunk(plaintext, hash, key)
	if err != nil {
		t.Fatalf("EncryptChunk() error = %v", err)
	}

	enc.Hash = fingerprint.Of([]byte("different content"))
	if _, err := DecryptChunk(enc, key); err == nil {
		t.Fatal("DecryptChunk() with substituted AAD succeeded, want error")
	}
}

func TestDecryptChunk_TamperedCiphertextFails(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	plaintext := []byte("secret")
	hash := fingerprint.Of(plaintext)

	enc, err := EncryptChunk(plaintext, hash, key)
	if err != nil {
		t.Fatalf("EncryptChunk() error = %v", err)
	}
	enc.Ciphertext[0] ^= 0xff

	if _, err := DecryptChunk(enc, key); err == nil {
		t.Fatal("DecryptChunk() with tampered ciphertext succeeded, want error")
	}
}

func TestEncryptChunk_UniqueNonces(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	plaintext := []byte("same plaintext every time")
	hash := fingerprint.Of(plaintext)

	seen := map[[NonceSize]byte]bool{}
	for i := 0; i < 50; i++ {
		enc, err := EncryptChunk(plaintext, hash, key)
		if err != nil {
			t.Fatalf("EncryptChunk() error = %v", err)
		}
		if seen[enc.Nonce] {
			t.Fatal("duplicate nonce observed across encryptions")
		}
		seen[enc.Nonce] = true
	}
}

func TestEncryptDecryptData_RoundTrip(t *testing.T) {
	t.Parallel()
	var key [32]byte
	rand.Read(key[:])
	data := []byte("keystore json blob")
	aad := []byte("context")

	ciphertext, nonce, err := EncryptData(data, key, aad)
	if err != nil {
		t.Fatalf("EncryptData() error = %v", err)
	}
	got, err := DecryptData(ciphertext, key, nonce, aad)
	if err != nil {
		t.Fatalf("DecryptData() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("DecryptData(EncryptData(x)) != x")
	}
}

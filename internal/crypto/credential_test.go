package crypto

import "testing"

func TestEncryptDecryptCredential_RoundTrip(t *testing.T) {
	t.Parallel()
	passphrase := []byte("credential passphrase")

	token, err := EncryptCredential("AKIAEXAMPLESECRET", passphrase)
	if err != nil {
		t.Fatalf("EncryptCredential() error = %v", err)
	}
	if token[:4] != "enc:" {
		t.Fatalf("EncryptCredential() token = %q, want enc: prefix", token)
	}

	got, err := DecryptCredential(token, passphrase)
	if err != nil {
		t.Fatalf("DecryptCredential() error = %v", err)
	}
	if got != "AKIAEXAMPLESECRET" {
		t.Errorf("DecryptCredential() = %q, want %q", got, "AKIAEXAMPLESECRET")
	}
}

func TestDecryptCredential_PassthroughForPlaintext(t *testing.T) {
	t.Parallel()
	got, err := DecryptCredential("plain-value-not-encrypted", []byte("whatever"))
	if err != nil {
		t.Fatalf("DecryptCredential() error = %v", err)
	}
	if got != "plain-value-not-encrypted" {
		t.Errorf("DecryptCredential() = %q, want passthrough", got)
	}
}

func TestDecryptCredential_WrongPassphraseFails(t *testing.T) {
	t.Parallel()
	token, err := EncryptCredential("secret", []byte("right passphrase"))
	if err != nil {
		t.Fatalf("EncryptCredential() error = %v", err)
	}
	if _, err := DecryptCredential(token, []byte("wrong passphrase")); err == nil {
		t.Fatal("DecryptCredential() with wrong passphrase succeeded, want error")
	}
}

// Package fingerprint computes the 256-bit content identity used
// throughout the engine: chunk dedup key, AEAD associated data, and
// restore-time integrity check. Grounded in original_source's
// ChunkHash (SHA-256 over plaintext) and the teacher's own convention of
// identifying Content rows by SHA-256 checksum.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a Hash in bytes.
const Size = sha256.Size

// Hash is the 256-bit fingerprint of a chunk's plaintext.
type Hash [Size]byte

// Of computes the fingerprint of data. Always computed over the
// uncompressed plaintext, regardless of whether the chunk is later
// compressed — compression must never change a chunk's identity.
func Of(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// String returns the lowercase hex encoding, used as the manifest's
// `hash` primary key and as the on-storage key path component.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the hash as a byte slice, used directly as AEAD
// associated data.
func (h Hash) Bytes() []byte {
	return h[:]
}

// ParseHex decodes a hex-encoded fingerprint as stored in the manifest.
func ParseHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != Size {
		return h, &InvalidLengthError{Got: len(b)}
	}
	copy(h[:], b)
	return h, nil
}

// InvalidLengthError is returned by ParseHex for malformed input.
type InvalidLengthError struct{ Got int }

func (e *InvalidLengthError) Error() string {
	return "fingerprint: invalid hash length"
}

// Verify recomputes the fingerprint of data and reports whether it equals
// want. Every component that produces plaintext after a round trip
// (restore, verify) MUST call this before handing data back to the caller.
func Verify(data []byte, want Hash) bool {
	return Of(data) == want
}

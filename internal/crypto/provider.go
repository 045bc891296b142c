package crypto

import (
	"crypto/mlkem"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/enigma-backup/enigma/internal/clock"
	"github.com/enigma-backup/enigma/internal/enigmaerr"
)

// hybridInfo is the HKDF context string binding the hybrid derivation to
// this engine, matching original_source's derive_hybrid_key exactly.
const hybridInfo = "enigma-hybrid-v1"

// Argon2id parameters, matching the Rust argon2 crate's Argon2::default().
const (
	argon2Time    = 2
	argon2MemKiB  = 19 * 1024
	argon2Threads = 1
)

// deriveMasterKey turns a passphrase into a 32-byte key via Argon2id.
// Even if ML-KEM-768 were broken, this half alone still protects the data.
func deriveMasterKey(passphrase []byte, salt [32]byte) [32]byte {
	var key [32]byte
	derived := argon2.IDKey(passphrase, salt[:], argon2Time, argon2MemKiB, argon2Threads, 32)
	copy(key[:], derived)
	return key
}

// deriveHybridKey combines the passphrase-derived key and an ML-KEM
// shared secret via HKDF-SHA256. Even if one primitive is broken, the
// other continues to protect the data.
func deriveHybridKey(masterKey [32]byte, kemSharedSecret []byte, salt [32]byte) ([32]byte, error) {
	var out [32]byte
	ikm := make([]byte, 0, len(masterKey)+len(kemSharedSecret))
	ikm = append(ikm, masterKey[:]...)
	ikm = append(ikm, kemSharedSecret...)

	r := hkdf.New(sha256.New, ikm, salt[:], []byte(hybridInfo))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return out, fmt.Errorf("crypto: hkdf expand: %w", err)
	}
	return out, nil
}

// KeyMaterialView exposes a stored key's public attributes without
// leaking raw bytes outside the package boundary unnecessarily, while
// still giving callers (the pipeline) what they need to seal/open chunks.
type KeyMaterialView struct {
	ID        string
	CreatedAt string
}

// Provider manages the set of chunk keys: the active one used for new
// chunks, and the historical ones needed to decrypt old chunks after a
// rotation.
type Provider interface {
	// CurrentKey returns the active chunk key.
	CurrentKey() (KeyMaterial, error)
	// KeyByID returns a specific historical or current key.
	KeyByID(id string) (KeyMaterial, error)
	// Rotate generates a new hybrid key, makes it current, and persists
	// the keystore. The previous key remains usable for decryption.
	Rotate() (KeyMaterial, error)
	// ListKeyIDs returns every key ID this provider has ever issued.
	ListKeyIDs() []string
	// ListKeys returns metadata (without raw key bytes) for every key.
	ListKeys() []KeyMaterialView
	// Close zeroizes in-memory key material.
	Close() error
}

// LocalProvider is a Provider backed by an encrypted keyfile on local
// disk, deriving chunk keys from a passphrase plus an ML-KEM-768
// keypair generated once at creation time. Hybrid keys are never
// persisted: only each key's ML-KEM ciphertext is stored, and every
// open re-derives the hybrid keys by decapsulating those ciphertexts
// against the keystore's decapsulation key.
type LocalProvider struct {
	path      string
	masterKey [32]byte
	store     *keyStore
	dk        *mlkem.DecapsulationKey768
	keys      map[string][32]byte // key ID -> derived hybrid key, in-memory only
	clock     clock.Clock
	ids       clock.IDGenerator
}

var _ Provider = (*LocalProvider)(nil)

// CreateLocal initializes a brand new keyfile at path: a fresh Argon2id
// salt, a fresh ML-KEM-768 keypair, and one initial hybrid chunk key.
func CreateLocal(path string, passphrase []byte) (*LocalProvider, error) {
	return createLocal(path, passphrase, clock.Real{}, clock.UUIDv7Generator{})
}

func createLocal(path string, passphrase []byte, c clock.Clock, ids clock.IDGenerator) (*LocalProvider, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, enigmaerr.New(enigmaerr.ConfigInvalid, "salt generation failed", err)
	}

	masterKey := deriveMasterKey(passphrase, salt)
	store, dk, err := newKeyStore(salt)
	if err != nil {
		return nil, enigmaerr.New(enigmaerr.ConfigInvalid, "keystore init failed", err)
	}

	p := &LocalProvider{
		path:      path,
		masterKey: masterKey,
		store:     store,
		dk:        dk,
		keys:      make(map[string][32]byte),
		clock:     c,
		ids:       ids,
	}

	if _, err := p.generateAndStoreKey(); err != nil {
		return nil, err
	}
	if err := p.save(); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenLocal decrypts an existing keyfile at path with passphrase.
func OpenLocal(path string, passphrase []byte) (*LocalProvider, error) {
	return openLocal(path, passphrase, clock.Real{}, clock.UUIDv7Generator{})
}

func openLocal(path string, passphrase []byte, c clock.Clock, ids clock.IDGenerator) (*LocalProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, enigmaerr.New(enigmaerr.ConfigInvalid, "read keyfile", err)
	}
	store, masterKey, err := decodeKeystore(data, passphrase)
	if err != nil {
		return nil, err
	}
	dk, err := mlkem.NewDecapsulationKey768(store.MLKEMDk)
	if err != nil {
		return nil, enigmaerr.New(enigmaerr.IntegrityFailure, "invalid ml-kem decapsulation key in keystore", err)
	}

	keys := make(map[string][32]byte, len(store.Keys))
	for _, sk := range store.Keys {
		sharedSecret, err := dk.Decapsulate(sk.MLKEMCT)
		if err != nil {
			return nil, enigmaerr.New(enigmaerr.IntegrityFailure, "ml-kem decapsulate key "+sk.ID, err)
		}
		hybridKey, err := deriveHybridKey(masterKey, sharedSecret, store.Salt)
		if err != nil {
			return nil, enigmaerr.New(enigmaerr.ConfigInvalid, "hybrid key derivation failed for key "+sk.ID, err)
		}
		keys[sk.ID] = hybridKey
	}

	return &LocalProvider{
		path:      path,
		masterKey: masterKey,
		store:     store,
		dk:        dk,
		keys:      keys,
		clock:     c,
		ids:       ids,
	}, nil
}

func (p *LocalProvider) save() error {
	data, err := encodeKeystore(p.store, p.masterKey)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return enigmaerr.New(enigmaerr.ConfigInvalid, "create keyfile directory", err)
		}
	}
	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		return enigmaerr.New(enigmaerr.ConfigInvalid, "write keyfile", err)
	}
	return nil
}

// generateAndStoreKey performs one ML-KEM-768 encapsulation against the
// provider's long-lived encapsulation key, producing a fresh ciphertext
// and shared secret, derives the resulting hybrid key, and caches it in
// memory. Only the ciphertext is persisted to the keystore; the hybrid
// key itself is re-derived from it (via decapsulation) on every open,
// matching the derivation point spec §4.4 describes.
func (p *LocalProvider) generateAndStoreKey() (KeyMaterial, error) {
	sharedSecret, ciphertext := p.dk.EncapsulationKey().Encapsulate()

	hybridKey, err := deriveHybridKey(p.masterKey, sharedSecret, p.store.Salt)
	if err != nil {
		return KeyMaterial{}, enigmaerr.New(enigmaerr.ConfigInvalid, "hybrid key derivation failed", err)
	}

	id := p.ids.New()
	sk := storedKey{
		ID:        id,
		MLKEMCT:   ciphertext,
		CreatedAt: p.clock.Now().UTC().Format(time.RFC3339),
	}
	p.store.Keys = append(p.store.Keys, sk)
	p.store.CurrentKeyID = id
	p.keys[id] = hybridKey

	return KeyMaterial{ID: id, Key: hybridKey}, nil
}

// CurrentKey implements Provider.
func (p *LocalProvider) CurrentKey() (KeyMaterial, error) {
	return p.KeyByID(p.store.CurrentKeyID)
}

// KeyByID implements Provider.
func (p *LocalProvider) KeyByID(id string) (KeyMaterial, error) {
	key, ok := p.keys[id]
	if !ok {
		return KeyMaterial{}, enigmaerr.New(enigmaerr.NotFound, "key not found: "+id, nil)
	}
	return KeyMaterial{ID: id, Key: key}, nil
}

// Rotate implements Provider: generates a new hybrid key via a fresh
// ML-KEM encapsulation, makes it current, and persists the keystore.
// Prior keys remain stored for decrypting chunks sealed before rotation.
func (p *LocalProvider) Rotate() (KeyMaterial, error) {
	km, err := p.generateAndStoreKey()
	if err != nil {
		return KeyMaterial{}, err
	}
	if err := p.save(); err != nil {
		return KeyMaterial{}, err
	}
	return km, nil
}

// ListKeyIDs implements Provider.
func (p *LocalProvider) ListKeyIDs() []string {
	ids := make([]string, len(p.store.Keys))
	for i, k := range p.store.Keys {
		ids[i] = k.ID
	}
	return ids
}

// ListKeys returns metadata for every key this provider has issued,
// without exposing raw key bytes.
func (p *LocalProvider) ListKeys() []KeyMaterialView {
	views := make([]KeyMaterialView, len(p.store.Keys))
	for i, k := range p.store.Keys {
		views[i] = KeyMaterialView{ID: k.ID, CreatedAt: k.CreatedAt}
	}
	return views
}

// Close zeroizes in-memory key material. Matches original_source's Drop
// impl for LocalKeyProvider.
func (p *LocalProvider) Close() error {
	for id := range p.keys {
		p.keys[id] = [32]byte{}
		delete(p.keys, id)
	}
	zero(p.store.MLKEMDk)
	zero(p.masterKey[:])
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package store

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/orbitx-dev/orbitx/internal/orbiterr"
)

// SecretBox encrypts API keys and other secrets at rest with an AEAD keyed
// from a user-provided master password, set once per process (spec.md
// §4.5). Grounded on internal/auth/crypto.go's HKDF-then-AEAD layering,
// adapted from an X25519 shared secret to a passphrase-derived one since
// there is no peer to ECDH with here.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox derives a 256-bit ChaCha20-Poly1305 key from passphrase via
// HKDF-SHA256 (salt fixed, info distinguishes this key's purpose from the
// teacher's PTY-relay key derivation).
func NewSecretBox(passphrase string) (*SecretBox, error) {
	salt := make([]byte, 32) // fixed zero salt, as in the teacher's DeriveSharedKey
	kdf := hkdf.New(sha256.New, []byte(passphrase), salt, []byte("orbitx-secrets"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, orbiterr.Wrap(orbiterr.KindDecryptFailed, "store.NewSecretBox", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, orbiterr.Wrap(orbiterr.KindDecryptFailed, "store.NewSecretBox", err)
	}
	return &SecretBox{aead: aead}, nil
}

// Seal encrypts plaintext, returning base64(nonce || ciphertext || tag).
func (b *SecretBox) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secretbox seal: %w", err)
	}
	ciphertext := b.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a string produced by Seal.
func (b *SecretBox) Open(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, orbiterr.Wrap(orbiterr.KindDecryptFailed, "store.SecretBox.Open", err)
	}
	n := b.aead.NonceSize()
	if len(data) < n {
		return nil, orbiterr.New(orbiterr.KindDecryptFailed, "store.SecretBox.Open", fmt.Errorf("ciphertext too short"))
	}
	nonce, ciphertext := data[:n], data[n:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, orbiterr.Wrap(orbiterr.KindDecryptFailed, "store.SecretBox.Open", err)
	}
	return plaintext, nil
}

// SecretRepository stores named secrets (e.g. provider API keys) encrypted
// with a SecretBox.
type SecretRepository struct {
	s   *Store
	box *SecretBox
}

// Secrets binds box to this store's `secrets` table. box is nil-safe at
// construction but Put/Get require one — callers set a master password
// once per process via NewSecretBox before touching secrets.
func (s *Store) Secrets(box *SecretBox) *SecretRepository {
	return &SecretRepository{s: s, box: box}
}

// Put encrypts and stores value under name, overwriting any existing value.
func (r *SecretRepository) Put(name string, value []byte) error {
	ciphertext, err := r.box.Seal(value)
	if err != nil {
		return fmt.Errorf("secrets.Put: %w", err)
	}
	_, err = r.s.db.Exec(`
		INSERT INTO secrets (name, ciphertext, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET ciphertext = excluded.ciphertext
	`, name, ciphertext, nowFmt())
	if err != nil {
		return fmt.Errorf("secrets.Put: %w", err)
	}
	return nil
}

// Get decrypts and returns the value stored under name.
func (r *SecretRepository) Get(name string) ([]byte, bool, error) {
	var ciphertext string
	err := r.s.db.QueryRow("SELECT ciphertext FROM secrets WHERE name = ?", name).Scan(&ciphertext)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("secrets.Get: %w", err)
	}
	plaintext, err := r.box.Open(ciphertext)
	if err != nil {
		return nil, false, fmt.Errorf("secrets.Get: %w", err)
	}
	return plaintext, true, nil
}

// Delete removes name's secret row, if present.
func (r *SecretRepository) Delete(name string) error {
	if _, err := r.s.db.Exec("DELETE FROM secrets WHERE name = ?", name); err != nil {
		return fmt.Errorf("secrets.Delete: %w", err)
	}
	return nil
}

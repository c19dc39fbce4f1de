package store

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

// KeyFileName is the default key file under the data directory
// (<home>/.nmem/key), mode 0600.
const KeyFileName = "key"

// hkdfSalt is a fixed application-level salt (not a secret — HKDF's salt
// need not be). It domain-separates nmem's key derivation from any other
// consumer of the same raw key material.
var hkdfSalt = []byte("nmem-store-v1")

// hkdfInfoContent and hkdfInfoReserved label the two subkeys derived from
// the raw key, making the derivation auditable: one key encrypts content,
// the other is reserved (named now so a future column-level key rotation
// doesn't have to renegotiate the derivation scheme).
var (
	hkdfInfoContent  = []byte("content-aes-gcm")
	hkdfInfoReserved = []byte("reserved")
)

// deriveSubkeys expands the raw 32-byte key into a content-encryption key
// and a reserved key via HKDF-SHA256. Derivation is a cheap HKDF expand,
// not a slow KDF like scrypt/argon2, so opening an already-keyed database
// stays sub-millisecond.
func deriveSubkeys(rawKey []byte) (contentKey, reservedKey [32]byte, err error) {
	r := hkdf.New(sha256.New, rawKey, hkdfSalt, hkdfInfoContent)
	if _, err = io.ReadFull(r, contentKey[:]); err != nil {
		return contentKey, reservedKey, fmt.Errorf("derive content subkey: %w", err)
	}
	r2 := hkdf.New(sha256.New, rawKey, hkdfSalt, hkdfInfoReserved)
	if _, err = io.ReadFull(r2, reservedKey[:]); err != nil {
		return contentKey, reservedKey, fmt.Errorf("derive reserved subkey: %w", err)
	}
	return contentKey, reservedKey, nil
}

// cipherState holds the process's active content-encryption AEAD, or nil
// when running unencrypted (NMEM_NO_ENCRYPT=1, test convenience).
type cipherState struct {
	gcm cipher.AEAD
}

var activeCipher *cipherState

// applyEncryption resolves the raw key (keyHex argument, NMEM_KEY env var,
// default key file) and activates column-level envelope encryption before any
// migration or query runs. keyHex is the already-resolved
// key, if the caller has one; pass "" to fall back to
// NMEM_KEY / the default key file.
func applyEncryption(db *sql.DB, keyHex string) error {
	if os.Getenv("NMEM_NO_ENCRYPT") == "1" {
		activeCipher = nil
		return nil
	}

	resolved := keyHex
	if resolved == "" {
		resolved = os.Getenv("NMEM_KEY")
	}
	if resolved == "" {
		path, err := DefaultKeyPath()
		if err != nil {
			return err
		}
		resolved, err = loadOrCreateKeyFile(path)
		if err != nil {
			return err
		}
	}

	raw, err := hex.DecodeString(resolved)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("encryption key must be 64 hex characters (32 bytes): %w", err)
	}

	contentKey, _, err := deriveSubkeys(raw)
	if err != nil {
		return err
	}
	block, err := aes.NewCipher(contentKey[:])
	if err != nil {
		return fmt.Errorf("init AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("init AES-GCM: %w", err)
	}
	activeCipher = &cipherState{gcm: gcm}
	_ = db // pragmas/migrations are applied by the caller after this returns
	return nil
}

// DefaultKeyPath returns <home>/.nmem/key.
func DefaultKeyPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".nmem", KeyFileName), nil
}

// loadOrCreateKeyFile reads the key at path, generating a new 32-byte
// cryptographically random key (hex-encoded, mode 0600) if absent.
func loadOrCreateKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the documented default key location
	if err == nil {
		return string(bytes.TrimSpace(data)), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("read key file %s: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("create key directory: %w", err)
		}
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	keyHex := hex.EncodeToString(raw)
	if err := os.WriteFile(path, []byte(keyHex), 0o600); err != nil {
		return "", fmt.Errorf("write key file %s: %w", path, err)
	}
	return keyHex, nil
}

// EncryptColumn seals plaintext with the active content key, prefixing the
// nonce. Returns plaintext unchanged (no prefix) when encryption is
// inactive (NMEM_NO_ENCRYPT=1).
func EncryptColumn(plaintext []byte) ([]byte, error) {
	if activeCipher == nil {
		return plaintext, nil
	}
	nonce := make([]byte, activeCipher.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := activeCipher.gcm.Seal(nonce, nonce, plaintext, nil)
	return sealed, nil
}

// DecryptColumn reverses EncryptColumn, extracting the nonce prefix.
func DecryptColumn(ciphertext []byte) ([]byte, error) {
	if activeCipher == nil {
		return ciphertext, nil
	}
	nonceSize := activeCipher.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plain, err := activeCipher.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt column: %w", err)
	}
	return plain, nil
}

// IsEncryptionActive reports whether the process has an active content key.
func IsEncryptionActive() bool {
	return activeCipher != nil
}

const sentinelKey = "encryption_sentinel"

// IsEncrypted reads the sentinel row from nmem_meta and tries to decrypt
// it. Unlike a bare file-presence check (no key available at all), this
// variant — used by `nmem encrypt` — answers "does this database believe
// itself encrypted" by checking whether the sentinel row is present and
// decrypts under the active key.
func IsEncrypted(ctx context.Context, db *sql.DB) (bool, error) {
	var sealedHex string
	err := db.QueryRowContext(ctx, `SELECT value FROM nmem_meta WHERE key = ?`, sentinelKey).Scan(&sealedHex)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read encryption sentinel: %w", err)
	}
	sealed, err := hex.DecodeString(sealedHex)
	if err != nil {
		return false, fmt.Errorf("decode encryption sentinel: %w", err)
	}
	_, err = DecryptColumn(sealed)
	return err == nil, nil
}

// WriteEncryptionSentinel seals a known marker into nmem_meta so future
// opens can detect a key mismatch.
func WriteEncryptionSentinel(ctx context.Context, db *sql.DB) error {
	sealed, err := EncryptColumn([]byte("nmem-sentinel-v1"))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO nmem_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, sentinelKey, hex.EncodeToString(sealed))
	return err
}

package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/semaphore"
	domainerrors "offramp.backend/internal/domain/errors"
)

const (
	// DefaultKDFIterations is the PBKDF2-HMAC-SHA256 work factor
	DefaultKDFIterations = 600000

	saltSize  = 16
	nonceSize = 12
	tagSize   = 16
	keySize   = 32
)

// ErrEmptyMasterSecret is returned when the vault is built without a secret
var ErrEmptyMasterSecret = errors.New("master secret is required")

// Vault envelope-encrypts private key material. Each blob carries its own salt, so every
// record is sealed under a distinct derived key.
//
// Blob layout (base64): salt(16) | nonce(12) | tag(16) | ciphertext.
type Vault struct {
	master     []byte
	iterations int
	kdf        *semaphore.Weighted
}

// VaultOption configures a Vault
type VaultOption func(*Vault)

// WithIterations overrides the KDF work factor
func WithIterations(n int) VaultOption {
	return func(v *Vault) {
		if n > 0 {
			v.iterations = n
		}
	}
}

// WithKDFWorkers bounds how many key derivations run at once
func WithKDFWorkers(n int) VaultOption {
	return func(v *Vault) {
		if n > 0 {
			v.kdf = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewVault creates a vault bound to the process master secret
func NewVault(masterSecret []byte, opts ...VaultOption) (*Vault, error) {
	if len(masterSecret) == 0 {
		return nil, ErrEmptyMasterSecret
	}
	v := &Vault{
		master:     append([]byte(nil), masterSecret...),
		iterations: DefaultKDFIterations,
		kdf:        semaphore.NewWeighted(int64(runtime.NumCPU())),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Encrypt seals plaintext under a key derived from the master secret and a fresh salt
func (v *Vault) Encrypt(ctx context.Context, plaintext []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := randomRead(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := randomRead(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := v.aead(ctx, salt)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, saltSize+nonceSize+tagSize+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt. Any authentication failure returns ErrIntegrity.
func (v *Vault) Decrypt(ctx context.Context, encoded string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed blob", domainerrors.ErrIntegrity)
	}
	if len(blob) < saltSize+nonceSize+tagSize {
		return nil, fmt.Errorf("%w: blob too short", domainerrors.ErrIntegrity)
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	tag := blob[saltSize+nonceSize : saltSize+nonceSize+tagSize]
	ciphertext := blob[saltSize+nonceSize+tagSize:]

	gcm, err := v.aead(ctx, salt)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", domainerrors.ErrIntegrity)
	}
	return plaintext, nil
}

func (v *Vault) aead(ctx context.Context, salt []byte) (cipher.AEAD, error) {
	key, err := v.deriveKey(ctx, salt)
	if err != nil {
		return nil, err
	}
	defer Zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return gcm, nil
}

func (v *Vault) deriveKey(ctx context.Context, salt []byte) ([]byte, error) {
	if err := v.kdf.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for kdf worker: %w", err)
	}
	defer v.kdf.Release(1)
	return pbkdf2.Key(v.master, salt, v.iterations, keySize, sha256.New), nil
}

// Package sealing encrypts export artifacts with keys held by a key manager.
package sealing

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"

	dErrors "haven/pkg/domain-errors"
)

// Scheme describes an authenticated-encryption layout.
type Scheme struct {
	Name      string
	KeySize   int
	NonceSize int
	TagSize   int
}

// SchemeAES256GCM lays a blob out as nonce || ciphertext || tag.
var SchemeAES256GCM = Scheme{Name: "AES-256-GCM", KeySize: 32, NonceSize: 12, TagSize: 16}

// ErrCryptoFailure is in the chain of every encryption or decryption error.
var ErrCryptoFailure = errors.New("crypto failure")

// KeyManager resolves key material. Callers own the returned slices and may
// zero them.
type KeyManager interface {
	GetKey(ctx context.Context, keyID string) ([]byte, error)
	GenerateSalt(ctx context.Context) ([]byte, error)
}

// Cipher seals and opens artifacts with AES-256-GCM.
type Cipher struct {
	keys   KeyManager
	scheme Scheme
}

func NewCipher(keys KeyManager) *Cipher {
	return &Cipher{keys: keys, scheme: SchemeAES256GCM}
}

func (c *Cipher) Scheme() Scheme {
	return c.scheme
}

// Encrypt returns nonce || ciphertext || tag.
func (c *Cipher) Encrypt(ctx context.Context, plaintext []byte, keyID string) ([]byte, error) {
	aead, err := c.aead(ctx, keyID)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, c.scheme.NonceSize, c.scheme.NonceSize+len(plaintext)+c.scheme.TagSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, cryptoFailure("failed to generate nonce", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt under the same key.
func (c *Cipher) Decrypt(ctx context.Context, blob []byte, keyID string) ([]byte, error) {
	if len(blob) < c.scheme.NonceSize+c.scheme.TagSize {
		return nil, cryptoFailure("ciphertext is too short", nil)
	}
	aead, err := c.aead(ctx, keyID)
	if err != nil {
		return nil, err
	}
	nonce, sealed := blob[:c.scheme.NonceSize], blob[c.scheme.NonceSize:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, cryptoFailure("authentication tag mismatch", err)
	}
	return plaintext, nil
}

func (c *Cipher) aead(ctx context.Context, keyID string) (cipher.AEAD, error) {
	if keyID == "" {
		return nil, cryptoFailure("encryption key id is required", nil)
	}
	key, err := c.keys.GetKey(ctx, keyID)
	if err != nil {
		return nil, cryptoFailure("failed to retrieve key "+keyID, err)
	}
	defer clear(key)

	if len(key) != c.scheme.KeySize {
		return nil, cryptoFailure("key "+keyID+" has invalid size", nil)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cryptoFailure("failed to initialise cipher", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, c.scheme.NonceSize)
	if err != nil {
		return nil, cryptoFailure("failed to initialise gcm", err)
	}
	return aead, nil
}

func cryptoFailure(msg string, cause error) error {
	return dErrors.Wrap(errors.Join(ErrCryptoFailure, cause), dErrors.CodeCryptoFailure, msg)
}

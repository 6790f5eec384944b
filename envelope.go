package sharecrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	// KeySize is the size of every symmetric key in the system: master keys,
	// share keys and file content keys are all 32 bytes (AES-256).
	KeySize = 32

	// NonceSize is the AES-GCM nonce size in bytes.
	NonceSize = 12
)

// Envelope is the wrap/unwrap primitive: it encrypts one 32-byte key under
// another 32-byte key using AES-256-GCM with a fresh nonce per wrap. The GCM
// tag is the sole wrong-key detector; no separate checksum exists.
type Envelope struct{}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("wrapping key must be %d bytes, got %d: %w", KeySize, len(key), ErrInvalidKeyLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts an arbitrary plaintext under key, returning ciphertext and
// the freshly generated nonce.
func (Envelope) Seal(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open decrypts a sealed blob. A failed authentication tag is reported as
// ErrAuthenticationFailed regardless of the underlying cipher error.
func (Envelope) Open(ciphertext, key, nonce []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d: %w", NonceSize, len(nonce), ErrAuthenticationFailed)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Wrap encrypts a 32-byte key under a 32-byte wrapping key.
func (e Envelope) Wrap(plainKey, wrappingKey []byte) (ciphertext, nonce []byte, err error) {
	if len(plainKey) != KeySize {
		return nil, nil, fmt.Errorf("plain key must be %d bytes, got %d: %w", KeySize, len(plainKey), ErrInvalidKeyLength)
	}
	return e.Seal(plainKey, wrappingKey)
}

// Unwrap reverses Wrap. Beyond tag verification it enforces that the
// recovered plaintext is exactly 32 bytes; anything else is rejected with
// ErrInvalidKeyLength rather than handed to callers as a garbage key.
func (e Envelope) Unwrap(ciphertext, wrappingKey, nonce []byte) ([]byte, error) {
	plainKey, err := e.Open(ciphertext, wrappingKey, nonce)
	if err != nil {
		return nil, err
	}
	if len(plainKey) != KeySize {
		return nil, fmt.Errorf("unwrapped key is %d bytes: %w", len(plainKey), ErrInvalidKeyLength)
	}
	return plainKey, nil
}

// RandomKey generates a fresh 32-byte symmetric key.
func RandomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

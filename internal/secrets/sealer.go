// Package secrets issues client bearer secrets and seals them with XChaCha20-Poly1305
// so that only the holder of the server key can open what the store persists.
package secrets

import (
	"clientreg/internal/types"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// SecretBytes is the entropy of a generated secret before encoding.
	SecretBytes = 32
	// SaltBytes of random salt are appended to the entropy, as the secret format always had.
	SaltBytes = 16
)

var ErrMalformedSecret = errors.New("malformed sealed secret")

// Sealer implements ports.SecretGenerator.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != types.SecretKeyLength {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", types.SecretKeyLength, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// NewSealerFromHex builds a Sealer from the hex form found in configuration.
func NewSealerFromHex(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	return NewSealer(key)
}

// GenerateKey returns a fresh hex-encoded key suitable for NewSealerFromHex.
func GenerateKey() (string, error) {
	key := make([]byte, types.SecretKeyLength)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

func (s *Sealer) Generate() (string, string, error) {
	raw := make([]byte, SecretBytes+SaltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("read random: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(raw)
	encrypted, err := s.Seal(plaintext)
	if err != nil {
		return "", "", err
	}
	return plaintext, encrypted, nil
}

// Seal encrypts plaintext under a random nonce. Output is base64(nonce || ciphertext).
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Sealer) Reveal(encrypted string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", types.Err(ErrMalformedSecret, err, "")
	}
	ns := s.aead.NonceSize()
	if len(b) < ns+s.aead.Overhead() {
		return "", ErrMalformedSecret
	}
	plain, err := s.aead.Open(nil, b[:ns], b[ns:], nil)
	if err != nil {
		return "", types.Err(ErrMalformedSecret, err, "")
	}
	return string(plain), nil
}

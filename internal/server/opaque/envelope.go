package opaque

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Codec seals small payloads under the process-wide server key so that
// per-exchange server state can round-trip through the client instead of
// living in a session table. Tokens are printable (standard base64) for
// embedding in text protocols.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec from the 32-byte server key seed. The AEAD key is
// derived through HKDF under its own info string, so it never coincides with
// the exchange key the Driver derives from the same seed.
func NewCodec(seed []byte) (*Codec, error) {
	if len(seed) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("envelope seed: want %d bytes, got %d", chacha20poly1305.KeySize, len(seed))
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte("bindguard envelope key")), key); err != nil {
		return nil, fmt.Errorf("envelope key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("envelope key: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Seal encrypts and authenticates payload with a fresh random nonce and
// returns the nonce-prefixed ciphertext as a base64 token.
func (c *Codec) Seal(payload []byte) (string, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("envelope nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, payload, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decodes and decrypts a token produced by Seal. Any decoding problem,
// truncation or authentication failure yields ErrEnvelopeIntegrity; no
// partial plaintext is ever returned.
func (c *Codec) Open(token string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrEnvelopeIntegrity
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, ErrEnvelopeIntegrity
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	payload, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrEnvelopeIntegrity
	}
	return payload, nil
}

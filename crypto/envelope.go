//go:generate go run go.uber.org/mock/mockgen -source=envelope.go -destination=../mocks/mock_envelope.go -package=mocks
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"messenger/errors"
)

const sessionKeySize = 32 // AES-256

// Envelope is the sealed form of a message: AES-256-GCM ciphertext (tag
// appended), the random nonce, and the session key wrapped once per
// recipient under RSA-OAEP. All fields are hex encoded.
type Envelope struct {
	Ciphertext  string
	Nonce       string
	WrappedKeys map[string]string
}

// Engine seals and opens message envelopes. Implementations must be safe
// for concurrent use; the default engine is stateless apart from the
// entropy source.
type Engine interface {
	Seal(plaintext []byte, recipients map[string]*rsa.PublicKey) (Envelope, error)
	Open(env Envelope, recipientID string, priv *rsa.PrivateKey) ([]byte, error)
}

type envelopeEngine struct{}

// NewEngine returns the production envelope engine.
func NewEngine() Engine { return envelopeEngine{} }

// Seal encrypts plaintext with a fresh random 256-bit session key and a
// fresh random 96-bit GCM nonce, then wraps the session key under every
// recipient's public key. Key and nonce are never reused across calls; both
// come straight from crypto/rand, so collision probability stays negligible
// at any realistic message volume.
func (envelopeEngine) Seal(plaintext []byte, recipients map[string]*rsa.PublicKey) (Envelope, error) {
	if len(recipients) == 0 {
		return Envelope{}, fmt.Errorf("seal: no recipients")
	}

	sessionKey := make([]byte, sessionKeySize)
	if _, err := rand.Read(sessionKey); err != nil {
		return Envelope{}, fmt.Errorf("generate session key: %w", err)
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return Envelope{}, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	wrapped := make(map[string]string, len(recipients))
	for id, pub := range recipients {
		blob, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, sessionKey, nil)
		if err != nil {
			return Envelope{}, fmt.Errorf("wrap session key: %w", err)
		}
		wrapped[id] = Encode(blob)
	}

	return Envelope{
		Ciphertext:  Encode(ciphertext),
		Nonce:       Encode(nonce),
		WrappedKeys: wrapped,
	}, nil
}

// Open unwraps the recipient's copy of the session key and authenticates
// and decrypts the ciphertext. It fails closed: a missing wrap entry, a bad
// private key, a flipped ciphertext bit or a malformed blob all surface the
// same ErrDecryptionFailed, with no partial plaintext and no hint of which
// step broke.
func (envelopeEngine) Open(env Envelope, recipientID string, priv *rsa.PrivateKey) ([]byte, error) {
	wrappedHex, ok := env.WrappedKeys[recipientID]
	if !ok {
		return nil, errors.ErrDecryptionFailed
	}
	wrappedKey, err := Decode(wrappedHex)
	if err != nil {
		return nil, errors.ErrDecryptionFailed
	}

	sessionKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrappedKey, nil)
	if err != nil {
		return nil, errors.ErrDecryptionFailed
	}
	if len(sessionKey) != sessionKeySize {
		return nil, errors.ErrDecryptionFailed
	}

	nonce, err := Decode(env.Nonce)
	if err != nil {
		return nil, errors.ErrDecryptionFailed
	}
	ciphertext, err := Decode(env.Ciphertext)
	if err != nil {
		return nil, errors.ErrDecryptionFailed
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, errors.ErrDecryptionFailed
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.ErrDecryptionFailed
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.ErrDecryptionFailed
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.ErrDecryptionFailed
	}
	return plaintext, nil
}

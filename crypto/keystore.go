package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"messenger/errors"
)

// Argon2id parameters for deriving the key-encryption key from the
// operator's master passphrase.
const (
	kekMemory      = 64 * 1024
	kekIterations  = 3
	kekParallelism = 2
	kekLength      = chacha20poly1305.KeySize
	saltLength     = 16
)

// Keystore seals identity private keys at rest. Private keys stay
// server-resident (the read path needs them to return plaintext), but a
// copy of the database alone must not expose key material, so every key is
// encrypted with ChaCha20-Poly1305 under a KEK derived from the master
// passphrase and a per-identity salt.
type Keystore struct {
	passphrase string
}

func NewKeystore(passphrase string) *Keystore {
	return &Keystore{passphrase: passphrase}
}

// SealedKey is the at-rest form of a private key. All fields hex encoded.
type SealedKey struct {
	Salt       string
	Nonce      string
	Ciphertext string
}

func (k *Keystore) deriveKEK(salt []byte) []byte {
	return argon2.IDKey([]byte(k.passphrase), salt, kekIterations, kekMemory, kekParallelism, kekLength)
}

// SealPrivateKey encrypts a PEM private key with a fresh salt and nonce.
func (k *Keystore) SealPrivateKey(privatePEM string) (SealedKey, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return SealedKey{}, fmt.Errorf("generate salt: %w", err)
	}

	aead, err := chacha20poly1305.New(k.deriveKEK(salt))
	if err != nil {
		return SealedKey{}, fmt.Errorf("create AEAD: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return SealedKey{}, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, []byte(privatePEM), nil)
	return SealedKey{
		Salt:       Encode(salt),
		Nonce:      Encode(nonce),
		Ciphertext: Encode(ciphertext),
	}, nil
}

// OpenPrivateKey decrypts a sealed private key back to its PEM form. Any
// failure, including a wrong passphrase, surfaces as ErrDecryptionFailed.
func (k *Keystore) OpenPrivateKey(sealed SealedKey) (string, error) {
	salt, err := Decode(sealed.Salt)
	if err != nil || len(salt) != saltLength {
		return "", errors.ErrDecryptionFailed
	}
	nonce, err := Decode(sealed.Nonce)
	if err != nil || len(nonce) != chacha20poly1305.NonceSize {
		return "", errors.ErrDecryptionFailed
	}
	ciphertext, err := Decode(sealed.Ciphertext)
	if err != nil {
		return "", errors.ErrDecryptionFailed
	}

	aead, err := chacha20poly1305.New(k.deriveKEK(salt))
	if err != nil {
		return "", errors.ErrDecryptionFailed
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.ErrDecryptionFailed
	}
	return string(plaintext), nil
}
